package proto

import "time"

// State is a named state in an actor's machine. Each machine defines its own
// constants; the runtime treats states as opaque beyond terminal checks.
type State string

func (s State) String() string { return string(s) }

// ReviewDecision is a reviewer's verdict on a pull request.
type ReviewDecision string

const (
	// DecisionApproved means the reviewer signed off.
	DecisionApproved ReviewDecision = "approved"
	// DecisionChangesRequested means the reviewer wants fixes first.
	DecisionChangesRequested ReviewDecision = "changes_requested"
)

// MergeType records how a PR reached the merged state.
type MergeType string

const (
	// MergeApproved is a merge that followed the full review sequence.
	MergeApproved MergeType = "approved"
	// MergeForced is a human force-merge that preempted review.
	MergeForced MergeType = "forced"
)

// ReviewerType distinguishes autonomous and human reviewers.
type ReviewerType string

const (
	ReviewerAgent ReviewerType = "agent"
	ReviewerHuman ReviewerType = "human"
)

// ReviewerConfig is one entry in the ordered reviewer list. The order of the
// list is the order reviewers are consulted. The list is snapshotted into the
// PR actor's context at CONFIG_LOADED; edits after that do not affect the run.
type ReviewerConfig struct {
	Agent       string       `json:"agent" yaml:"agent"`
	Type        ReviewerType `json:"type" yaml:"type"`
	Credential  string       `json:"credential" yaml:"credential"`
	EscalatesTo string       `json:"escalates_to,omitempty" yaml:"escalates_to,omitempty"`
}

// ReviewOutcome is one completed review verdict. Outcomes are append-only
// inside the PR actor's context and never mutated after creation.
type ReviewOutcome struct {
	Reviewer  string         `json:"reviewer"`
	Decision  ReviewDecision `json:"decision"`
	Comment   string         `json:"comment,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// SyncDirection says which side of a sync event is authoritative.
type SyncDirection string

const (
	SyncLocalToRemote SyncDirection = "local_to_remote"
	SyncRemoteToLocal SyncDirection = "remote_to_local"
)

// SyncStatus is the lifecycle status of one sync event.
type SyncStatus string

const (
	SyncPending    SyncStatus = "pending"
	SyncProcessing SyncStatus = "processing"
	SyncCompleted  SyncStatus = "completed"
	SyncFailed     SyncStatus = "failed"
	// SyncConflict is terminal-pending-resolution: the item changed on both
	// sides and the configured policy is manual tie-break.
	SyncConflict SyncStatus = "conflict"
)

// ConflictPolicy decides how a both-sides-changed item is resolved.
type ConflictPolicy string

const (
	ConflictRemoteWins ConflictPolicy = "remote_wins"
	ConflictLocalWins  ConflictPolicy = "local_wins"
	ConflictManual     ConflictPolicy = "manual"
)

// GenerateSessionID returns an identifier for a review/fix session.
func GenerateSessionID() string {
	return "session-" + NewID()
}
