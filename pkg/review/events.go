package review

import "coordinator/pkg/proto"

// Sealed event set for the PR review machine. Every event type implements
// proto.Event through the embedded marker; the set is closed so the
// transition table can be exhaustive.

// ConfigLoadedEvent carries the reviewer configuration that governs one
// review run. The ordered reviewer list is snapshotted into the actor's
// context here; later edits to the source list do not affect this run.
type ConfigLoadedEvent struct {
	proto.EventMarker
	PRNumber         int                    `json:"pr_number"`
	RepoPath         string                 `json:"repo_path"`
	Reviewers        []proto.ReviewerConfig `json:"reviewers"`
	AuthorCredential string                 `json:"author_credential"`
	Labels           []string               `json:"labels,omitempty"`
	TouchedPaths     []string               `json:"touched_paths,omitempty"`
}

// Kind implements proto.Event.
func (ConfigLoadedEvent) Kind() string { return "CONFIG_LOADED" }

// SessionStartedEvent records the id of a launched review/fix session.
type SessionStartedEvent struct {
	proto.EventMarker
	SessionID string `json:"session_id"`
}

// Kind implements proto.Event.
func (SessionStartedEvent) Kind() string { return "SESSION_STARTED" }

// SessionFailedEvent reports a failed or timed-out session. Timeouts are
// injected by the sandbox watchdog as a synthetic failure and consume one
// retry slot like any other transient failure.
type SessionFailedEvent struct {
	proto.EventMarker
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error"`
	Timeout   bool   `json:"timeout,omitempty"`
}

// Kind implements proto.Event.
func (SessionFailedEvent) Kind() string { return "SESSION_FAILED" }

// ReviewCompleteEvent carries one reviewer's verdict.
type ReviewCompleteEvent struct {
	proto.EventMarker
	Reviewer string               `json:"reviewer"`
	Decision proto.ReviewDecision `json:"decision"`
	Body     string               `json:"body,omitempty"`
}

// Kind implements proto.Event.
func (ReviewCompleteEvent) Kind() string { return "REVIEW_COMPLETE" }

// FixCompleteEvent reports that a fix session addressed the outstanding
// changes_requested feedback.
type FixCompleteEvent struct {
	proto.EventMarker
	Commits []string `json:"commits,omitempty"`
}

// Kind implements proto.Event.
func (FixCompleteEvent) Kind() string { return "FIX_COMPLETE" }

// CloseEvent is the human force-close/force-merge. It is valid from every
// non-terminal state and preempts anything queued for the PR: implementing
// proto.Interrupter puts it in the runtime's interrupt lane.
type CloseEvent struct {
	proto.EventMarker
	Merged bool   `json:"merged"`
	Actor  string `json:"actor,omitempty"`

	// Observed marks a close the hosting side already performed (the webhook
	// echo); the machine records it without issuing a merge of its own.
	Observed bool `json:"observed,omitempty"`
}

// Kind implements proto.Event.
func (CloseEvent) Kind() string { return "CLOSE" }

// Interrupt implements proto.Interrupter.
func (CloseEvent) Interrupt() bool { return true }

// MergeEvent merges an approved PR. Auto marks a merge the approval gate
// issued itself after the last reviewer approved.
type MergeEvent struct {
	proto.EventMarker
	Auto bool `json:"auto,omitempty"`
}

// Kind implements proto.Event.
func (MergeEvent) Kind() string { return "MERGE" }
