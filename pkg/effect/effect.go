// Package effect provides the core abstractions for executable effects in
// the coordinator. Transitions stay pure: a state machine returns effects as
// data alongside its new state, and the actor runtime executes them through
// the capability surface defined here. This is what lets every transition be
// tested without a live network.
package effect

import (
	"context"
	"time"

	"coordinator/pkg/forge"
	"coordinator/pkg/gateway"
	"coordinator/pkg/proto"
)

// Effect represents an executable unit of outside-world interaction computed
// by a pure transition. Examples: dispatching a review session, merging a PR,
// posting a comment, notifying another actor.
type Effect interface {
	// Execute performs the effect using the provided runtime capabilities.
	Execute(ctx context.Context, runtime Runtime) error

	// Type returns a string identifier for this effect type (useful for
	// logging and the audit trail).
	Type() string
}

// Runtime is the capability surface effects run against. It is composed of
// smaller capability interfaces so tests can stub exactly what they need.
type Runtime interface {
	Capabilities
	Posting
	Sessions
	Logging
	Identity
}

// Capabilities provides the capability gateway scoped to the actor's
// repository and installation.
type Capabilities interface {
	// Gateway returns the scoped capability gateway.
	Gateway() gateway.Surface

	// Forge returns the hosting API client behind the gateway for trusted
	// coordinator effects that need operations outside the sandbox
	// allow-list (listing, merging during sync). Sandboxed code never
	// receives this.
	Forge() (forge.Client, error)

	// Local returns the local work-item store for the actor's repository.
	Local() LocalStore

	// Outcomes returns the reviewer-verdict audit sink, or nil when no
	// database is configured.
	Outcomes() OutcomeSink

	// Journal returns the sync action journal, or nil when no database is
	// configured.
	Journal() SyncJournal
}

// LocalStore reads and writes the repository-local work-item snapshot that
// the sync coordinator reconciles against the hosting API.
type LocalStore interface {
	ReadItems(ctx context.Context, repoPath string) (proto.ItemSet, error)
	WriteItems(ctx context.Context, repoPath string, items proto.ItemSet) error
}

// OutcomeSink appends reviewer verdicts to durable audit storage, outside
// the snapshot history so the verdict list survives actor resets.
type OutcomeSink interface {
	Record(key proto.EntityKey, outcome proto.ReviewOutcome) error
}

// SyncJournal is the operator-facing record of item-level sync actions.
// Begin journals a pending action and returns its journal id; Finish moves
// it to its final status.
type SyncJournal interface {
	Begin(repoPath string, direction proto.SyncDirection, itemID, detail string) (string, error)
	Finish(id string, status proto.SyncStatus, detail string) error
}

// Posting provides asynchronous cross-actor dispatch. Posts are
// fire-and-forget into the target actor's own queue; an effect never blocks
// inside another actor's critical section.
type Posting interface {
	// Post enqueues an event for another entity.
	Post(key proto.EntityKey, ev proto.Event)

	// PostDelayed enqueues an event for another entity after a delay.
	PostDelayed(delay time.Duration, key proto.EntityKey, ev proto.Event)
}

// SessionKind distinguishes review sessions from fix sessions.
type SessionKind string

const (
	SessionReview SessionKind = "review"
	SessionFix    SessionKind = "fix"
)

// SessionRequest describes a sandboxed review or fix session to launch.
//
//nolint:govet // logical field grouping preferred over memory optimization
type SessionRequest struct {
	Kind     SessionKind `json:"kind"`
	Entity   proto.EntityKey
	Reviewer proto.ReviewerConfig `json:"reviewer"`
	PRNumber int                  `json:"pr_number"`
	// Feedback carries the changes_requested comment a fix session addresses.
	Feedback string `json:"feedback,omitempty"`
	// IdempotencyKey dedupes re-executed effects after a crash between
	// effect execution and snapshot commit. Keyed by (entityKey, version).
	IdempotencyKey string `json:"idempotency_key"`
}

// Sessions launches sandboxed execution sessions. Implemented by
// pkg/sandbox; session completion and failure come back to the actor as
// SESSION_* events, never as return values here.
type Sessions interface {
	// StartSession launches a session and returns its id.
	StartSession(ctx context.Context, req SessionRequest) (string, error)
}

// Logging provides structured logging for effect execution.
type Logging interface {
	Info(format string, args ...any)
	Error(format string, args ...any)
	Debug(format string, args ...any)
}

// Identity describes the actor an effect is executing for.
type Identity interface {
	// EntityKey returns the owning actor's key.
	EntityKey() proto.EntityKey

	// Version returns the snapshot version the effect was computed against.
	Version() uint64

	// IdempotencyKey returns "entityKey@version", the dedupe key for this
	// transition's effects.
	IdempotencyKey() string
}
