package proto

import (
	"time"

	"github.com/google/uuid"
)

// Event is the sealed interface for everything dispatched into an actor.
// Concrete event types live next to the state machine they drive (pkg/review,
// pkg/sync); sealing keeps the set closed so transition tables can be
// exhaustive.
type Event interface {
	// Kind returns a stable string identifier for logging and the audit log.
	Kind() string

	// isEvent seals the interface.
	isEvent()
}

// EventMarker is embedded by concrete event types in other packages to
// satisfy the sealed Event interface. Only types that embed it (or live in
// this package) can be events.
type EventMarker struct{}

func (EventMarker) isEvent() {}

// Interrupter is implemented by events that must preempt anything already
// queued for the same entity (forced close/merge). The runtime drains the
// interrupt lane before the normal lane, which is what guarantees a CLOSE
// wins over in-flight automated review.
type Interrupter interface {
	Event
	Interrupt() bool
}

// Envelope wraps an event with routing and audit metadata. The runtime
// stamps ID and ReceivedAt on dispatch; callers only set Key and Event.
type Envelope struct {
	ID         string    `json:"id"`
	Key        EntityKey `json:"entity_key"`
	EventKind  string    `json:"event_kind"`
	ReceivedAt time.Time `json:"received_at"`

	Event Event `json:"-"`
}

// NewEnvelope stamps an event for dispatch.
func NewEnvelope(key EntityKey, ev Event) *Envelope {
	return &Envelope{
		ID:         uuid.NewString(),
		Key:        key,
		EventKind:  ev.Kind(),
		ReceivedAt: time.Now().UTC(),
		Event:      ev,
	}
}

// IsInterrupt reports whether the wrapped event preempts the normal queue.
func (e *Envelope) IsInterrupt() bool {
	if in, ok := e.Event.(Interrupter); ok {
		return in.Interrupt()
	}
	return false
}

// CallbackEvent is a delayed callback scheduled through the capability
// gateway. The payload is carried verbatim from the scheduling call.
type CallbackEvent struct {
	Payload map[string]any `json:"payload,omitempty"`
}

// Kind implements Event.
func (CallbackEvent) Kind() string { return "CALLBACK" }

func (CallbackEvent) isEvent() {}

// ResetEvent is the operator-issued event that moves an actor out of a
// terminal error/failed state. It is shared by every machine: a terminal
// actor consumes nothing else until it sees one.
type ResetEvent struct {
	Operator string `json:"operator"`
	Reason   string `json:"reason,omitempty"`
}

// Kind implements Event.
func (ResetEvent) Kind() string { return "RESET" }

func (ResetEvent) isEvent() {}

// Interrupt implements Interrupter: a reset must reach a wedged actor even
// if its normal lane is backed up.
func (ResetEvent) Interrupt() bool { return true }
