package actor

import (
	"encoding/json"

	"coordinator/pkg/effect"
	"coordinator/pkg/proto"
)

// Outcome is the result of one pure transition: the new state, the new
// context, and the effects to execute. Effects are data; the runtime
// executes them after the transition is computed and before the snapshot is
// committed.
type Outcome struct {
	State   proto.State
	Context json.RawMessage
	Effects []effect.Effect
}

// Machine is one entity type's state machine. Implementations must keep
// Transition pure: same (state, context, event) in, same Outcome out, no
// side effects, no clock reads feeding control flow. Everything
// side-effecting goes into Outcome.Effects.
type Machine interface {
	// EntityType returns the entity type this machine drives.
	EntityType() proto.EntityType

	// InitialState is the state a lazily-created actor starts in.
	InitialState() proto.State

	// InitialContext is the context a lazily-created actor starts with.
	InitialContext() json.RawMessage

	// Transition applies one event. A returned error means the event is not
	// acceptable in this state; the runtime surfaces it without committing
	// anything. Unrecoverable conditions are expressed as a transition into
	// the machine's terminal error state, not as a returned error.
	Transition(state proto.State, context json.RawMessage, ev proto.Event) (*Outcome, error)

	// Terminal reports whether a state consumes no further events. The
	// runtime lets only reset events through to a terminal-resettable state.
	Terminal(state proto.State) bool

	// Resettable reports whether a terminal state accepts an explicit reset
	// (error/failed do; merged/closed do not).
	Resettable(state proto.State) bool
}
