package actor

import (
	"errors"
	"fmt"

	"coordinator/pkg/forge"
	"coordinator/pkg/proto"
)

// ErrorKind classifies dispatch failures. Actor-internal failures never
// panic or throw across the dispatch boundary; Dispatch always returns a
// typed result.
type ErrorKind string

const (
	// KindConflict is a stale snapshot version. The runtime retries once
	// internally; callers seeing this must reload before retrying.
	KindConflict ErrorKind = "conflict"
	// KindTransientExternal is a rate limit or 5xx from the hosting API or
	// sandbox. Retried by the owning actor up to its policy's bounded count.
	KindTransientExternal ErrorKind = "transient_external"
	// KindPermanentExternal is a non-429 4xx or malformed payload. Not
	// retried; the actor moves to its error/failed state.
	KindPermanentExternal ErrorKind = "permanent_external"
	// KindTimeout is an injected synthetic failure; it consumes one retry
	// slot like a transient.
	KindTimeout ErrorKind = "timeout"
	// KindPolicyDenied means the approval gate rejected an auto action. Not
	// an error in the operational sense, a normal pending-human outcome.
	KindPolicyDenied ErrorKind = "policy_denied"
	// KindInvalid is an event the current state cannot accept, or an
	// unknown entity type.
	KindInvalid ErrorKind = "invalid"
	// KindHalted means the actor sits in a terminal error/failed state and
	// consumes nothing but an explicit reset.
	KindHalted ErrorKind = "halted"
)

// Error is the typed result of a failed dispatch.
type Error struct {
	Kind ErrorKind
	Key  proto.EntityKey
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("actor %s: %s: %v", e.Key, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a typed actor error.
func NewError(kind ErrorKind, key proto.EntityKey, err error) *Error {
	return &Error{Kind: kind, Key: key, Err: err}
}

// KindOf extracts the classification from any error in the chain.
func KindOf(err error) ErrorKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// classifyExternal maps a forge/effect failure onto the dispatch taxonomy.
func classifyExternal(key proto.EntityKey, err error) *Error {
	switch forge.KindOf(err) {
	case forge.KindRateLimited, forge.KindTransient:
		return NewError(KindTransientExternal, key, err)
	case forge.KindNotFound, forge.KindPermissionDenied, forge.KindUnknown:
		return NewError(KindPermanentExternal, key, err)
	}
	return NewError(KindPermanentExternal, key, err)
}
