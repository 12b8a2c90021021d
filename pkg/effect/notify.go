package effect

import (
	"context"
	"time"

	"coordinator/pkg/proto"
)

// NotifyEffect posts an event to another actor, fire-and-forget. This is the
// only way actors talk to each other; a notify never blocks on the target.
type NotifyEffect struct {
	Target proto.EntityKey
	Event  proto.Event
}

// Execute enqueues the event into the target actor's queue.
func (e *NotifyEffect) Execute(_ context.Context, runtime Runtime) error {
	runtime.Post(e.Target, e.Event)
	runtime.Debug("notified %s with %s", e.Target, e.Event.Kind())
	return nil
}

// Type returns the effect type identifier.
func (e *NotifyEffect) Type() string { return "notify" }

// ScheduleEffect posts an event to an actor after a delay. Used by the sync
// coordinator's backoff path: rather than sleeping inside a state, the actor
// schedules its own retry event and returns to an idle-within-state wait.
type ScheduleEffect struct {
	Target proto.EntityKey
	Event  proto.Event
	Delay  time.Duration
}

// Execute schedules the delayed post.
func (e *ScheduleEffect) Execute(_ context.Context, runtime Runtime) error {
	runtime.PostDelayed(e.Delay, e.Target, e.Event)
	runtime.Debug("scheduled %s for %s in %s", e.Event.Kind(), e.Target, e.Delay)
	return nil
}

// Type returns the effect type identifier.
func (e *ScheduleEffect) Type() string { return "schedule" }
