// Package actor hosts the entity actor runtime: one logical worker per
// entity key, a durable versioned snapshot per key, and pure transition
// functions whose effects are executed by the runtime.
//
// Mutual exclusion is structural. Events for one key are drained strictly
// sequentially by that key's mailbox, so no entity ever observes two events
// concurrently and no lock is held across an external call. Events for
// different keys have no ordering relationship. Cross-actor communication is
// fire-and-forget posting into the target's mailbox, never a blocking call
// into another actor's critical section.
package actor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"coordinator/pkg/effect"
	"coordinator/pkg/eventlog"
	"coordinator/pkg/gateway"
	"coordinator/pkg/logx"
	"coordinator/pkg/metrics"
	"coordinator/pkg/proto"
)

// InstallationResolver maps a repository path to the installation whose
// credential scopes all hosting API access for that repository.
type InstallationResolver interface {
	InstallationFor(repoPath string) (string, error)
}

// Services are the external collaborators effects run against. Any field may
// be nil in tests; effects touching a missing capability fail with a typed
// error instead of panicking.
type Services struct {
	Gateways      *gateway.Factory
	Sessions      effect.Sessions
	Installations InstallationResolver
	Local         effect.LocalStore
	Outcomes      effect.OutcomeSink
	Journal       effect.SyncJournal
}

// Options tune the runtime.
type Options struct {
	// Audit, when set, records every dispatched envelope.
	Audit *eventlog.Writer
	// Metrics, when set, receives dispatch/transition/conflict counts.
	Metrics *metrics.RuntimeMetrics
}

// Runtime routes events to per-key actor instances. Instances are created
// lazily on first event and hold no memory-only state that matters: the
// mailbox map is just a routing table, safe to lose and rebuild from the
// durable store.
type Runtime struct {
	store    Store
	machines map[proto.EntityType]Machine
	services Services
	opts     Options
	logger   *logx.Logger

	mu        sync.Mutex
	mailboxes map[proto.EntityKey]*mailbox
}

// NewRuntime creates a runtime over the given snapshot store.
func NewRuntime(store Store, services Services, opts Options) *Runtime {
	return &Runtime{
		store:     store,
		machines:  make(map[proto.EntityType]Machine),
		services:  services,
		opts:      opts,
		logger:    logx.NewLogger("runtime"),
		mailboxes: make(map[proto.EntityKey]*mailbox),
	}
}

// Register adds a machine for its entity type. Not safe to call after
// dispatching has begun.
func (r *Runtime) Register(m Machine) {
	r.machines[m.EntityType()] = m
}

type dispatchResult struct {
	snap *Snapshot
	err  error
}

type work struct {
	env    *proto.Envelope
	result chan dispatchResult // nil for fire-and-forget posts
}

// mailbox holds the two arrival-ordered lanes for one key. The interrupt
// lane is drained first, which is what lets a forced CLOSE preempt whatever
// automated work is still queued.
type mailbox struct {
	mu         sync.Mutex
	normal     []*work
	interrupts []*work
	running    bool
}

// Dispatch applies one event to the keyed actor and returns the committed
// snapshot. It blocks until the actor has processed the event (events ahead
// of it in the queue included) or ctx is done. Dispatch never panics across
// the boundary; all failures come back as *Error.
func (r *Runtime) Dispatch(ctx context.Context, key proto.EntityKey, ev proto.Event) (*Snapshot, error) {
	if !key.Valid() {
		return nil, NewError(KindInvalid, key, fmt.Errorf("malformed entity key"))
	}

	w := &work{env: proto.NewEnvelope(key, ev), result: make(chan dispatchResult, 1)}
	r.enqueue(key, w)

	select {
	case res := <-w.result:
		return res.snap, res.err
	case <-ctx.Done():
		// The event stays queued and will still be applied in order; only
		// the caller stops waiting.
		return nil, NewError(KindTimeout, key, ctx.Err())
	}
}

// Post enqueues an event without waiting for the outcome. Failures are
// logged and counted but not surfaced; this is the cross-actor notification
// path.
func (r *Runtime) Post(key proto.EntityKey, ev proto.Event) {
	if !key.Valid() {
		r.logger.Warn("dropping post to malformed key %q", key)
		return
	}
	r.enqueue(key, &work{env: proto.NewEnvelope(key, ev)})
}

// Schedule posts an event after the delay. Implements gateway.Scheduler.
func (r *Runtime) Schedule(delay time.Duration, key proto.EntityKey, ev proto.Event) {
	time.AfterFunc(delay, func() { r.Post(key, ev) })
}

func (r *Runtime) enqueue(key proto.EntityKey, w *work) {
	r.mu.Lock()
	mb, ok := r.mailboxes[key]
	if !ok {
		mb = &mailbox{}
		r.mailboxes[key] = mb
	}
	r.mu.Unlock()

	mb.mu.Lock()
	if w.env.IsInterrupt() {
		mb.interrupts = append(mb.interrupts, w)
	} else {
		mb.normal = append(mb.normal, w)
	}
	start := !mb.running
	if start {
		mb.running = true
	}
	mb.mu.Unlock()

	if start {
		go r.drain(key, mb)
	}
}

// drain processes one key's mailbox until it is empty. Only one drain
// goroutine exists per key at a time; that invariant is the serialization
// guarantee.
func (r *Runtime) drain(key proto.EntityKey, mb *mailbox) {
	for {
		mb.mu.Lock()
		var w *work
		switch {
		case len(mb.interrupts) > 0:
			w = mb.interrupts[0]
			mb.interrupts = mb.interrupts[1:]
		case len(mb.normal) > 0:
			w = mb.normal[0]
			mb.normal = mb.normal[1:]
		default:
			mb.running = false
			mb.mu.Unlock()
			return
		}
		mb.mu.Unlock()

		res := r.process(w.env)
		if w.result != nil {
			w.result <- res
		} else if res.err != nil {
			r.logger.Warn("posted event %s for %s failed: %v", w.env.EventKind, key, res.err)
		}
	}
}

// process applies one envelope: load, transition, execute effects, commit.
// On a version conflict the whole sequence is re-applied exactly once
// against the fresh snapshot before Conflict is surfaced. Effects are
// idempotent by construction, keyed by (entityKey, version), so a re-applied
// transition re-issuing them is safe.
func (r *Runtime) process(env *proto.Envelope) dispatchResult {
	key := env.Key

	if r.opts.Audit != nil {
		if err := r.opts.Audit.WriteEnvelope(env); err != nil {
			r.logger.Warn("audit write failed for %s: %v", key, err)
		}
	}
	if r.opts.Metrics != nil {
		r.opts.Metrics.DispatchStarted(string(key.Type()), env.EventKind)
	}

	machine, ok := r.machines[key.Type()]
	if !ok {
		return r.fail(NewError(KindInvalid, key, fmt.Errorf("no machine registered for entity type %q", key.Type())))
	}

	snap, err := r.loadOrInit(key, machine)
	if err != nil {
		return r.fail(NewError(KindTransientExternal, key, err))
	}

	const maxAttempts = 2 // initial apply + one reload on version conflict
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if machine.Terminal(snap.State) {
			_, isReset := env.Event.(proto.ResetEvent)
			if !isReset || !machine.Resettable(snap.State) {
				return r.fail(NewError(KindHalted, key,
					fmt.Errorf("actor in terminal state %s ignores %s", snap.State, env.EventKind)))
			}
		}

		outcome, terr := machine.Transition(snap.State, snap.Context, env.Event)
		if terr != nil {
			return r.fail(NewError(KindInvalid, key, terr))
		}

		next := &Snapshot{
			Key:       key,
			State:     outcome.State,
			Context:   outcome.Context,
			Version:   snap.Version + 1,
			UpdatedAt: time.Now().UTC(),
		}

		if err := r.runEffects(key, next.Version, outcome.Effects); err != nil {
			return r.fail(classifyExternal(key, err))
		}

		err = r.store.Put(next)
		if err == nil {
			if snap.State != next.State {
				r.logger.Info("%s: %s -> %s (v%d, %s)", key, snap.State, next.State, next.Version, env.EventKind)
			}
			if r.opts.Metrics != nil {
				r.opts.Metrics.TransitionApplied(string(key.Type()), snap.State.String(), next.State.String())
			}
			return dispatchResult{snap: next}
		}
		if err != ErrConflict {
			return r.fail(NewError(KindTransientExternal, key, err))
		}

		// Stale base version: someone else committed. Reload and re-apply
		// the event once against the fresh snapshot.
		if r.opts.Metrics != nil {
			r.opts.Metrics.ConflictRetried(string(key.Type()))
		}
		snap, err = r.loadOrInit(key, machine)
		if err != nil {
			return r.fail(NewError(KindTransientExternal, key, err))
		}
	}

	return r.fail(NewError(KindConflict, key, fmt.Errorf("version conflict persisted after reload")))
}

func (r *Runtime) fail(err *Error) dispatchResult {
	if r.opts.Metrics != nil {
		r.opts.Metrics.DispatchFailed(string(err.Key.Type()), string(err.Kind))
	}
	return dispatchResult{err: err}
}

func (r *Runtime) loadOrInit(key proto.EntityKey, machine Machine) (*Snapshot, error) {
	snap, err := r.store.LoadLatest(key)
	if err == nil {
		return snap, nil
	}
	if err != ErrNotFound {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	// Lazily-created actor: version 0 is never committed, the first
	// transition commits version 1.
	return &Snapshot{
		Key:     key,
		State:   machine.InitialState(),
		Context: machine.InitialContext(),
		Version: 0,
	}, nil
}

// runEffects executes the transition's effects in order with the idempotency
// identity of the about-to-be-committed version. The first failure aborts;
// the snapshot is not committed and the dispatch surfaces the classified
// error.
func (r *Runtime) runEffects(key proto.EntityKey, version uint64, effects []effect.Effect) error {
	if len(effects) == 0 {
		return nil
	}
	rt := r.effectRuntime(key, version)
	ctx := context.Background()
	for _, eff := range effects {
		if err := eff.Execute(ctx, rt); err != nil {
			return fmt.Errorf("effect %s: %w", eff.Type(), err)
		}
	}
	return nil
}

// repoPathOf extracts "owner/repo" from any entity key scope
// ("owner/repo" or "owner/repo#42").
func repoPathOf(key proto.EntityKey) string {
	scope := key.Scope()
	if i := strings.IndexByte(scope, '#'); i >= 0 {
		return scope[:i]
	}
	return scope
}
