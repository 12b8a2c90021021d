// Package sync implements the repo sync coordinator: the state machine that
// reconciles a repository's local work-item store with the hosting API in
// both directions, with a pure three-way diff, policy-driven conflict
// handling and a bounded retry schedule.
//
// Like the review machine, every transition here is pure. Fetching, applying
// and committing all happen in effects that report back as events.
package sync

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"coordinator/pkg/actor"
	"coordinator/pkg/approval"
	"coordinator/pkg/effect"
	"coordinator/pkg/proto"
)

// State constants. diffing is evaluated instantaneously: the classification
// runs inside the SNAPSHOT_FETCHED transition, so it never appears in a
// committed snapshot; the constant exists so restored legacy snapshots and
// logs can name it.
const (
	StateIdle              proto.State = "idle"
	StateFetchingRepo      proto.State = "fetchingRepo"
	StateDiffing           proto.State = "diffing"
	StateSyncingToGitHub   proto.State = "syncingToGitHub"
	StateSyncingFromGitHub proto.State = "syncingFromGitHub"
	StateCommittingBack    proto.State = "committingBack"
	StateRetrying          proto.State = "retrying"
	StateFailed            proto.State = "failed"
)

// Context is the repo actor's durable context.
//
//nolint:govet // logical field grouping preferred over memory optimization
type Context struct {
	RepoPath string `json:"repo_path"`

	// Base is the last snapshot both sides agreed on; the three-way diff
	// pivot. Empty until the first successful sync.
	Base proto.ItemSet `json:"base,omitempty"`

	// Working fields for the run in flight. Cleared on completion and on
	// entry to the retry path.
	Merged   proto.ItemSet `json:"merged,omitempty"`
	ToRemote []Action      `json:"to_remote,omitempty"`
	ToLocal  []Action      `json:"to_local,omitempty"`

	// Conflicts are parked both-sides-changed items awaiting an operator
	// resolution under the manual policy.
	Conflicts []Conflict `json:"conflicts,omitempty"`

	// Gated are local-to-remote actions the approval gate refused to apply
	// autonomously, recomputed each run. They stay parked until an operator
	// approves the item or the approval policy changes.
	Gated []GatedAction `json:"gated,omitempty"`

	// ApprovedItems are operator-approved item ids that bypass the gate on
	// the next run. Cleared when a run completes.
	ApprovedItems []string `json:"approved_items,omitempty"`

	// Dirty is set when a trigger arrives mid-run; the run restarts after
	// commit instead of returning to idle.
	Dirty bool `json:"dirty,omitempty"`

	Attempt      int       `json:"attempt,omitempty"`
	LastOp       string    `json:"last_op,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	LastSyncedAt time.Time `json:"last_synced_at,omitzero"`
}

// GatedAction is one local-to-remote action parked by the approval gate,
// with the gate's verdict for the operator.
type GatedAction struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// GateSource resolves the approval policy for one of a repository's work
// items. The resolution itself is the pure three-level walk in pkg/approval;
// this interface only locates the scope configs.
type GateSource interface {
	ResolveFor(repoPath string, issue int) approval.Config
}

// Policy holds the sync-machine policy knobs.
type Policy struct {
	// Conflict decides both-sides-changed items: remote_wins and local_wins
	// resolve them inline, manual parks them for an operator.
	Conflict proto.ConflictPolicy

	// Retry is the transient-failure schedule.
	Retry RetryPolicy
}

// Machine is the repo sync coordinator.
type Machine struct {
	gates  GateSource
	policy Policy
}

var _ actor.Machine = (*Machine)(nil)

// NewMachine creates the sync machine. A nil gate source fails closed: every
// local-to-remote action parks for an operator.
func NewMachine(gates GateSource, policy Policy) *Machine {
	if policy.Conflict == "" {
		policy.Conflict = proto.ConflictManual
	}
	if policy.Retry.MaxAttempts == 0 {
		policy.Retry = DefaultRetryPolicy()
	}
	return &Machine{gates: gates, policy: policy}
}

// EntityType implements actor.Machine.
func (m *Machine) EntityType() proto.EntityType { return proto.EntityRepo }

// InitialState implements actor.Machine.
func (m *Machine) InitialState() proto.State { return StateIdle }

// InitialContext implements actor.Machine.
func (m *Machine) InitialContext() json.RawMessage { return json.RawMessage(`{}`) }

// Terminal implements actor.Machine. Only failed is terminal; idle keeps
// accepting triggers and conflict resolutions forever.
func (m *Machine) Terminal(state proto.State) bool { return state == StateFailed }

// Resettable implements actor.Machine: failed recovers via explicit reset.
func (m *Machine) Resettable(state proto.State) bool { return state == StateFailed }

// Transition implements actor.Machine.
func (m *Machine) Transition(state proto.State, raw json.RawMessage, ev proto.Event) (*actor.Outcome, error) {
	var c Context
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("corrupt sync context: %w", err)
		}
	}

	if _, ok := ev.(proto.ResetEvent); ok {
		if state != StateFailed {
			return nil, fmt.Errorf("reset only valid from failed, not %s", state)
		}
		c.clearRun()
		c.Attempt = 0
		c.LastOp = ""
		c.LastError = ""
		return outcome(StateIdle, &c)
	}

	switch state {
	case StateIdle:
		return m.fromIdle(&c, ev)
	case StateFetchingRepo:
		return m.fromFetching(&c, ev)
	case StateSyncingToGitHub:
		return m.fromSyncingToRemote(&c, ev)
	case StateSyncingFromGitHub, StateCommittingBack:
		return m.fromCommitting(state, &c, ev)
	case StateRetrying:
		return m.fromRetrying(&c, ev)
	case StateDiffing:
		// Restored legacy snapshot: the fetched data is gone, start over.
		return m.startRun(&c)
	default:
		return nil, fmt.Errorf("state %s accepts no events", state)
	}
}

func (m *Machine) fromIdle(c *Context, ev proto.Event) (*actor.Outcome, error) {
	switch e := ev.(type) {
	case TriggerEvent:
		if e.RepoPath != "" {
			c.RepoPath = e.RepoPath
		}
		return m.startRun(c)

	case ResolveConflictEvent:
		if err := m.resolveConflict(c, e); err != nil {
			return nil, err
		}
		return m.startRun(c)

	case ApproveSyncEvent:
		if !slices.ContainsFunc(c.Gated, func(g GatedAction) bool { return g.Action.Item.ID == e.ItemID }) {
			return nil, fmt.Errorf("no gated action for item %s", e.ItemID)
		}
		if !slices.Contains(c.ApprovedItems, e.ItemID) {
			c.ApprovedItems = append(c.ApprovedItems, e.ItemID)
		}
		return m.startRun(c)

	default:
		return nil, fmt.Errorf("idle does not accept %s", ev.Kind())
	}
}

func (m *Machine) startRun(c *Context) (*actor.Outcome, error) {
	c.clearRun()
	c.Dirty = false
	return outcome(StateFetchingRepo, c, &FetchEffect{})
}

func (m *Machine) fromFetching(c *Context, ev proto.Event) (*actor.Outcome, error) {
	switch e := ev.(type) {
	case TriggerEvent:
		c.Dirty = true
		return outcome(StateFetchingRepo, c)

	case SyncFailedEvent:
		return m.failed(StateFetchingRepo, c, e)

	case SnapshotFetchedEvent:
		return m.diff(c, e)

	default:
		return nil, fmt.Errorf("fetchingRepo does not accept %s", ev.Kind())
	}
}

// diff is the instantaneous diffing evaluation: classify the three-way
// difference, fold the conflict policy in, and dispatch whichever apply
// phase has work. An empty diff completes the run without touching anything.
func (m *Machine) diff(c *Context, e SnapshotFetchedEvent) (*actor.Outcome, error) {
	d := Classify(c.Base, e.Local, e.Remote)

	switch m.policy.Conflict {
	case proto.ConflictRemoteWins:
		for _, cf := range d.Conflicts {
			d.ToLocal = append(d.ToLocal, action(proto.SyncRemoteToLocal, cf.Local, cf.LocalPresent, cf.Remote, cf.RemotePresent))
		}
		d.Conflicts = nil
	case proto.ConflictLocalWins:
		for _, cf := range d.Conflicts {
			d.ToRemote = append(d.ToRemote, action(proto.SyncLocalToRemote, cf.Remote, cf.RemotePresent, cf.Local, cf.LocalPresent))
		}
		d.Conflicts = nil
	}

	c.Conflicts = d.Conflicts
	c.ToRemote, c.Gated = m.gateActions(c, d.ToRemote)
	c.ToLocal = d.ToLocal
	c.Merged = e.Local.Clone()
	for _, a := range d.ToLocal {
		c.Merged[a.Item.ID] = a.Item
	}

	if len(c.ToRemote) > 0 {
		return outcome(StateSyncingToGitHub, c, &ApplyRemoteEffect{Actions: c.ToRemote})
	}
	if len(c.ToLocal) > 0 {
		return outcome(StateSyncingFromGitHub, c, &CommitEffect{Items: c.Merged})
	}

	// Nothing moved in either direction. The fetched snapshot becomes the
	// new base without a local write, unless gated actions are parked: their
	// local delta must stay visible to the next diff.
	if len(c.Gated) == 0 {
		c.Base = e.Local.Clone()
	}
	return m.finishRun(c)
}

// gateActions runs every outward action through the approval gate. Items the
// operator approved bypass the gate once; everything the gate refuses parks.
func (m *Machine) gateActions(c *Context, actions []Action) (allowed []Action, gated []GatedAction) {
	for _, a := range actions {
		if slices.Contains(c.ApprovedItems, a.Item.ID) {
			allowed = append(allowed, a)
			continue
		}
		if m.gates == nil {
			gated = append(gated, GatedAction{Action: a, Reason: "no approval policy configured"})
			continue
		}
		decision := approval.Gate(m.gates.ResolveFor(c.RepoPath, a.Item.Number), a.Item.Labels, nil)
		if decision.AutoApproved {
			allowed = append(allowed, a)
			continue
		}
		gated = append(gated, GatedAction{Action: a, Reason: decision.Reason})
	}
	return allowed, gated
}

func (m *Machine) fromSyncingToRemote(c *Context, ev proto.Event) (*actor.Outcome, error) {
	switch e := ev.(type) {
	case TriggerEvent:
		c.Dirty = true
		return outcome(StateSyncingToGitHub, c)

	case SyncFailedEvent:
		return m.failed(StateSyncingToGitHub, c, e)

	case RemoteAppliedEvent:
		// Fold assigned numbers and post-apply hashes into the merged set.
		for _, item := range e.Results {
			c.Merged[item.ID] = item
		}
		next := StateCommittingBack
		if len(c.ToLocal) > 0 {
			next = StateSyncingFromGitHub
		}
		return outcome(next, c, &CommitEffect{Items: c.Merged})

	default:
		return nil, fmt.Errorf("syncingToGitHub does not accept %s", ev.Kind())
	}
}

func (m *Machine) fromCommitting(state proto.State, c *Context, ev proto.Event) (*actor.Outcome, error) {
	switch e := ev.(type) {
	case TriggerEvent:
		c.Dirty = true
		return outcome(state, c)

	case SyncFailedEvent:
		return m.failed(state, c, e)

	case CommittedEvent:
		// Gated items revert to their old base entry so their un-applied
		// local delta resurfaces in the next diff.
		base := c.Merged.Clone()
		for _, g := range c.Gated {
			id := g.Action.Item.ID
			if old, ok := c.Base[id]; ok {
				base[id] = old
			} else {
				delete(base, id)
			}
		}
		c.Base = base
		return m.finishRun(c)

	default:
		return nil, fmt.Errorf("%s does not accept %s", state, ev.Kind())
	}
}

// finishRun closes out a successful run: reset the retry budget, stamp the
// sync time, and either go idle or restart immediately if a trigger arrived
// mid-run.
func (m *Machine) finishRun(c *Context) (*actor.Outcome, error) {
	c.Merged = nil
	c.ToRemote = nil
	c.ToLocal = nil
	c.ApprovedItems = nil
	c.Attempt = 0
	c.LastOp = ""
	c.LastError = ""
	c.LastSyncedAt = time.Now().UTC()

	if c.Dirty {
		return m.startRun(c)
	}
	return outcome(StateIdle, c)
}

// failed applies the retry schedule to a mid-run failure: transient failures
// back off and re-fetch from scratch, permanent ones and an exhausted budget
// land in failed.
func (m *Machine) failed(state proto.State, c *Context, e SyncFailedEvent) (*actor.Outcome, error) {
	c.LastOp = e.Op
	c.LastError = e.Error

	if !e.Transient || c.Attempt >= m.policy.Retry.MaxAttempts {
		c.clearRun()
		return outcome(StateFailed, c)
	}

	c.Attempt++
	c.clearRun()
	return outcome(StateRetrying, c, &effect.ScheduleEffect{
		Target: proto.RepoKeyFromPath(c.RepoPath),
		Event:  RetryDueEvent{Attempt: c.Attempt},
		Delay:  m.policy.Retry.Delay(c.Attempt),
	})
}

func (m *Machine) fromRetrying(c *Context, ev proto.Event) (*actor.Outcome, error) {
	switch ev.(type) {
	case RetryDueEvent:
		c.Dirty = false
		c.clearRun()
		return outcome(StateFetchingRepo, c, &FetchEffect{})

	case TriggerEvent:
		// The pending retry re-fetches everything anyway.
		return outcome(StateRetrying, c)

	default:
		return nil, fmt.Errorf("retrying does not accept %s", ev.Kind())
	}
}

// resolveConflict rewrites the base so the losing side reads as unchanged;
// the fresh run the caller starts then carries the winner across normally.
func (m *Machine) resolveConflict(c *Context, e ResolveConflictEvent) error {
	for i, cf := range c.Conflicts {
		if cf.ItemID != e.ItemID {
			continue
		}
		if c.Base == nil {
			c.Base = proto.ItemSet{}
		}
		switch e.Winner {
		case proto.SyncLocalToRemote:
			if cf.RemotePresent {
				c.Base[cf.ItemID] = cf.Remote
			} else {
				delete(c.Base, cf.ItemID)
			}
		case proto.SyncRemoteToLocal:
			if cf.LocalPresent {
				c.Base[cf.ItemID] = cf.Local
			} else {
				delete(c.Base, cf.ItemID)
			}
		default:
			return fmt.Errorf("unknown conflict winner %q", e.Winner)
		}
		c.Conflicts = append(c.Conflicts[:i], c.Conflicts[i+1:]...)
		return nil
	}
	return fmt.Errorf("no parked conflict for item %s", e.ItemID)
}

func (c *Context) clearRun() {
	c.Merged = nil
	c.ToRemote = nil
	c.ToLocal = nil
}

func outcome(state proto.State, c *Context, effects ...effect.Effect) (*actor.Outcome, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling sync context: %w", err)
	}
	return &actor.Outcome{State: state, Context: raw, Effects: effects}, nil
}
