// Package review implements the pull request review coordinator: the state
// machine that drives a PR through a multi-reviewer review/fix/merge
// protocol with bounded session retries and human forced interrupts.
//
// The machine is pure. Every transition returns the new state, the new
// context, and the effects to execute; nothing here touches the network.
package review

import (
	"encoding/json"
	"fmt"
	"time"

	"coordinator/pkg/actor"
	"coordinator/pkg/approval"
	"coordinator/pkg/effect"
	"coordinator/pkg/proto"
)

// State constants. checkingApproval is evaluated instantaneously: a
// REVIEW_COMPLETE approval passes through it inside the same transition, so
// it never appears in a committed snapshot; the constant exists so restored
// legacy snapshots and logs can name it.
const (
	StatePending          proto.State = "pending"
	StateReviewing        proto.State = "reviewing"
	StateCheckingApproval proto.State = "checkingApproval"
	StateFixing           proto.State = "fixing"
	StateApproved         proto.State = "approved"
	StateMerged           proto.State = "merged"
	StateClosed           proto.State = "closed"
	StateError            proto.State = "error"
)

// MaxSessionRetries is the number of retries granted per failing session
// before the actor gives up and requires human intervention. The counter
// resets only on successful fix completion, not on review completion.
const MaxSessionRetries = 3

// Context is the PR actor's durable context.
//
//nolint:govet // logical field grouping preferred over memory optimization
type Context struct {
	PRNumber         int                    `json:"pr_number"`
	RepoPath         string                 `json:"repo_path"`
	Reviewers        []proto.ReviewerConfig `json:"reviewers"`
	AuthorCredential string                 `json:"author_credential,omitempty"`

	CurrentReviewerIndex int    `json:"current_reviewer_index"`
	RetryCount           int    `json:"retry_count"`
	CurrentSessionID     string `json:"current_session_id,omitempty"`

	// Outcomes is append-only; entries are never mutated after creation.
	Outcomes []proto.ReviewOutcome `json:"outcomes,omitempty"`

	// LastFeedback is the changes_requested comment the current fix cycle
	// addresses; re-dispatched verbatim when a fix session is retried.
	LastFeedback string `json:"last_feedback,omitempty"`

	LastError string          `json:"last_error,omitempty"`
	MergeType proto.MergeType `json:"merge_type,omitempty"`

	Labels       []string `json:"labels,omitempty"`
	TouchedPaths []string `json:"touched_paths,omitempty"`

	// GateReason records the approval gate's verdict when the review
	// sequence completed, for audit.
	GateReason string `json:"gate_reason,omitempty"`
}

// GateSource resolves the approval policy for one of a repository's PRs.
// The resolution itself is the pure three-level walk in pkg/approval; this
// interface only locates the scope configs.
type GateSource interface {
	ResolveFor(repoPath string, issue int) approval.Config
}

// Policy holds the review-machine policy knobs.
type Policy struct {
	// RestartOnFix restarts the reviewer sequence from index 0 after a fix
	// instead of resuming at the reviewer who requested changes. Off by
	// default: a fix re-enters review at the requesting reviewer, and
	// reviewers who already approved are not consulted again.
	RestartOnFix bool

	// MergeMethod is the hosting API merge method for approved merges.
	MergeMethod string
}

// Machine is the PR review coordinator.
type Machine struct {
	gates  GateSource
	policy Policy
}

var _ actor.Machine = (*Machine)(nil)

// NewMachine creates the review machine.
func NewMachine(gates GateSource, policy Policy) *Machine {
	if policy.MergeMethod == "" {
		policy.MergeMethod = "squash"
	}
	return &Machine{gates: gates, policy: policy}
}

// EntityType implements actor.Machine.
func (m *Machine) EntityType() proto.EntityType { return proto.EntityPR }

// InitialState implements actor.Machine.
func (m *Machine) InitialState() proto.State { return StatePending }

// InitialContext implements actor.Machine.
func (m *Machine) InitialContext() json.RawMessage { return json.RawMessage(`{}`) }

// Terminal implements actor.Machine.
func (m *Machine) Terminal(state proto.State) bool {
	return state == StateMerged || state == StateClosed || state == StateError
}

// Resettable implements actor.Machine: error can be reset by an operator;
// merged and closed are final.
func (m *Machine) Resettable(state proto.State) bool {
	return state == StateError
}

// Transition implements actor.Machine.
func (m *Machine) Transition(state proto.State, raw json.RawMessage, ev proto.Event) (*actor.Outcome, error) {
	var c Context
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("corrupt review context: %w", err)
		}
	}

	// Global transitions first: CLOSE wins from every non-terminal state
	// regardless of review progress, and RESET recovers from error.
	switch e := ev.(type) {
	case CloseEvent:
		return m.close(&c, e)
	case proto.ResetEvent:
		if state != StateError {
			return nil, fmt.Errorf("reset only valid from error, not %s", state)
		}
		c.RetryCount = 0
		c.CurrentSessionID = ""
		c.LastError = ""
		return outcome(StatePending, &c)
	}

	switch state {
	case StatePending:
		return m.fromPending(&c, ev)
	case StateReviewing:
		return m.fromReviewing(&c, ev)
	case StateFixing:
		return m.fromFixing(&c, ev)
	case StateApproved:
		return m.fromApproved(&c, ev)
	case StateCheckingApproval:
		// Restored legacy snapshot: re-run the evaluation with no new input.
		return m.checkApproval(&c)
	default:
		return nil, fmt.Errorf("state %s accepts no events", state)
	}
}

func (m *Machine) fromPending(c *Context, ev proto.Event) (*actor.Outcome, error) {
	e, ok := ev.(ConfigLoadedEvent)
	if !ok {
		return nil, fmt.Errorf("pending accepts only CONFIG_LOADED, got %s", ev.Kind())
	}
	if len(e.Reviewers) == 0 {
		return nil, fmt.Errorf("reviewer list is empty")
	}

	c.PRNumber = e.PRNumber
	c.RepoPath = e.RepoPath
	c.Reviewers = append([]proto.ReviewerConfig(nil), e.Reviewers...)
	c.AuthorCredential = e.AuthorCredential
	c.Labels = e.Labels
	c.TouchedPaths = e.TouchedPaths
	c.CurrentReviewerIndex = 0
	c.RetryCount = 0

	return outcome(StateReviewing, c,
		effect.NewReviewSessionEffect(c.Reviewers[0], c.PRNumber))
}

func (m *Machine) fromReviewing(c *Context, ev proto.Event) (*actor.Outcome, error) {
	switch e := ev.(type) {
	case SessionStartedEvent:
		c.CurrentSessionID = e.SessionID
		return outcome(StateReviewing, c)

	case SessionFailedEvent:
		return m.sessionFailed(StateReviewing, c, e)

	case ReviewCompleteEvent:
		verdict := proto.ReviewOutcome{
			Reviewer:  e.Reviewer,
			Decision:  e.Decision,
			Comment:   e.Body,
			Timestamp: nowUTC(),
		}
		c.Outcomes = append(c.Outcomes, verdict)
		c.CurrentSessionID = ""
		record := &effect.RecordOutcomeEffect{Outcome: verdict}

		if e.Decision == proto.DecisionChangesRequested {
			c.LastFeedback = e.Body
			return outcome(StateFixing, c, record,
				effect.NewFixSessionEffect(m.currentReviewer(c), c.PRNumber, e.Body))
		}

		c.CurrentReviewerIndex++
		out, err := m.checkApproval(c)
		if err != nil {
			return nil, err
		}
		out.Effects = append([]effect.Effect{record}, out.Effects...)
		return out, nil

	default:
		return nil, fmt.Errorf("reviewing does not accept %s", ev.Kind())
	}
}

// checkApproval is the instantaneous checkingApproval evaluation: more
// reviewers pending means dispatch the next one and stay in reviewing; none
// pending means the sequence is complete and the approval gate decides
// whether the merge may be issued autonomously.
func (m *Machine) checkApproval(c *Context) (*actor.Outcome, error) {
	if c.CurrentReviewerIndex < len(c.Reviewers) {
		return outcome(StateReviewing, c,
			effect.NewReviewSessionEffect(m.currentReviewer(c), c.PRNumber))
	}

	var effects []effect.Effect
	if m.gates != nil {
		decision := approval.Gate(m.gates.ResolveFor(c.RepoPath, c.PRNumber), c.Labels, c.TouchedPaths)
		c.GateReason = decision.Reason
		if decision.AutoApproved {
			// The gate clears an autonomous merge: the actor posts itself an
			// explicit MERGE so the approved state is still observable and
			// the merge is attributable in the audit log.
			effects = append(effects, &effect.NotifyEffect{
				Target: proto.PRKeyFromPath(c.RepoPath, c.PRNumber),
				Event:  MergeEvent{Auto: true},
			})
		}
	}
	return outcome(StateApproved, c, effects...)
}

func (m *Machine) fromFixing(c *Context, ev proto.Event) (*actor.Outcome, error) {
	switch e := ev.(type) {
	case SessionStartedEvent:
		c.CurrentSessionID = e.SessionID
		return outcome(StateFixing, c)

	case SessionFailedEvent:
		return m.sessionFailed(StateFixing, c, e)

	case FixCompleteEvent:
		c.RetryCount = 0
		c.CurrentSessionID = ""
		if m.policy.RestartOnFix {
			c.CurrentReviewerIndex = 0
		}
		// The requesting reviewer re-evaluates the fix; reviewers who already
		// approved are not re-consulted (unless RestartOnFix).
		return outcome(StateReviewing, c,
			effect.NewReviewSessionEffect(m.currentReviewer(c), c.PRNumber))

	default:
		return nil, fmt.Errorf("fixing does not accept %s", ev.Kind())
	}
}

func (m *Machine) fromApproved(c *Context, ev proto.Event) (*actor.Outcome, error) {
	if _, ok := ev.(MergeEvent); !ok {
		return nil, fmt.Errorf("approved accepts only MERGE, got %s", ev.Kind())
	}
	c.MergeType = proto.MergeApproved
	return outcome(StateMerged, c, &effect.MergeEffect{
		PRNumber: c.PRNumber,
		Method:   m.policy.MergeMethod,
	})
}

// sessionFailed applies the bounded retry policy: up to MaxSessionRetries
// re-dispatches of the same reviewer's session, then terminal error.
func (m *Machine) sessionFailed(state proto.State, c *Context, e SessionFailedEvent) (*actor.Outcome, error) {
	if c.RetryCount < MaxSessionRetries {
		c.RetryCount++
		c.CurrentSessionID = ""
		reviewer := m.currentReviewer(c)
		if state == StateFixing {
			return outcome(StateFixing, c,
				effect.NewFixSessionEffect(reviewer, c.PRNumber, c.LastFeedback))
		}
		return outcome(StateReviewing, c,
			effect.NewReviewSessionEffect(reviewer, c.PRNumber))
	}

	c.LastError = e.Error
	c.CurrentSessionID = ""
	return outcome(StateError, c)
}

// close handles the human force-close/force-merge, valid from every
// non-terminal state. An operator force-merge issues the merge itself; an
// observed close arrived because the hosting side already did it.
func (m *Machine) close(c *Context, e CloseEvent) (*actor.Outcome, error) {
	c.CurrentSessionID = ""
	if e.Merged {
		c.MergeType = proto.MergeForced
		if e.Observed {
			return outcome(StateMerged, c)
		}
		return outcome(StateMerged, c, &effect.MergeEffect{
			PRNumber: c.PRNumber,
			Method:   m.policy.MergeMethod,
			Forced:   true,
		})
	}
	return outcome(StateClosed, c)
}

// currentReviewer returns the reviewer at the current index, clamped to the
// last entry so a malformed index cannot panic a transition.
func (m *Machine) currentReviewer(c *Context) proto.ReviewerConfig {
	i := c.CurrentReviewerIndex
	if i >= len(c.Reviewers) {
		i = len(c.Reviewers) - 1
	}
	if i < 0 {
		i = 0
	}
	return c.Reviewers[i]
}

func nowUTC() time.Time { return time.Now().UTC() }

func outcome(state proto.State, c *Context, effects ...effect.Effect) (*actor.Outcome, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling review context: %w", err)
	}
	return &actor.Outcome{State: state, Context: raw, Effects: effects}, nil
}
