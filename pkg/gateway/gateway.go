// Package gateway implements the capability gateway: the sole boundary
// through which sandboxed or untrusted code can affect the outside world.
//
// A Gateway is instantiated per (repository, installation) pair and every
// method is implicitly scoped to that pair; no method accepts an arbitrary
// repository or installation, so a compromised sandbox cannot reach another
// tenant. The exposed surface is a fixed allow-list. Anything not listed here
// is unreachable, and direct network egress from the sandbox is denied at the
// transport layer (see pkg/sandbox), not merely left un-exposed.
//
// The gateway does not retry failed hosting API calls. Failures are surfaced
// as typed forge errors; retry policy belongs to the calling actor.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"coordinator/pkg/forge"
	"coordinator/pkg/logx"
	"coordinator/pkg/proto"
)

// Surface is the full allow-list exposed to sandboxed callers. Effects and
// the RPC bridge are written against this interface, never the concrete type.
type Surface interface {
	// RepoPath returns the owner/repo this gateway is scoped to.
	RepoPath() string

	// Installation returns the installation this gateway is scoped to.
	Installation() string

	GetIssue(ctx context.Context, number int) (*forge.Issue, error)
	UpdateIssue(ctx context.Context, number int, update *forge.IssueUpdate) (*forge.Issue, error)
	GetMilestone(ctx context.Context, number int) (*forge.Milestone, error)
	UpdateMilestone(ctx context.Context, number int, update *forge.MilestoneUpdate) (*forge.Milestone, error)
	CreatePRComment(ctx context.Context, number int, body string) (*forge.Comment, error)
	UpdatePR(ctx context.Context, number int, update *forge.PRUpdate) (*forge.PullRequest, error)
	ListPRFiles(ctx context.Context, number int) ([]string, error)
	MergePR(ctx context.Context, number int, opts forge.PRMergeOptions) error
	AddLabels(ctx context.Context, number int, labels []string) error

	// ScheduleCallback arranges for a CallbackEvent to be posted to the given
	// entity after the delay. The payload is carried verbatim.
	ScheduleCallback(delay time.Duration, key proto.EntityKey, payload map[string]any) error

	// RenderWorkSummary renders a markdown table of open issues and pull
	// requests in the scoped repository.
	RenderWorkSummary(ctx context.Context) (string, error)
}

// Scheduler posts delayed events into the actor runtime. Implemented by
// pkg/actor.Runtime.
type Scheduler interface {
	Schedule(delay time.Duration, key proto.EntityKey, ev proto.Event)
}

// Gateway implements Surface against a forge client.
type Gateway struct {
	repoPath     string
	installation string
	client       forge.Client
	scheduler    Scheduler
	limiter      *rate.Limiter
	logger       *logx.Logger
}

var _ Surface = (*Gateway)(nil)

// New creates a gateway scoped to the client's repository and an
// installation. The limiter bounds outbound hosting API calls made on the
// sandbox's behalf; rps <= 0 disables local limiting.
func New(client forge.Client, installation string, scheduler Scheduler, rps float64) *Gateway {
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
	return &Gateway{
		repoPath:     client.RepoPath(),
		installation: installation,
		client:       client,
		scheduler:    scheduler,
		limiter:      limiter,
		logger:       logx.NewLogger("gateway:" + client.RepoPath()),
	}
}

// RepoPath returns the owner/repo this gateway is scoped to.
func (g *Gateway) RepoPath() string { return g.repoPath }

// Installation returns the installation this gateway is scoped to.
func (g *Gateway) Installation() string { return g.installation }

// ForgeClient returns the underlying hosting API client. Trusted coordinator
// effects use it for operations outside the sandbox allow-list; it is never
// part of Surface.
func (g *Gateway) ForgeClient() forge.Client { return g.client }

// wait applies the local rate budget before an outbound call.
func (g *Gateway) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate budget wait: %w", err)
	}
	return nil
}

func (g *Gateway) GetIssue(ctx context.Context, number int) (*forge.Issue, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	return g.client.GetIssue(ctx, number)
}

func (g *Gateway) UpdateIssue(ctx context.Context, number int, update *forge.IssueUpdate) (*forge.Issue, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	g.logger.Debug("issue update: #%d", number)
	return g.client.UpdateIssue(ctx, number, update)
}

func (g *Gateway) GetMilestone(ctx context.Context, number int) (*forge.Milestone, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	return g.client.GetMilestone(ctx, number)
}

func (g *Gateway) UpdateMilestone(ctx context.Context, number int, update *forge.MilestoneUpdate) (*forge.Milestone, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	return g.client.UpdateMilestone(ctx, number, update)
}

func (g *Gateway) CreatePRComment(ctx context.Context, number int, body string) (*forge.Comment, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	return g.client.CreateComment(ctx, number, body)
}

func (g *Gateway) UpdatePR(ctx context.Context, number int, update *forge.PRUpdate) (*forge.PullRequest, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	return g.client.UpdatePR(ctx, number, update)
}

func (g *Gateway) ListPRFiles(ctx context.Context, number int) ([]string, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	return g.client.ListPRFiles(ctx, number)
}

func (g *Gateway) MergePR(ctx context.Context, number int, opts forge.PRMergeOptions) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	g.logger.Info("merging PR #%d (%s)", number, opts.Method)
	return g.client.MergePR(ctx, number, opts)
}

func (g *Gateway) AddLabels(ctx context.Context, number int, labels []string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	return g.client.AddLabels(ctx, number, labels)
}

// ScheduleCallback posts a delayed callback into the actor runtime. The
// target key must belong to the scoped repository; anything else is refused.
func (g *Gateway) ScheduleCallback(delay time.Duration, key proto.EntityKey, payload map[string]any) error {
	if g.scheduler == nil {
		return fmt.Errorf("no scheduler configured")
	}
	if scope := key.Scope(); scope != g.repoPath && !strings.HasPrefix(scope, g.repoPath+"#") {
		return fmt.Errorf("callback target %s outside gateway scope %s", key, g.repoPath)
	}
	g.scheduler.Schedule(delay, key, proto.CallbackEvent{Payload: payload})
	return nil
}

// RenderWorkSummary renders a markdown table of open work in the repository.
func (g *Gateway) RenderWorkSummary(ctx context.Context) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	issues, err := g.client.ListOpenIssues(ctx)
	if err != nil {
		return "", err
	}
	prs, err := g.client.ListOpenPRs(ctx)
	if err != nil {
		return "", err
	}
	return RenderSummary(g.repoPath, issues, prs), nil
}
