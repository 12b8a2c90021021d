package actor

import (
	"context"
	"fmt"
	"time"

	"coordinator/pkg/effect"
	"coordinator/pkg/forge"
	"coordinator/pkg/gateway"
	"coordinator/pkg/logx"
	"coordinator/pkg/proto"
)

// effectRuntime is the capability surface handed to effects. It is built
// fresh per processed event so the idempotency identity always matches the
// version about to be committed.
type effectRuntime struct {
	rt      *Runtime
	key     proto.EntityKey
	version uint64
	logger  *logx.Logger

	gw      gateway.Surface // resolved lazily
	gwError error
}

var _ effect.Runtime = (*effectRuntime)(nil)

func (r *Runtime) effectRuntime(key proto.EntityKey, version uint64) *effectRuntime {
	return &effectRuntime{
		rt:      r,
		key:     key,
		version: version,
		logger:  r.logger.WithSource(key.String()),
	}
}

// Gateway resolves the capability gateway scoped to this actor's repository
// and installation. Resolution failures surface on first use as typed
// transient errors rather than panics.
func (er *effectRuntime) Gateway() gateway.Surface {
	if er.gw != nil || er.gwError != nil {
		return er.gatewayOrStub()
	}

	svc := er.rt.services
	if svc.Gateways == nil || svc.Installations == nil {
		er.gwError = fmt.Errorf("no gateway configured")
		return er.gatewayOrStub()
	}

	repoPath := repoPathOf(er.key)
	installation, err := svc.Installations.InstallationFor(repoPath)
	if err != nil {
		er.gwError = fmt.Errorf("resolving installation for %s: %w", repoPath, err)
		return er.gatewayOrStub()
	}

	gw, err := svc.Gateways.For(context.Background(), repoPath, installation)
	if err != nil {
		er.gwError = err
		return er.gatewayOrStub()
	}
	er.gw = gw
	return gw
}

func (er *effectRuntime) gatewayOrStub() gateway.Surface {
	if er.gw != nil {
		return er.gw
	}
	return unavailableSurface{err: forge.Classify("gateway.resolve", 0, er.gwError)}
}

// Forge returns the hosting API client behind this actor's gateway. Unlike
// Gateway it surfaces resolution failures directly since trusted effects can
// handle the error themselves.
func (er *effectRuntime) Forge() (forge.Client, error) {
	er.Gateway()
	if er.gwError != nil {
		return nil, forge.Classify("gateway.resolve", 0, er.gwError)
	}
	gw, ok := er.gw.(*gateway.Gateway)
	if !ok {
		return nil, fmt.Errorf("gateway for %s does not expose a forge client", er.key)
	}
	return gw.ForgeClient(), nil
}

func (er *effectRuntime) Local() effect.LocalStore {
	return er.rt.services.Local
}

func (er *effectRuntime) Outcomes() effect.OutcomeSink {
	return er.rt.services.Outcomes
}

func (er *effectRuntime) Journal() effect.SyncJournal {
	return er.rt.services.Journal
}

func (er *effectRuntime) Post(key proto.EntityKey, ev proto.Event) {
	er.rt.Post(key, ev)
}

func (er *effectRuntime) PostDelayed(delay time.Duration, key proto.EntityKey, ev proto.Event) {
	er.rt.Schedule(delay, key, ev)
}

func (er *effectRuntime) StartSession(ctx context.Context, req effect.SessionRequest) (string, error) {
	if er.rt.services.Sessions == nil {
		return "", fmt.Errorf("no session launcher configured")
	}
	return er.rt.services.Sessions.StartSession(ctx, req)
}

func (er *effectRuntime) Info(format string, args ...any)  { er.logger.Info(format, args...) }
func (er *effectRuntime) Error(format string, args ...any) { er.logger.Error(format, args...) }
func (er *effectRuntime) Debug(format string, args ...any) { er.logger.Debug(format, args...) }

func (er *effectRuntime) EntityKey() proto.EntityKey { return er.key }
func (er *effectRuntime) Version() uint64            { return er.version }

func (er *effectRuntime) IdempotencyKey() string {
	return fmt.Sprintf("%s@%d", er.key, er.version)
}

// unavailableSurface satisfies gateway.Surface when no gateway could be
// resolved; every call fails with the resolution error, classified transient
// so the owning actor's retry policy applies.
type unavailableSurface struct {
	err error
}

var _ gateway.Surface = unavailableSurface{}

func (u unavailableSurface) RepoPath() string     { return "" }
func (u unavailableSurface) Installation() string { return "" }

func (u unavailableSurface) GetIssue(context.Context, int) (*forge.Issue, error) {
	return nil, u.err
}

func (u unavailableSurface) UpdateIssue(context.Context, int, *forge.IssueUpdate) (*forge.Issue, error) {
	return nil, u.err
}

func (u unavailableSurface) GetMilestone(context.Context, int) (*forge.Milestone, error) {
	return nil, u.err
}

func (u unavailableSurface) UpdateMilestone(context.Context, int, *forge.MilestoneUpdate) (*forge.Milestone, error) {
	return nil, u.err
}

func (u unavailableSurface) CreatePRComment(context.Context, int, string) (*forge.Comment, error) {
	return nil, u.err
}

func (u unavailableSurface) UpdatePR(context.Context, int, *forge.PRUpdate) (*forge.PullRequest, error) {
	return nil, u.err
}

func (u unavailableSurface) ListPRFiles(context.Context, int) ([]string, error) {
	return nil, u.err
}

func (u unavailableSurface) MergePR(context.Context, int, forge.PRMergeOptions) error {
	return u.err
}

func (u unavailableSurface) AddLabels(context.Context, int, []string) error {
	return u.err
}

func (u unavailableSurface) ScheduleCallback(time.Duration, proto.EntityKey, map[string]any) error {
	return u.err
}

func (u unavailableSurface) RenderWorkSummary(context.Context) (string, error) {
	return "", u.err
}
