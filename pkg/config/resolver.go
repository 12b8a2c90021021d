package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"coordinator/pkg/approval"
	"coordinator/pkg/proto"
)

// Resolver answers the runtime's config-backed questions: which installation
// owns a repository, where its token comes from, who reviews its PRs, and
// what approval policy its changes run under. Policy lookups read the live
// singleton so config updates apply to the next run; the reviewer roster is
// snapshotted at construction.
type Resolver struct {
	roster *ReviewerRoster
}

// NewResolver builds a resolver over the roster file named in the loaded
// config.
func NewResolver() (*Resolver, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	roster, err := LoadReviewers(ResolvePath(cfg.Review.ReviewersFile))
	if err != nil {
		return nil, err
	}
	return &Resolver{roster: roster}, nil
}

// NewResolverWithRoster builds a resolver over an already-parsed roster.
func NewResolverWithRoster(roster *ReviewerRoster) *Resolver {
	return &Resolver{roster: roster}
}

// InstallationFor implements actor.InstallationResolver.
func (r *Resolver) InstallationFor(repoPath string) (string, error) {
	cfg, err := GetConfig()
	if err != nil {
		return "", err
	}
	for name, inst := range cfg.Installations {
		if slices.Contains(inst.Repos, repoPath) {
			return name, nil
		}
	}
	return "", fmt.Errorf("no installation covers repository %s", repoPath)
}

// InstallationToken implements gateway.CredentialSource. The token is read
// from the environment at call time and never cached.
func (r *Resolver) InstallationToken(_ context.Context, installation string) (string, error) {
	cfg, err := GetConfig()
	if err != nil {
		return "", err
	}
	inst, ok := cfg.Installations[installation]
	if !ok {
		return "", fmt.Errorf("unknown installation %q", installation)
	}
	token := os.Getenv(inst.TokenEnv)
	if token == "" {
		return "", fmt.Errorf("installation %q: environment variable %s is empty", installation, inst.TokenEnv)
	}
	return token, nil
}

// ReviewersFor implements ingress.ReviewerSource.
func (r *Resolver) ReviewersFor(repoPath string) ([]proto.ReviewerConfig, string, error) {
	rr := r.roster.For(repoPath)
	return rr.Reviewers, rr.AuthorCredential, nil
}

// ResolveFor implements review.GateSource and sync.GateSource. The issue
// number selects a per-issue override when one is declared; zero means no
// issue scope. An uninitialized config resolves to a policy that requires
// human approval.
func (r *Resolver) ResolveFor(repoPath string, issue int) approval.Config {
	cfg, err := GetConfig()
	if err != nil {
		requireHuman := true
		return approval.Resolve(&approval.ScopeConfig{RequireHumanApproval: &requireHuman}, nil, nil)
	}
	var issueScope *approval.ScopeConfig
	if issue > 0 {
		issueScope = cfg.Approval.Issues[fmt.Sprintf("%s#%d", repoPath, issue)]
	}
	return approval.Resolve(cfg.Approval.Org, cfg.Approval.Repos[repoPath], issueScope)
}

// ResolvePath makes config-relative paths absolute against the project dir.
func ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	dir := GetProjectDir()
	if dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}
