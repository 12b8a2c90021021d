package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordinator/pkg/approval"
)

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	loadTestConfig(t)
	require.NoError(t, UpdateInstallations(map[string]InstallationConfig{
		"acme-install": {TokenEnv: "ACME_TOKEN", Repos: []string{"acme/widgets", "acme/gadgets"}},
	}))
	roster, err := LoadReviewers(writeRoster(t, rosterYAML))
	require.NoError(t, err)
	return NewResolverWithRoster(roster)
}

func TestResolverInstallationFor(t *testing.T) {
	r := testResolver(t)

	inst, err := r.InstallationFor("acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "acme-install", inst)

	_, err = r.InstallationFor("other/repo")
	assert.Error(t, err)
}

func TestResolverInstallationToken(t *testing.T) {
	r := testResolver(t)

	_, err := r.InstallationToken(context.Background(), "acme-install")
	require.Error(t, err, "empty env var must not yield a token")

	t.Setenv("ACME_TOKEN", "ghs_secret")
	token, err := r.InstallationToken(context.Background(), "acme-install")
	require.NoError(t, err)
	assert.Equal(t, "ghs_secret", token)

	_, err = r.InstallationToken(context.Background(), "unknown")
	assert.Error(t, err)
}

func TestResolverReviewersFor(t *testing.T) {
	r := testResolver(t)

	reviewers, cred, err := r.ReviewersFor("acme/gadgets")
	require.NoError(t, err)
	assert.Equal(t, "author-bot", cred)
	assert.Len(t, reviewers, 3)

	reviewers, cred, err = r.ReviewersFor("acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "widgets-author", cred)
	assert.Len(t, reviewers, 1)
}

func TestResolverResolveFor(t *testing.T) {
	r := testResolver(t)

	requireHuman := true
	relax := false
	require.NoError(t, UpdateApproval(&ApprovalConfig{
		Org: &approval.ScopeConfig{
			RequireHumanApproval: &requireHuman,
			CriticalPaths:        []string{"infra/**"},
		},
		Repos: map[string]*approval.ScopeConfig{
			"acme/widgets": {
				RequireHumanApproval: &relax,
				CriticalPaths:        []string{"db/migrations/**"},
				ExtendCriticalPaths:  true,
			},
		},
	}))

	// Repo scope overrides the bool, extends the path list.
	got := r.ResolveFor("acme/widgets", 0)
	assert.False(t, got.RequireHumanApproval)
	assert.ElementsMatch(t, []string{"infra/**", "db/migrations/**"}, got.CriticalPaths)

	// Repo without an override inherits the org scope.
	got = r.ResolveFor("acme/gadgets", 0)
	assert.True(t, got.RequireHumanApproval)
	assert.Equal(t, []string{"infra/**"}, got.CriticalPaths)
}

func TestResolverIssueScopeOverride(t *testing.T) {
	r := testResolver(t)

	requireHuman := true
	relax := false
	require.NoError(t, UpdateApproval(&ApprovalConfig{
		Org: &approval.ScopeConfig{RequireHumanApproval: &requireHuman},
		Issues: map[string]*approval.ScopeConfig{
			"acme/widgets#42": {RequireHumanApproval: &relax},
		},
	}))

	// The override binds to its one issue; everything else keeps the org
	// policy.
	assert.False(t, r.ResolveFor("acme/widgets", 42).RequireHumanApproval)
	assert.True(t, r.ResolveFor("acme/widgets", 43).RequireHumanApproval)
	assert.True(t, r.ResolveFor("acme/widgets", 0).RequireHumanApproval)
	assert.True(t, r.ResolveFor("acme/gadgets", 42).RequireHumanApproval)
}

func TestResolverResolveForUninitialized(t *testing.T) {
	SetConfigForTesting(nil)
	r := NewResolverWithRoster(&ReviewerRoster{})

	got := r.ResolveFor("acme/widgets", 0)
	assert.True(t, got.RequireHumanApproval)
}
