package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolp(b bool) *bool { return &b }
func intp(i int) *int    { return &i }

func TestResolveInheritance(t *testing.T) {
	org := &ScopeConfig{
		RequireHumanApproval: boolp(true),
		RiskThreshold:        intp(5),
		CriticalPaths:        []string{"infra/**"},
	}
	repo := &ScopeConfig{
		RequireHumanApproval: boolp(false),
	}
	issue := &ScopeConfig{
		RiskThreshold: intp(2),
	}

	got := Resolve(org, repo, issue)
	assert.False(t, got.RequireHumanApproval, "repo overrides org")
	assert.Equal(t, 2, got.RiskThreshold, "issue overrides both")
	assert.Equal(t, []string{"infra/**"}, got.CriticalPaths, "inherited from org")
	assert.False(t, got.AllowFullAutonomy, "undeclared everywhere defaults to false")
}

func TestResolveNilScopes(t *testing.T) {
	got := Resolve(nil, nil, nil)
	assert.False(t, got.RequireHumanApproval)
	assert.Equal(t, 0, got.RiskThreshold)
	assert.Nil(t, got.CriticalPaths)

	got = Resolve(nil, &ScopeConfig{AllowFullAutonomy: boolp(true)}, nil)
	assert.True(t, got.AllowFullAutonomy)
}

func TestResolveListOverrideVsExtend(t *testing.T) {
	org := &ScopeConfig{CriticalPaths: []string{"infra/**", "secrets/**"}}

	// Plain declaration overrides.
	got := Resolve(org, &ScopeConfig{CriticalPaths: []string{"db/**"}}, nil)
	assert.Equal(t, []string{"db/**"}, got.CriticalPaths)

	// Extend unions with the outer scope, nearest first.
	got = Resolve(org, &ScopeConfig{
		CriticalPaths:       []string{"db/**", "infra/**"},
		ExtendCriticalPaths: true,
	}, nil)
	assert.Equal(t, []string{"db/**", "infra/**", "secrets/**"}, got.CriticalPaths)

	// An empty declared list with extend still walks outward.
	got = Resolve(org, &ScopeConfig{ExtendCriticalPaths: true, CriticalPaths: []string{}}, nil)
	assert.Equal(t, []string{"infra/**", "secrets/**"}, got.CriticalPaths)
}

func TestResolveLabelLists(t *testing.T) {
	org := &ScopeConfig{AutoApproveLabels: []string{"docs"}}
	repo := &ScopeConfig{
		AutoApproveLabels:       []string{"chore"},
		ExtendAutoApproveLabels: true,
		RequireApprovalLabels:   []string{"security"},
	}

	got := Resolve(org, repo, nil)
	assert.Equal(t, []string{"chore", "docs"}, got.AutoApproveLabels)
	assert.Equal(t, []string{"security"}, got.RequireApprovalLabels)
}

func TestGatePrecedence(t *testing.T) {
	cfg := Config{
		AllowFullAutonomy:     true,
		AutoApproveLabels:     []string{"docs"},
		RequireApprovalLabels: []string{"security"},
		CriticalPaths:         []string{"db/migrations/**"},
	}

	// Require-approval label beats everything.
	d := Gate(cfg, []string{"docs", "security"}, nil)
	assert.False(t, d.AutoApproved)
	assert.Contains(t, d.Reason, "security")

	// Critical path beats auto-approve label and autonomy.
	d = Gate(cfg, []string{"docs"}, []string{"db/migrations/0001_init.sql"})
	assert.False(t, d.AutoApproved)
	assert.Contains(t, d.Reason, "critical path")

	// Auto-approve label clears the change.
	d = Gate(cfg, []string{"docs"}, []string{"README.md"})
	assert.True(t, d.AutoApproved)

	// Autonomy clears unlabeled changes.
	d = Gate(cfg, nil, []string{"pkg/server/server.go"})
	assert.True(t, d.AutoApproved)
}

func TestGateRequireHumanBlocksAutonomy(t *testing.T) {
	cfg := Config{
		RequireHumanApproval: true,
		AllowFullAutonomy:    true,
		AutoApproveLabels:    []string{"docs"},
	}

	d := Gate(cfg, nil, nil)
	assert.False(t, d.AutoApproved)
	assert.Equal(t, "policy requires human approval", d.Reason)

	// The auto-approve label is also checked after the blanket flag.
	d = Gate(cfg, []string{"docs"}, nil)
	assert.False(t, d.AutoApproved)
}

func TestGateDefaultDenies(t *testing.T) {
	d := Gate(Config{}, nil, nil)
	assert.False(t, d.AutoApproved)
	assert.Equal(t, "no auto-approve rule matched", d.Reason)
}

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"infra/**", "infra/main.tf", true},
		{"infra/**", "infra/modules/vpc/main.tf", true},
		{"infra/**", "infra", true},
		{"infra/**", "infrastructure/main.tf", false},
		{"*.sql", "schema.sql", true},
		{"*.sql", "db/schema.sql", false},
		{"db/*.sql", "db/schema.sql", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchGlob(tc.pattern, tc.path), "%s vs %s", tc.pattern, tc.path)
	}
}
