// Package approval implements the approval gate: the pure policy deciding
// whether a change may proceed automatically or needs a human.
//
// A resolved config is built field-by-field from a three-level inheritance
// chain, nearest scope first: issue, then repository, then organization. A
// scope that leaves a field nil inherits it from the next scope out. Array
// fields (critical paths, label lists) can instead EXTEND the outer scope,
// in which case the values union rather than override.
//
// Resolve never mutates state. Callers persist the resolved decision
// themselves when it must be audited.
package approval

import (
	"path"
	"strings"
)

// Config is the fully resolved approval policy for one change.
type Config struct {
	RequireHumanApproval  bool     `json:"require_human_approval"`
	AllowFullAutonomy     bool     `json:"allow_full_autonomy"`
	RiskThreshold         int      `json:"risk_threshold"`
	CriticalPaths         []string `json:"critical_paths"`
	AutoApproveLabels     []string `json:"auto_approve_labels"`
	RequireApprovalLabels []string `json:"require_approval_labels"`
}

// ScopeConfig is one scope's (partial) policy declaration. Nil fields mean
// "inherit from the next scope out". For the array fields, Extend* switches
// that field from override to union semantics.
//
//nolint:govet // logical field grouping preferred over memory optimization
type ScopeConfig struct {
	RequireHumanApproval *bool `json:"require_human_approval,omitempty" yaml:"require_human_approval,omitempty"`
	AllowFullAutonomy    *bool `json:"allow_full_autonomy,omitempty" yaml:"allow_full_autonomy,omitempty"`
	RiskThreshold        *int  `json:"risk_threshold,omitempty" yaml:"risk_threshold,omitempty"`

	CriticalPaths       []string `json:"critical_paths,omitempty" yaml:"critical_paths,omitempty"`
	ExtendCriticalPaths bool     `json:"extend_critical_paths,omitempty" yaml:"extend_critical_paths,omitempty"`

	AutoApproveLabels       []string `json:"auto_approve_labels,omitempty" yaml:"auto_approve_labels,omitempty"`
	ExtendAutoApproveLabels bool     `json:"extend_auto_approve_labels,omitempty" yaml:"extend_auto_approve_labels,omitempty"`

	RequireApprovalLabels       []string `json:"require_approval_labels,omitempty" yaml:"require_approval_labels,omitempty"`
	ExtendRequireApprovalLabels bool     `json:"extend_require_approval_labels,omitempty" yaml:"extend_require_approval_labels,omitempty"`
}

// Resolve walks issue, then repo, then org for each field, taking the first
// scope that declares a value. Any of the scopes may be nil.
func Resolve(org, repo, issue *ScopeConfig) Config {
	// nearest scope first
	chain := make([]*ScopeConfig, 0, 3)
	for _, sc := range []*ScopeConfig{issue, repo, org} {
		if sc != nil {
			chain = append(chain, sc)
		}
	}

	var out Config
	out.RequireHumanApproval = firstBool(chain, func(s *ScopeConfig) *bool { return s.RequireHumanApproval }, false)
	out.AllowFullAutonomy = firstBool(chain, func(s *ScopeConfig) *bool { return s.AllowFullAutonomy }, false)
	out.RiskThreshold = firstInt(chain, func(s *ScopeConfig) *int { return s.RiskThreshold }, 0)

	out.CriticalPaths = resolveList(chain,
		func(s *ScopeConfig) ([]string, bool) { return s.CriticalPaths, s.ExtendCriticalPaths })
	out.AutoApproveLabels = resolveList(chain,
		func(s *ScopeConfig) ([]string, bool) { return s.AutoApproveLabels, s.ExtendAutoApproveLabels })
	out.RequireApprovalLabels = resolveList(chain,
		func(s *ScopeConfig) ([]string, bool) { return s.RequireApprovalLabels, s.ExtendRequireApprovalLabels })

	return out
}

func firstBool(chain []*ScopeConfig, get func(*ScopeConfig) *bool, def bool) bool {
	for _, sc := range chain {
		if v := get(sc); v != nil {
			return *v
		}
	}
	return def
}

func firstInt(chain []*ScopeConfig, get func(*ScopeConfig) *int, def int) int {
	for _, sc := range chain {
		if v := get(sc); v != nil {
			return *v
		}
	}
	return def
}

// resolveList finds the nearest scope declaring the list. Scopes marked
// extend contribute their values and keep walking outward; the first
// non-extend declaration terminates the walk.
func resolveList(chain []*ScopeConfig, get func(*ScopeConfig) ([]string, bool)) []string {
	var out []string
	seen := make(map[string]bool)
	declared := false

	for _, sc := range chain {
		values, extend := get(sc)
		if values == nil {
			continue
		}
		declared = true
		for _, v := range values {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
		if !extend {
			break
		}
	}

	if !declared {
		return nil
	}
	return out
}

// Decision is the outcome of gating one change.
type Decision struct {
	AutoApproved bool   `json:"auto_approved"`
	Reason       string `json:"reason"`
}

// Gate decides whether a change with the given labels and touched files may
// proceed without a human. Precedence: require-approval labels win over
// everything, then critical paths, then the blanket require-human flag,
// then auto-approve labels, then full autonomy.
func Gate(cfg Config, labels, touchedPaths []string) Decision {
	if label := matchLabel(cfg.RequireApprovalLabels, labels); label != "" {
		return Decision{Reason: "label " + label + " requires human approval"}
	}
	if p := matchCriticalPath(cfg.CriticalPaths, touchedPaths); p != "" {
		return Decision{Reason: "critical path " + p + " requires human approval"}
	}
	if cfg.RequireHumanApproval {
		return Decision{Reason: "policy requires human approval"}
	}
	if label := matchLabel(cfg.AutoApproveLabels, labels); label != "" {
		return Decision{AutoApproved: true, Reason: "label " + label + " auto-approves"}
	}
	if cfg.AllowFullAutonomy {
		return Decision{AutoApproved: true, Reason: "full autonomy enabled"}
	}
	return Decision{Reason: "no auto-approve rule matched"}
}

func matchLabel(rules, labels []string) string {
	for _, rule := range rules {
		for _, label := range labels {
			if rule == label {
				return rule
			}
		}
	}
	return ""
}

func matchCriticalPath(globs, paths []string) string {
	for _, g := range globs {
		for _, p := range paths {
			if matchGlob(g, p) {
				return p
			}
		}
	}
	return ""
}

// matchGlob matches one path against one pattern. A trailing "/**" matches
// the directory and everything under it; otherwise path.Match semantics
// apply segment-wise.
func matchGlob(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return p == prefix || strings.HasPrefix(p, prefix+"/")
	}
	ok, err := path.Match(pattern, p)
	return err == nil && ok
}
