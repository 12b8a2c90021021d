package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"coordinator/pkg/proto"
)

// RepoReviewers is one repository's reviewer roster: the ordered reviewer
// list plus the author-role credential its review sessions run under.
type RepoReviewers struct {
	AuthorCredential string                 `yaml:"author_credential"`
	Reviewers        []proto.ReviewerConfig `yaml:"reviewers"`
}

// ReviewerRoster is the parsed reviewers.yaml: a default roster plus
// per-repository overrides. An override replaces the default wholesale, so
// the consulted order is always exactly what one roster declares.
type ReviewerRoster struct {
	Default RepoReviewers            `yaml:"default"`
	Repos   map[string]RepoReviewers `yaml:"repos,omitempty"`
}

// LoadReviewers reads and validates a reviewer roster file.
func LoadReviewers(path string) (*ReviewerRoster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reviewers file %s: %w", path, err)
	}

	var roster ReviewerRoster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("failed to parse reviewers YAML %s: %w", path, err)
	}
	if err := roster.validate(); err != nil {
		return nil, fmt.Errorf("reviewers file %s: %w", path, err)
	}
	return &roster, nil
}

// For returns the roster for a repository, falling back to the default.
func (r *ReviewerRoster) For(repoPath string) RepoReviewers {
	if rr, ok := r.Repos[repoPath]; ok {
		return rr
	}
	return r.Default
}

func (r *ReviewerRoster) validate() error {
	if err := validateRoster("default", r.Default); err != nil {
		return err
	}
	for repo, rr := range r.Repos {
		if err := validateRoster(repo, rr); err != nil {
			return err
		}
	}
	return nil
}

func validateRoster(scope string, rr RepoReviewers) error {
	if len(rr.Reviewers) == 0 {
		return fmt.Errorf("roster %q lists no reviewers", scope)
	}
	if rr.AuthorCredential == "" {
		return fmt.Errorf("roster %q has no author_credential", scope)
	}
	seen := make(map[string]bool, len(rr.Reviewers))
	for i, rev := range rr.Reviewers {
		if rev.Agent == "" {
			return fmt.Errorf("roster %q reviewer %d has no agent", scope, i)
		}
		if seen[rev.Agent] {
			return fmt.Errorf("roster %q lists reviewer %q twice", scope, rev.Agent)
		}
		seen[rev.Agent] = true
		switch rev.Type {
		case proto.ReviewerAgent, proto.ReviewerHuman:
		default:
			return fmt.Errorf("roster %q reviewer %q has unknown type %q", scope, rev.Agent, rev.Type)
		}
		if rev.Credential == "" {
			return fmt.Errorf("roster %q reviewer %q has no credential", scope, rev.Agent)
		}
	}
	return nil
}
