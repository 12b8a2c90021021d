// Package forge provides abstractions for git hosting providers. It defines
// the common client interface the capability gateway and the sync coordinator
// are written against, plus the typed error classification both need to apply
// their own retry policies.
package forge

import (
	"context"
	"time"
)

// Provider represents a git hosting provider type.
type Provider string

const (
	ProviderGitHub Provider = "github"
)

// Issue is a normalized issue from any provider.
//
//nolint:govet // logical field grouping preferred over memory optimization
type Issue struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"` // open, closed
	Labels    []string   `json:"labels"`
	Milestone string     `json:"milestone,omitempty"`
	Assignees []string   `json:"assignees,omitempty"`
	URL       string     `json:"url"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// IssueUpdate carries the mutable fields of an issue. Nil means unchanged.
type IssueUpdate struct {
	Title     *string   `json:"title,omitempty"`
	Body      *string   `json:"body,omitempty"`
	State     *string   `json:"state,omitempty"`
	Labels    *[]string `json:"labels,omitempty"`
	Milestone *int      `json:"milestone,omitempty"`
}

// Milestone is a normalized milestone.
type Milestone struct {
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	State       string     `json:"state"`
	DueOn       *time.Time `json:"due_on,omitempty"`
}

// MilestoneUpdate carries the mutable fields of a milestone. Nil means unchanged.
type MilestoneUpdate struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	State       *string    `json:"state,omitempty"`
	DueOn       *time.Time `json:"due_on,omitempty"`
}

// PullRequest is a normalized pull request.
//
//nolint:govet // logical field grouping preferred over memory optimization
type PullRequest struct {
	Number     int        `json:"number"`
	URL        string     `json:"url"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	State      string     `json:"state"` // open, closed
	HeadBranch string     `json:"head_branch"`
	HeadSHA    string     `json:"head_sha"`
	BaseBranch string     `json:"base_branch"`
	Merged     bool       `json:"merged"`
	Mergeable  bool       `json:"mergeable"`
	MergedAt   *time.Time `json:"merged_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// PRUpdate carries the mutable fields of a pull request. Nil means unchanged.
type PRUpdate struct {
	Title *string `json:"title,omitempty"`
	Body  *string `json:"body,omitempty"`
	State *string `json:"state,omitempty"`
	Base  *string `json:"base,omitempty"`
}

// PRMergeOptions controls how a pull request is merged.
type PRMergeOptions struct {
	Method        string `json:"method"` // merge, squash, rebase
	CommitTitle   string `json:"commit_title,omitempty"`
	CommitMessage string `json:"commit_message,omitempty"`
}

// Comment is a normalized issue/PR comment.
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"url"`
}

// IssueCreate carries the fields of a new issue.
type IssueCreate struct {
	Title     string   `json:"title"`
	Body      string   `json:"body,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	Milestone *int     `json:"milestone,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
}

// Client is the provider-neutral hosting API surface. Every method is scoped
// to the single repository the client was constructed for; there is no
// cross-repository method.
type Client interface {
	// Provider returns the provider type.
	Provider() Provider

	// RepoPath returns the owner/repo path this client is bound to.
	RepoPath() string

	// GetIssue fetches one issue by number.
	GetIssue(ctx context.Context, number int) (*Issue, error)

	// ListOpenIssues lists all open issues in the repository.
	ListOpenIssues(ctx context.Context) ([]Issue, error)

	// CreateIssue opens a new issue.
	CreateIssue(ctx context.Context, create *IssueCreate) (*Issue, error)

	// UpdateIssue applies the non-nil fields of the update.
	UpdateIssue(ctx context.Context, number int, update *IssueUpdate) (*Issue, error)

	// GetMilestone fetches one milestone by number.
	GetMilestone(ctx context.Context, number int) (*Milestone, error)

	// UpdateMilestone applies the non-nil fields of the update.
	UpdateMilestone(ctx context.Context, number int, update *MilestoneUpdate) (*Milestone, error)

	// GetPR fetches one pull request by number.
	GetPR(ctx context.Context, number int) (*PullRequest, error)

	// ListOpenPRs lists all open pull requests in the repository.
	ListOpenPRs(ctx context.Context) ([]PullRequest, error)

	// UpdatePR applies the non-nil fields of the update.
	UpdatePR(ctx context.Context, number int, update *PRUpdate) (*PullRequest, error)

	// ListPRFiles lists the paths touched by a pull request.
	ListPRFiles(ctx context.Context, number int) ([]string, error)

	// MergePR merges a pull request.
	MergePR(ctx context.Context, number int, opts PRMergeOptions) error

	// CreateComment posts a comment on an issue or pull request.
	CreateComment(ctx context.Context, number int, body string) (*Comment, error)

	// AddLabels adds labels to an issue or pull request.
	AddLabels(ctx context.Context, number int, labels []string) error
}
