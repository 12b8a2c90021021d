// Package github implements the forge.Client interface for GitHub using the
// go-github library. The HTTP transport stack is, outermost first:
//
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (REST client with installation token auth)
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"coordinator/pkg/forge"
)

// Compile-time interface satisfaction check.
var _ forge.Client = (*Client)(nil)

// Client is a GitHub-backed forge client bound to a single repository.
type Client struct {
	gh    *gh.Client
	owner string
	repo  string
}

// NewClient creates a client for owner/repo authenticated with an
// installation-scoped token.
func NewClient(token, owner, repo string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{gh: client, owner: owner, repo: repo}
}

// NewClientWithBaseURL creates a client pointed at a custom API base URL.
// Intended for tests, allowing injection of an httptest server.
func NewClientWithBaseURL(httpClient *http.Client, baseURL, owner, repo string) (*Client, error) {
	client := gh.NewClient(httpClient)

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client, owner: owner, repo: repo}, nil
}

// Provider returns the forge provider type.
func (c *Client) Provider() forge.Provider { return forge.ProviderGitHub }

// RepoPath returns the owner/repo path this client is bound to.
func (c *Client) RepoPath() string { return c.owner + "/" + c.repo }

// classify maps a go-github error to the forge taxonomy. go-github surfaces
// primary rate limits as *gh.RateLimitError and secondary limits as
// *gh.AbuseRateLimitError before the generic *gh.ErrorResponse case.
func classify(op string, resp *gh.Response, err error) error {
	if err == nil {
		return nil
	}

	var rle *gh.RateLimitError
	var arle *gh.AbuseRateLimitError
	if errors.As(err, &rle) || errors.As(err, &arle) {
		return &forge.Error{Kind: forge.KindRateLimited, StatusCode: http.StatusTooManyRequests, Op: op, Err: err}
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	return forge.Classify(op, status, err)
}

// GetIssue fetches one issue by number.
func (c *Client) GetIssue(ctx context.Context, number int) (*forge.Issue, error) {
	issue, resp, err := c.gh.Issues.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, classify("issues.get", resp, err)
	}
	return mapIssue(issue), nil
}

// ListOpenIssues lists all open issues, excluding pull requests, which the
// GitHub issues API also returns.
func (c *Client) ListOpenIssues(ctx context.Context) ([]forge.Issue, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var all []forge.Issue
	for {
		issues, resp, err := c.gh.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, classify("issues.list", resp, err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			all = append(all, *mapIssue(issue))
		}
		if resp.NextPage == 0 {
			break
		}
		// IssueListByRepoOptions embeds both cursor and offset pagination;
		// the selector must name the offset one.
		opts.ListOptions.Page = resp.NextPage
	}
	return all, nil
}

// CreateIssue opens a new issue.
func (c *Client) CreateIssue(ctx context.Context, create *forge.IssueCreate) (*forge.Issue, error) {
	req := &gh.IssueRequest{
		Title:     &create.Title,
		Milestone: create.Milestone,
	}
	if create.Body != "" {
		req.Body = &create.Body
	}
	if len(create.Labels) > 0 {
		req.Labels = &create.Labels
	}
	if len(create.Assignees) > 0 {
		req.Assignees = &create.Assignees
	}
	issue, resp, err := c.gh.Issues.Create(ctx, c.owner, c.repo, req)
	if err != nil {
		return nil, classify("issues.create", resp, err)
	}
	return mapIssue(issue), nil
}

// UpdateIssue applies the non-nil fields of the update.
func (c *Client) UpdateIssue(ctx context.Context, number int, update *forge.IssueUpdate) (*forge.Issue, error) {
	req := &gh.IssueRequest{
		Title:     update.Title,
		Body:      update.Body,
		State:     update.State,
		Labels:    update.Labels,
		Milestone: update.Milestone,
	}
	issue, resp, err := c.gh.Issues.Edit(ctx, c.owner, c.repo, number, req)
	if err != nil {
		return nil, classify("issues.edit", resp, err)
	}
	return mapIssue(issue), nil
}

// GetMilestone fetches one milestone by number.
func (c *Client) GetMilestone(ctx context.Context, number int) (*forge.Milestone, error) {
	ms, resp, err := c.gh.Issues.GetMilestone(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, classify("milestones.get", resp, err)
	}
	return mapMilestone(ms), nil
}

// UpdateMilestone applies the non-nil fields of the update.
func (c *Client) UpdateMilestone(ctx context.Context, number int, update *forge.MilestoneUpdate) (*forge.Milestone, error) {
	req := &gh.Milestone{
		Title:       update.Title,
		Description: update.Description,
		State:       update.State,
	}
	if update.DueOn != nil {
		req.DueOn = &gh.Timestamp{Time: *update.DueOn}
	}
	ms, resp, err := c.gh.Issues.EditMilestone(ctx, c.owner, c.repo, number, req)
	if err != nil {
		return nil, classify("milestones.edit", resp, err)
	}
	return mapMilestone(ms), nil
}

// GetPR fetches one pull request by number.
func (c *Client) GetPR(ctx context.Context, number int) (*forge.PullRequest, error) {
	pr, resp, err := c.gh.PullRequests.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, classify("pulls.get", resp, err)
	}
	return mapPR(pr), nil
}

// ListOpenPRs lists all open pull requests.
func (c *Client) ListOpenPRs(ctx context.Context) ([]forge.PullRequest, error) {
	opts := &gh.PullRequestListOptions{
		State:       "open",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var all []forge.PullRequest
	for {
		prs, resp, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, classify("pulls.list", resp, err)
		}
		for _, pr := range prs {
			all = append(all, *mapPR(pr))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// ListPRFiles lists the paths touched by a pull request.
func (c *Client) ListPRFiles(ctx context.Context, number int) ([]string, error) {
	opts := &gh.ListOptions{PerPage: 100}

	var paths []string
	for {
		files, resp, err := c.gh.PullRequests.ListFiles(ctx, c.owner, c.repo, number, opts)
		if err != nil {
			return nil, classify("pulls.listFiles", resp, err)
		}
		for _, f := range files {
			paths = append(paths, f.GetFilename())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return paths, nil
}

// UpdatePR applies the non-nil fields of the update.
func (c *Client) UpdatePR(ctx context.Context, number int, update *forge.PRUpdate) (*forge.PullRequest, error) {
	req := &gh.PullRequest{
		Title: update.Title,
		Body:  update.Body,
		State: update.State,
	}
	if update.Base != nil {
		req.Base = &gh.PullRequestBranch{Ref: update.Base}
	}
	pr, resp, err := c.gh.PullRequests.Edit(ctx, c.owner, c.repo, number, req)
	if err != nil {
		return nil, classify("pulls.edit", resp, err)
	}
	return mapPR(pr), nil
}

// MergePR merges a pull request.
func (c *Client) MergePR(ctx context.Context, number int, opts forge.PRMergeOptions) error {
	ghOpts := &gh.PullRequestOptions{
		MergeMethod: opts.Method,
		CommitTitle: opts.CommitTitle,
	}
	result, resp, err := c.gh.PullRequests.Merge(ctx, c.owner, c.repo, number, opts.CommitMessage, ghOpts)
	if err != nil {
		return classify("pulls.merge", resp, err)
	}
	if result.Merged == nil || !*result.Merged {
		return &forge.Error{Kind: forge.KindUnknown, Op: "pulls.merge",
			Err: fmt.Errorf("merge not performed: %s", result.GetMessage())}
	}
	return nil
}

// CreateComment posts a comment on an issue or pull request.
func (c *Client) CreateComment(ctx context.Context, number int, body string) (*forge.Comment, error) {
	comment, resp, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number, &gh.IssueComment{
		Body: gh.Ptr(body),
	})
	if err != nil {
		return nil, classify("comments.create", resp, err)
	}
	return &forge.Comment{
		ID:        comment.GetID(),
		Body:      comment.GetBody(),
		Author:    comment.GetUser().GetLogin(),
		CreatedAt: comment.GetCreatedAt().Time,
		URL:       comment.GetHTMLURL(),
	}, nil
}

// AddLabels adds labels to an issue or pull request.
func (c *Client) AddLabels(ctx context.Context, number int, labels []string) error {
	_, resp, err := c.gh.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, labels)
	if err != nil {
		return classify("labels.add", resp, err)
	}
	return nil
}

func mapIssue(issue *gh.Issue) *forge.Issue {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}
	assignees := make([]string, 0, len(issue.Assignees))
	for _, a := range issue.Assignees {
		assignees = append(assignees, a.GetLogin())
	}

	out := &forge.Issue{
		Number:    issue.GetNumber(),
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		State:     issue.GetState(),
		Labels:    labels,
		Milestone: issue.GetMilestone().GetTitle(),
		Assignees: assignees,
		URL:       issue.GetHTMLURL(),
		UpdatedAt: issue.GetUpdatedAt().Time,
	}
	if issue.ClosedAt != nil {
		t := issue.ClosedAt.Time
		out.ClosedAt = &t
	}
	return out
}

func mapMilestone(ms *gh.Milestone) *forge.Milestone {
	out := &forge.Milestone{
		Number:      ms.GetNumber(),
		Title:       ms.GetTitle(),
		Description: ms.GetDescription(),
		State:       ms.GetState(),
	}
	if ms.DueOn != nil {
		t := ms.DueOn.Time
		out.DueOn = &t
	}
	return out
}

func mapPR(pr *gh.PullRequest) *forge.PullRequest {
	out := &forge.PullRequest{
		Number:     pr.GetNumber(),
		URL:        pr.GetHTMLURL(),
		Title:      pr.GetTitle(),
		Body:       pr.GetBody(),
		State:      pr.GetState(),
		HeadBranch: pr.GetHead().GetRef(),
		HeadSHA:    pr.GetHead().GetSHA(),
		BaseBranch: pr.GetBase().GetRef(),
		Merged:     pr.GetMerged(),
		Mergeable:  pr.GetMergeable(),
		UpdatedAt:  pr.GetUpdatedAt().Time,
	}
	if pr.MergedAt != nil {
		t := pr.MergedAt.Time
		out.MergedAt = &t
	}
	return out
}
