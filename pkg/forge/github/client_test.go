package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordinator/pkg/forge"
)

// newTestClient points a client at an httptest server speaking the GitHub
// REST API.
func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClientWithBaseURL(srv.Client(), srv.URL+"/", "acme", "widgets")
	require.NoError(t, err)
	return c
}

func TestGetIssue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/7", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		fmt.Fprint(w, `{"number":7,"title":"flaky sync","state":"open","labels":[{"name":"bug"}],"html_url":"https://github.com/acme/widgets/issues/7"}`)
	})

	c := newTestClient(t, mux)
	issue, err := c.GetIssue(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, issue.Number)
	assert.Equal(t, "flaky sync", issue.Title)
	assert.Equal(t, []string{"bug"}, issue.Labels)
}

func TestGetIssueNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/99", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})

	c := newTestClient(t, mux)
	_, err := c.GetIssue(context.Background(), 99)
	require.Error(t, err)

	var fe *forge.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, forge.KindNotFound, fe.Kind)
	assert.Equal(t, "issues.get", fe.Op)
	assert.False(t, fe.Retryable())
}

func TestListOpenIssuesFiltersPullRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		fmt.Fprint(w, `[
			{"number":7,"title":"flaky sync","state":"open"},
			{"number":42,"title":"fix retries","state":"open","pull_request":{"url":"https://api.github.com/repos/acme/widgets/pulls/42"}}
		]`)
	})

	c := newTestClient(t, mux)
	issues, err := c.ListOpenIssues(context.Background())
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 7, issues[0].Number)
}

func TestCreateIssue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"number":101,"title":"new task","state":"open"}`)
	})

	c := newTestClient(t, mux)
	issue, err := c.CreateIssue(context.Background(), &forge.IssueCreate{Title: "new task", Body: "details"})
	require.NoError(t, err)
	assert.Equal(t, 101, issue.Number)
}

func TestUpdateIssueClose(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/7", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		fmt.Fprint(w, `{"number":7,"title":"flaky sync","state":"closed"}`)
	})

	c := newTestClient(t, mux)
	closed := "closed"
	issue, err := c.UpdateIssue(context.Background(), 7, &forge.IssueUpdate{State: &closed})
	require.NoError(t, err)
	assert.Equal(t, "closed", issue.State)
}

func TestMergePR(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/42/merge", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		fmt.Fprint(w, `{"sha":"abc123","merged":true}`)
	})

	c := newTestClient(t, mux)
	err := c.MergePR(context.Background(), 42, forge.PRMergeOptions{Method: "squash"})
	require.NoError(t, err)
}

func TestMergePRPermissionDenied(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/42/merge", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"Must have admin rights"}`)
	})

	c := newTestClient(t, mux)
	err := c.MergePR(context.Background(), 42, forge.PRMergeOptions{})
	require.Error(t, err)

	var fe *forge.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, forge.KindPermissionDenied, fe.Kind)
	assert.False(t, fe.Retryable())
}

func TestServerErrorIsTransient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/42", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	c := newTestClient(t, mux)
	_, err := c.GetPR(context.Background(), 42)
	require.Error(t, err)

	var fe *forge.Error
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Retryable())
}

func TestListOpenPRs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		fmt.Fprint(w, `[{"number":42,"title":"fix retries","state":"open","head":{"ref":"fix","sha":"abc"},"base":{"ref":"main"}}]`)
	})

	c := newTestClient(t, mux)
	prs, err := c.ListOpenPRs(context.Background())
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, "fix", prs[0].HeadBranch)
	assert.Equal(t, "main", prs[0].BaseBranch)
}

func TestRepoPath(t *testing.T) {
	c := NewClient("ghs_token", "acme", "widgets")
	assert.Equal(t, "acme/widgets", c.RepoPath())
	assert.Equal(t, forge.ProviderGitHub, c.Provider())
}
