// Package ingress routes verified hosting webhooks into actor events.
// Signature verification and TLS termination happen upstream; the router
// trusts its input and only decides which actor hears about what.
package ingress

import (
	"context"
	"fmt"
	"io"
	"net/http"

	gh "github.com/google/go-github/v82/github"

	"coordinator/pkg/logx"
	"coordinator/pkg/proto"
	"coordinator/pkg/review"
	"coordinator/pkg/sync"
)

// Poster delivers events into actor queues. Satisfied by the actor runtime.
type Poster interface {
	Post(key proto.EntityKey, ev proto.Event)
}

// ReviewerSource supplies the ordered reviewer list for a repository's pull
// requests, plus the author-role credential reviews run under.
type ReviewerSource interface {
	ReviewersFor(repoPath string) ([]proto.ReviewerConfig, string, error)
}

// FileSource fetches the paths a pull request touches. The approval gate
// matches them against critical-path globs, so a fetch failure blocks the
// review from starting rather than starting it path-blind.
type FileSource interface {
	PRFiles(ctx context.Context, repoPath string, number int) ([]string, error)
}

// Router maps webhook payloads to entity keys and events.
type Router struct {
	poster    Poster
	reviewers ReviewerSource
	files     FileSource
	logger    *logx.Logger
}

// NewRouter creates a webhook router. A nil file source leaves touched paths
// empty, which disables critical-path gating.
func NewRouter(poster Poster, reviewers ReviewerSource, files FileSource) *Router {
	return &Router{
		poster:    poster,
		reviewers: reviewers,
		files:     files,
		logger:    logx.NewLogger("ingress"),
	}
}

// ServeHTTP implements http.Handler for the webhook endpoint.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	event, err := gh.ParseWebHook(gh.WebHookType(r), payload)
	if err != nil {
		http.Error(w, "unparseable payload", http.StatusBadRequest)
		return
	}

	if err := rt.Route(event); err != nil {
		rt.logger.Error("webhook %s not routed: %v", gh.WebHookType(r), err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Route posts the actor events for one parsed webhook payload. Payload types
// with no actor impact are dropped silently; routing only fails when a
// payload that should map to an actor cannot.
func (rt *Router) Route(event any) error {
	switch e := event.(type) {
	case *gh.PushEvent:
		return rt.routePush(e)
	case *gh.IssuesEvent:
		return rt.routeIssues(e)
	case *gh.PullRequestEvent:
		return rt.routePullRequest(e)
	case *gh.PullRequestReviewEvent:
		return rt.routeReview(e)
	case *gh.InstallationEvent:
		rt.logger.Info("installation %s: %s", e.GetAction(), e.GetInstallation().GetAccount().GetLogin())
		return nil
	default:
		rt.logger.Debug("ignoring webhook payload %T", event)
		return nil
	}
}

func (rt *Router) routePush(e *gh.PushEvent) error {
	repoPath := e.GetRepo().GetFullName()
	if repoPath == "" {
		return fmt.Errorf("push event has no repository")
	}
	rt.poster.Post(proto.RepoKeyFromPath(repoPath), sync.TriggerEvent{
		RepoPath: repoPath,
		Reason:   "push",
	})
	return nil
}

// routeIssues treats any issue change as a sync trigger: the sync
// coordinator re-fetches and diffs rather than trusting the delta in the
// payload.
func (rt *Router) routeIssues(e *gh.IssuesEvent) error {
	repoPath := e.GetRepo().GetFullName()
	if repoPath == "" {
		return fmt.Errorf("issues event has no repository")
	}
	rt.poster.Post(proto.RepoKeyFromPath(repoPath), sync.TriggerEvent{
		RepoPath: repoPath,
		Reason:   "issues." + e.GetAction(),
	})
	return nil
}

func (rt *Router) routePullRequest(e *gh.PullRequestEvent) error {
	repoPath := e.GetRepo().GetFullName()
	number := e.GetPullRequest().GetNumber()
	if repoPath == "" || number == 0 {
		return fmt.Errorf("pull_request event missing repository or number")
	}
	key := proto.PRKeyFromPath(repoPath, number)

	switch e.GetAction() {
	case "opened", "ready_for_review":
		if rt.reviewers == nil {
			return fmt.Errorf("no reviewer source configured")
		}
		reviewers, credential, err := rt.reviewers.ReviewersFor(repoPath)
		if err != nil {
			return fmt.Errorf("resolving reviewers for %s: %w", repoPath, err)
		}
		var labels []string
		for _, l := range e.GetPullRequest().Labels {
			labels = append(labels, l.GetName())
		}
		var touched []string
		if rt.files != nil {
			touched, err = rt.files.PRFiles(context.Background(), repoPath, number)
			if err != nil {
				return fmt.Errorf("listing files for %s: %w", key, err)
			}
		}
		rt.poster.Post(key, review.ConfigLoadedEvent{
			PRNumber:         number,
			RepoPath:         repoPath,
			Reviewers:        reviewers,
			AuthorCredential: credential,
			Labels:           labels,
			TouchedPaths:     touched,
		})
		return nil

	case "closed":
		rt.poster.Post(key, review.CloseEvent{
			Merged:   e.GetPullRequest().GetMerged(),
			Actor:    e.GetSender().GetLogin(),
			Observed: true,
		})
		// The merge or close also changed the repo's remote snapshot.
		rt.poster.Post(proto.RepoKeyFromPath(repoPath), sync.TriggerEvent{
			RepoPath: repoPath,
			Reason:   "pull_request.closed",
		})
		return nil

	default:
		rt.logger.Debug("ignoring pull_request action %s for %s", e.GetAction(), key)
		return nil
	}
}

// routeReview only triggers a sync: the review coordinator's verdicts come
// from its own sandbox sessions, not from humans clicking approve, and a
// human approval that should end the run arrives as the closed/merged hook.
func (rt *Router) routeReview(e *gh.PullRequestReviewEvent) error {
	repoPath := e.GetRepo().GetFullName()
	if repoPath == "" {
		return fmt.Errorf("pull_request_review event has no repository")
	}
	rt.poster.Post(proto.RepoKeyFromPath(repoPath), sync.TriggerEvent{
		RepoPath: repoPath,
		Reason:   "pull_request_review." + e.GetAction(),
	})
	return nil
}
