package sync

import (
	"context"
	"errors"
	"fmt"

	"coordinator/pkg/effect"
	"coordinator/pkg/forge"
	"coordinator/pkg/proto"
)

// Sync effects report back to the owning repo actor as events, never as
// returned errors: a failed step posts SYNC_FAILED so the machine's retry
// schedule stays in charge. A returned error here means a wiring bug.

// FetchEffect reads both sides of the sync: the local work-item store and
// the hosting API's open issues and pull requests.
type FetchEffect struct{}

// Type implements effect.Effect.
func (e *FetchEffect) Type() string { return "sync_fetch" }

// Execute implements effect.Effect.
func (e *FetchEffect) Execute(ctx context.Context, rt effect.Runtime) error {
	key := rt.EntityKey()
	store := rt.Local()
	if store == nil {
		rt.Post(key, SyncFailedEvent{Op: "fetch.local", Error: "no local store configured"})
		return nil
	}

	local, err := store.ReadItems(ctx, key.Scope())
	if err != nil {
		postFailure(rt, "fetch.local", err)
		return nil
	}

	client, err := rt.Forge()
	if err != nil {
		postFailure(rt, "fetch.remote", err)
		return nil
	}
	issues, err := client.ListOpenIssues(ctx)
	if err != nil {
		postFailure(rt, "fetch.issues", err)
		return nil
	}
	prs, err := client.ListOpenPRs(ctx)
	if err != nil {
		postFailure(rt, "fetch.prs", err)
		return nil
	}

	rt.Post(key, SnapshotFetchedEvent{
		Local:  local,
		Remote: normalizeRemote(issues, prs, local),
	})
	return nil
}

// normalizeRemote maps the hosting API listing onto the work-item model.
// Numbers already known locally keep their local ids so the diff lines the
// sides up; unmatched remote items get a number-derived id.
func normalizeRemote(issues []forge.Issue, prs []forge.PullRequest, local proto.ItemSet) proto.ItemSet {
	byNumber := make(map[string]string, len(local))
	for id, it := range local {
		if it.Number > 0 {
			byNumber[fmt.Sprintf("%s/%d", it.Kind, it.Number)] = id
		}
	}

	out := make(proto.ItemSet, len(issues)+len(prs))
	add := func(w proto.WorkItem) {
		id, ok := byNumber[fmt.Sprintf("%s/%d", w.Kind, w.Number)]
		if !ok {
			id = fmt.Sprintf("%s-%d", w.Kind, w.Number)
		}
		w.ID = id
		w.Hash = HashItem(w)
		out[id] = w
	}

	for _, is := range issues {
		add(proto.WorkItem{
			Kind:      proto.WorkItemIssue,
			Number:    is.Number,
			Title:     is.Title,
			Body:      is.Body,
			State:     is.State,
			Labels:    is.Labels,
			UpdatedAt: is.UpdatedAt,
		})
	}
	for _, pr := range prs {
		add(proto.WorkItem{
			Kind:      proto.WorkItemPR,
			Number:    pr.Number,
			Title:     pr.Title,
			Body:      pr.Body,
			State:     pr.State,
			UpdatedAt: pr.UpdatedAt,
		})
	}
	return out
}

// ApplyRemoteEffect pushes local-side actions to the hosting API. The run
// aborts on the first failure; the retry path re-fetches and recomputes the
// diff, so already-applied actions classify as no-ops the second time.
type ApplyRemoteEffect struct {
	Actions []Action
}

// Type implements effect.Effect.
func (e *ApplyRemoteEffect) Type() string { return "sync_apply_remote" }

// Execute implements effect.Effect.
func (e *ApplyRemoteEffect) Execute(ctx context.Context, rt effect.Runtime) error {
	client, err := rt.Forge()
	if err != nil {
		postFailure(rt, "apply.remote", err)
		return nil
	}

	repoPath := rt.EntityKey().Scope()
	journal := rt.Journal()
	results := make([]proto.WorkItem, 0, len(e.Actions))
	for _, a := range e.Actions {
		var entryID string
		if journal != nil {
			id, jerr := journal.Begin(repoPath, proto.SyncLocalToRemote, a.Item.ID, string(a.Kind))
			if jerr != nil {
				rt.Error("journaling %s of %s: %v", a.Kind, a.Item.ID, jerr)
			}
			entryID = id
		}
		item, err := applyRemote(ctx, client, a)
		if err != nil {
			finishJournal(rt, journal, entryID, proto.SyncFailed, err.Error())
			postFailure(rt, fmt.Sprintf("apply.%s", a.Kind), err)
			return nil
		}
		finishJournal(rt, journal, entryID, proto.SyncCompleted, "")
		if item != nil {
			results = append(results, *item)
		}
	}
	rt.Post(rt.EntityKey(), RemoteAppliedEvent{Results: results})
	return nil
}

// finishJournal closes a journal entry, best effort. The journal is operator
// tooling; a write failure never fails the sync itself.
func finishJournal(rt effect.Runtime, journal effect.SyncJournal, id string, status proto.SyncStatus, detail string) {
	if journal == nil || id == "" {
		return
	}
	if err := journal.Finish(id, status, detail); err != nil {
		rt.Error("closing journal entry %s: %v", id, err)
	}
}

func applyRemote(ctx context.Context, client forge.Client, a Action) (*proto.WorkItem, error) {
	item := a.Item

	if item.Kind == proto.WorkItemPR {
		// Pull requests originate on the hosting side; only title, body and
		// state flow upward. A local create for a PR has nothing to target.
		if a.Kind == ActionCreate {
			return nil, nil
		}
		state := item.State
		if a.Kind == ActionClose {
			state = "closed"
			item.State = "closed"
		}
		if _, err := client.UpdatePR(ctx, item.Number, &forge.PRUpdate{
			Title: &item.Title,
			Body:  &item.Body,
			State: &state,
		}); err != nil {
			return nil, err
		}
		item.Hash = HashItem(item)
		return &item, nil
	}

	if a.Kind == ActionCreate {
		created, err := client.CreateIssue(ctx, &forge.IssueCreate{
			Title:  item.Title,
			Body:   item.Body,
			Labels: item.Labels,
		})
		if err != nil {
			return nil, err
		}
		item.Number = created.Number
		item.State = created.State
		item.Hash = HashItem(item)
		return &item, nil
	}

	state := item.State
	if a.Kind == ActionClose {
		state = "closed"
		item.State = "closed"
	}
	if _, err := client.UpdateIssue(ctx, item.Number, &forge.IssueUpdate{
		Title:  &item.Title,
		Body:   &item.Body,
		State:  &state,
		Labels: &item.Labels,
	}); err != nil {
		return nil, err
	}
	item.Hash = HashItem(item)
	return &item, nil
}

// CommitEffect writes the merged item set back to the local store.
type CommitEffect struct {
	Items proto.ItemSet
}

// Type implements effect.Effect.
func (e *CommitEffect) Type() string { return "sync_commit" }

// Execute implements effect.Effect.
func (e *CommitEffect) Execute(ctx context.Context, rt effect.Runtime) error {
	key := rt.EntityKey()
	store := rt.Local()
	if store == nil {
		rt.Post(key, SyncFailedEvent{Op: "commit", Error: "no local store configured"})
		return nil
	}
	if err := store.WriteItems(ctx, key.Scope(), e.Items); err != nil {
		postFailure(rt, "commit", err)
		return nil
	}
	rt.Post(key, CommittedEvent{})
	return nil
}

// postFailure classifies an error and posts the matching SYNC_FAILED.
// Unclassified errors count as transient; only a definitive permanent
// verdict from the hosting API skips the retry schedule.
func postFailure(rt effect.Runtime, op string, err error) {
	transient := true
	var fe *forge.Error
	if errors.As(err, &fe) {
		transient = fe.Retryable()
	}
	rt.Error("sync %s failed: %v", op, err)
	rt.Post(rt.EntityKey(), SyncFailedEvent{Op: op, Error: err.Error(), Transient: transient})
}
