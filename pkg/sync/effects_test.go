package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordinator/pkg/effect"
	"coordinator/pkg/forge"
	"coordinator/pkg/gateway"
	"coordinator/pkg/proto"
)

// effectHarness implements the parts of effect.Runtime the sync effects use.
type effectHarness struct {
	key     proto.EntityKey
	store   *memStore
	client  *syncForge
	journal *memJournal
	posted  []proto.Event
}

func newEffectHarness() *effectHarness {
	return &effectHarness{
		key:    proto.RepoKeyFromPath("acme/widgets"),
		store:  &memStore{items: proto.ItemSet{}},
		client: &syncForge{},
	}
}

func (h *effectHarness) Gateway() gateway.Surface { return nil }
func (h *effectHarness) Local() effect.LocalStore {
	if h.store == nil {
		return nil
	}
	return h.store
}

func (h *effectHarness) Outcomes() effect.OutcomeSink { return nil }
func (h *effectHarness) Journal() effect.SyncJournal {
	if h.journal == nil {
		return nil
	}
	return h.journal
}

// memJournal records Begin/Finish pairs in order.
type memJournal struct {
	entries []journalEntry
}

type journalEntry struct {
	id        string
	itemID    string
	direction proto.SyncDirection
	status    proto.SyncStatus
	detail    string
}

func (j *memJournal) Begin(_ string, direction proto.SyncDirection, itemID, detail string) (string, error) {
	id := fmt.Sprintf("j%d", len(j.entries)+1)
	j.entries = append(j.entries, journalEntry{
		id:        id,
		itemID:    itemID,
		direction: direction,
		status:    proto.SyncPending,
		detail:    detail,
	})
	return id, nil
}

func (j *memJournal) Finish(id string, status proto.SyncStatus, detail string) error {
	for i := range j.entries {
		if j.entries[i].id == id {
			j.entries[i].status = status
			j.entries[i].detail = detail
			return nil
		}
	}
	return fmt.Errorf("no journal entry %s", id)
}

func (h *effectHarness) Forge() (forge.Client, error) {
	if h.client == nil {
		return nil, errors.New("no installation for repository")
	}
	return h.client, nil
}

func (h *effectHarness) Post(_ proto.EntityKey, ev proto.Event) {
	h.posted = append(h.posted, ev)
}

func (h *effectHarness) PostDelayed(_ time.Duration, _ proto.EntityKey, ev proto.Event) {
	h.posted = append(h.posted, ev)
}
func (h *effectHarness) StartSession(context.Context, effect.SessionRequest) (string, error) {
	return "", errors.New("not a session effect")
}
func (h *effectHarness) EntityKey() proto.EntityKey { return h.key }
func (h *effectHarness) Version() uint64            { return 1 }
func (h *effectHarness) IdempotencyKey() string     { return fmt.Sprintf("%s@1", h.key) }
func (h *effectHarness) Info(string, ...any)        {}
func (h *effectHarness) Error(string, ...any)       {}
func (h *effectHarness) Debug(string, ...any)       {}

type memStore struct {
	items   proto.ItemSet
	readErr error
	written proto.ItemSet
}

func (s *memStore) ReadItems(context.Context, string) (proto.ItemSet, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.items.Clone(), nil
}

func (s *memStore) WriteItems(_ context.Context, _ string, items proto.ItemSet) error {
	s.written = items.Clone()
	return nil
}

// syncForge stubs the forge client methods the sync effects touch.
type syncForge struct {
	forge.Client

	issues    []forge.Issue
	prs       []forge.PullRequest
	listErr   error
	created   []forge.IssueCreate
	updated   map[int]forge.IssueUpdate
	prUpdates map[int]forge.PRUpdate
	updateErr error
}

func (f *syncForge) ListOpenIssues(context.Context) ([]forge.Issue, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.issues, nil
}

func (f *syncForge) ListOpenPRs(context.Context) ([]forge.PullRequest, error) {
	return f.prs, nil
}

func (f *syncForge) CreateIssue(_ context.Context, create *forge.IssueCreate) (*forge.Issue, error) {
	f.created = append(f.created, *create)
	return &forge.Issue{Number: 100 + len(f.created), Title: create.Title, State: "open"}, nil
}

func (f *syncForge) UpdateIssue(_ context.Context, number int, update *forge.IssueUpdate) (*forge.Issue, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.updated == nil {
		f.updated = make(map[int]forge.IssueUpdate)
	}
	f.updated[number] = *update
	return &forge.Issue{Number: number}, nil
}

func (f *syncForge) UpdatePR(_ context.Context, number int, update *forge.PRUpdate) (*forge.PullRequest, error) {
	if f.prUpdates == nil {
		f.prUpdates = make(map[int]forge.PRUpdate)
	}
	f.prUpdates[number] = *update
	return &forge.PullRequest{Number: number}, nil
}

func lastEvent(t *testing.T, h *effectHarness) proto.Event {
	t.Helper()
	require.NotEmpty(t, h.posted)
	return h.posted[len(h.posted)-1]
}

func TestFetchEffectPostsSnapshot(t *testing.T) {
	h := newEffectHarness()
	h.store.items = proto.ItemSet{
		"item-a": {ID: "item-a", Kind: proto.WorkItemIssue, Number: 7, Title: "flaky sync", State: "open"},
	}
	h.client.issues = []forge.Issue{{Number: 7, Title: "flaky sync renamed", State: "open"}}
	h.client.prs = []forge.PullRequest{{Number: 42, Title: "fix retries", State: "open"}}

	require.NoError(t, (&FetchEffect{}).Execute(context.Background(), h))

	ev, ok := lastEvent(t, h).(SnapshotFetchedEvent)
	require.True(t, ok)
	assert.Len(t, ev.Local, 1)
	require.Len(t, ev.Remote, 2)

	// The remote issue matched the local number, so it keeps the local id.
	issue, ok := ev.Remote["item-a"]
	require.True(t, ok)
	assert.Equal(t, "flaky sync renamed", issue.Title)
	assert.NotEmpty(t, issue.Hash)

	pr, ok := ev.Remote["pr-42"]
	require.True(t, ok)
	assert.Equal(t, proto.WorkItemPR, pr.Kind)
}

func TestFetchEffectWithoutStoreFails(t *testing.T) {
	h := newEffectHarness()
	h.store = nil

	require.NoError(t, (&FetchEffect{}).Execute(context.Background(), h))

	ev, ok := lastEvent(t, h).(SyncFailedEvent)
	require.True(t, ok)
	assert.Equal(t, "fetch.local", ev.Op)
}

func TestFetchEffectClassifiesListFailure(t *testing.T) {
	h := newEffectHarness()
	h.client.listErr = &forge.Error{Kind: forge.KindRateLimited, Op: "issues.list", Err: errors.New("slow down")}

	require.NoError(t, (&FetchEffect{}).Execute(context.Background(), h))

	ev, ok := lastEvent(t, h).(SyncFailedEvent)
	require.True(t, ok)
	assert.Equal(t, "fetch.issues", ev.Op)
	assert.True(t, ev.Transient)
}

func TestFetchEffectPermanentFailure(t *testing.T) {
	h := newEffectHarness()
	h.client.listErr = &forge.Error{Kind: forge.KindPermissionDenied, Op: "issues.list", Err: errors.New("forbidden")}

	require.NoError(t, (&FetchEffect{}).Execute(context.Background(), h))

	ev, ok := lastEvent(t, h).(SyncFailedEvent)
	require.True(t, ok)
	assert.False(t, ev.Transient)
}

func TestApplyRemoteCreatesAndUpdates(t *testing.T) {
	h := newEffectHarness()
	eff := &ApplyRemoteEffect{Actions: []Action{
		{Kind: ActionCreate, Direction: proto.SyncLocalToRemote, Item: proto.WorkItem{
			ID: "item-new", Kind: proto.WorkItemIssue, Title: "add docs", State: "open",
		}},
		{Kind: ActionClose, Direction: proto.SyncLocalToRemote, Item: proto.WorkItem{
			ID: "item-old", Kind: proto.WorkItemIssue, Number: 9, Title: "stale", State: "open",
		}},
	}}

	require.NoError(t, eff.Execute(context.Background(), h))

	ev, ok := lastEvent(t, h).(RemoteAppliedEvent)
	require.True(t, ok)
	require.Len(t, ev.Results, 2)

	// Create picked up the assigned number and a fresh hash.
	assert.Equal(t, 101, ev.Results[0].Number)
	assert.NotEmpty(t, ev.Results[0].Hash)

	// Close flowed through as a state update.
	assert.Equal(t, "closed", ev.Results[1].State)
	require.Contains(t, h.client.updated, 9)
	assert.Equal(t, "closed", *h.client.updated[9].State)
}

func TestApplyRemoteSkipsPRCreate(t *testing.T) {
	h := newEffectHarness()
	eff := &ApplyRemoteEffect{Actions: []Action{
		{Kind: ActionCreate, Direction: proto.SyncLocalToRemote, Item: proto.WorkItem{
			ID: "pr-local", Kind: proto.WorkItemPR, Title: "local pr", State: "open",
		}},
	}}

	require.NoError(t, eff.Execute(context.Background(), h))

	ev, ok := lastEvent(t, h).(RemoteAppliedEvent)
	require.True(t, ok)
	assert.Empty(t, ev.Results)
	assert.Empty(t, h.client.prUpdates)
}

func TestApplyRemoteAbortsOnFirstFailure(t *testing.T) {
	h := newEffectHarness()
	h.client.updateErr = &forge.Error{Kind: forge.KindTransient, Op: "issues.update", Err: errors.New("bad gateway")}
	eff := &ApplyRemoteEffect{Actions: []Action{
		{Kind: ActionUpdate, Direction: proto.SyncLocalToRemote, Item: proto.WorkItem{
			ID: "item-a", Kind: proto.WorkItemIssue, Number: 7, Title: "x", State: "open",
		}},
		{Kind: ActionCreate, Direction: proto.SyncLocalToRemote, Item: proto.WorkItem{
			ID: "item-b", Kind: proto.WorkItemIssue, Title: "never reached", State: "open",
		}},
	}}

	require.NoError(t, eff.Execute(context.Background(), h))

	ev, ok := lastEvent(t, h).(SyncFailedEvent)
	require.True(t, ok)
	assert.Equal(t, "apply.update", ev.Op)
	assert.True(t, ev.Transient)
	assert.Empty(t, h.client.created)
}

func TestApplyRemoteJournalsActions(t *testing.T) {
	h := newEffectHarness()
	h.journal = &memJournal{}
	eff := &ApplyRemoteEffect{Actions: []Action{
		{Kind: ActionCreate, Direction: proto.SyncLocalToRemote, Item: proto.WorkItem{
			ID: "item-new", Kind: proto.WorkItemIssue, Title: "add docs", State: "open",
		}},
	}}

	require.NoError(t, eff.Execute(context.Background(), h))

	require.Len(t, h.journal.entries, 1)
	entry := h.journal.entries[0]
	assert.Equal(t, "item-new", entry.itemID)
	assert.Equal(t, proto.SyncLocalToRemote, entry.direction)
	assert.Equal(t, proto.SyncCompleted, entry.status)
	assert.Equal(t, "create", entry.detail)
}

func TestApplyRemoteJournalsFailure(t *testing.T) {
	h := newEffectHarness()
	h.journal = &memJournal{}
	h.client.updateErr = &forge.Error{Kind: forge.KindTransient, Op: "issues.update", Err: errors.New("bad gateway")}
	eff := &ApplyRemoteEffect{Actions: []Action{
		{Kind: ActionUpdate, Direction: proto.SyncLocalToRemote, Item: proto.WorkItem{
			ID: "item-a", Kind: proto.WorkItemIssue, Number: 7, Title: "x", State: "open",
		}},
	}}

	require.NoError(t, eff.Execute(context.Background(), h))

	require.Len(t, h.journal.entries, 1)
	assert.Equal(t, proto.SyncFailed, h.journal.entries[0].status)
	assert.Contains(t, h.journal.entries[0].detail, "bad gateway")
}

func TestApplyRemoteWithoutForge(t *testing.T) {
	h := newEffectHarness()
	h.client = nil

	require.NoError(t, (&ApplyRemoteEffect{}).Execute(context.Background(), h))

	ev, ok := lastEvent(t, h).(SyncFailedEvent)
	require.True(t, ok)
	assert.Equal(t, "apply.remote", ev.Op)
}

func TestCommitEffectWritesMergedSet(t *testing.T) {
	h := newEffectHarness()
	merged := proto.ItemSet{
		"item-a": {ID: "item-a", Kind: proto.WorkItemIssue, Number: 7, Title: "flaky sync", State: "open"},
	}

	require.NoError(t, (&CommitEffect{Items: merged}).Execute(context.Background(), h))

	_, ok := lastEvent(t, h).(CommittedEvent)
	require.True(t, ok)
	require.NotNil(t, h.store.written)
	assert.Equal(t, "flaky sync", h.store.written["item-a"].Title)
}
