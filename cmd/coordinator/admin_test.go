package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordinator/pkg/actor"
	"coordinator/pkg/metrics"
	"coordinator/pkg/persistence"
	"coordinator/pkg/proto"
	"coordinator/pkg/review"
	"coordinator/pkg/sandbox"
	syncmachine "coordinator/pkg/sync"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	db, err := persistence.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rt := actor.NewRuntime(persistence.NewSnapshotStore(db), actor.Services{}, actor.Options{})
	rt.Register(syncmachine.NewMachine(nil, syncmachine.Policy{}))
	rt.Register(review.NewMachine(nil, review.Policy{}))

	mux := http.NewServeMux()
	registerAdmin(mux, rt)
	return mux
}

func postJSON(t *testing.T, mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAdminSyncTrigger(t *testing.T) {
	mux := newTestMux(t)

	rec := postJSON(t, mux, "/admin/sync/trigger", `{"repo":"acme/widgets"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = postJSON(t, mux, "/admin/sync/trigger", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/sync/trigger", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdminSyncResolve(t *testing.T) {
	mux := newTestMux(t)

	rec := postJSON(t, mux, "/admin/sync/resolve",
		`{"repo":"acme/widgets","item_id":"issue-7","winner":"remote_to_local","actor":"ops"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = postJSON(t, mux, "/admin/sync/resolve",
		`{"repo":"acme/widgets","item_id":"issue-7","winner":"coin_flip"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, mux, "/admin/sync/resolve", `{"winner":"remote_to_local"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminSyncApprove(t *testing.T) {
	mux := newTestMux(t)

	rec := postJSON(t, mux, "/admin/sync/approve",
		`{"repo":"acme/widgets","item_id":"issue-7","actor":"ops"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = postJSON(t, mux, "/admin/sync/approve", `{"repo":"acme/widgets","item_id":"issue-7"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, mux, "/admin/sync/approve", `{"item_id":"issue-7","actor":"ops"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminReset(t *testing.T) {
	mux := newTestMux(t)

	rec := postJSON(t, mux, "/admin/reset", `{"key":"repo:acme/widgets","operator":"ops"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = postJSON(t, mux, "/admin/reset", `{"key":"bogus","operator":"ops"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, mux, "/admin/reset", `{"key":"repo:acme/widgets"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, mux, "/admin/reset", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminReviewClose(t *testing.T) {
	mux := newTestMux(t)

	rec := postJSON(t, mux, "/admin/review/close",
		`{"repo":"acme/widgets","pr_number":42,"merge":true,"actor":"ops"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = postJSON(t, mux, "/admin/review/close", `{"repo":"acme/widgets","pr_number":42}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, mux, "/admin/review/close", `{"pr_number":42,"actor":"ops"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminSyncJournal(t *testing.T) {
	db, err := persistence.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := persistence.NewSyncEventStore(db)
	require.NoError(t, store.Insert(&persistence.SyncEvent{
		RepoPath:  "acme/widgets",
		Direction: proto.SyncLocalToRemote,
		ItemID:    "issue-7",
		Status:    proto.SyncFailed,
		Detail:    "bad gateway",
	}))
	h := handleSyncJournal(store)

	req := httptest.NewRequest(http.MethodGet, "/admin/sync/journal?repo=acme/widgets&status=failed", nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "issue-7")

	req = httptest.NewRequest(http.MethodGet, "/admin/sync/journal", nil)
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/sync/journal?repo=acme/widgets", nil)
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdminEntityStats(t *testing.T) {
	prom := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1693311000,"42"]}]}}`))
	}))
	t.Cleanup(prom.Close)

	q, err := metrics.NewQueryService(prom.URL)
	require.NoError(t, err)
	h := handleEntityStats(q)

	req := httptest.NewRequest(http.MethodGet, "/admin/stats?entity=pr&window=30m", nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entity_type":"pr"`)
	assert.Contains(t, rec.Body.String(), `"dispatches":42`)

	req = httptest.NewRequest(http.MethodGet, "/admin/stats?window=soon", nil)
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/stats", nil)
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdminEntityStatsUnconfigured(t *testing.T) {
	h := handleEntityStats(nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessionTailRejections(t *testing.T) {
	launcher := sandbox.NewLauncher(sandbox.NewLocalExec(), postDiscard{}, sandbox.Config{Command: []string{"true"}})
	h := handleSessionTail(launcher)

	req := httptest.NewRequest(http.MethodGet, "/sessions/tail", nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/sessions/tail?id=nope", nil)
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type postDiscard struct{}

func (postDiscard) Post(_ proto.EntityKey, _ proto.Event) {}
