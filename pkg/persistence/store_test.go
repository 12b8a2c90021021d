package persistence

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordinator/pkg/actor"
	"coordinator/pkg/proto"
)

func openTestDB(t *testing.T) *SnapshotStore {
	t.Helper()
	db, err := OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSnapshotStore(db)
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := openTestDB(t)
	key := proto.PRKeyFromPath("acme/widgets", 42)

	_, err := store.LoadLatest(key)
	assert.ErrorIs(t, err, actor.ErrNotFound)

	snap := &actor.Snapshot{
		Key:       key,
		State:     "reviewing",
		Context:   json.RawMessage(`{"pr_number":42}`),
		Version:   1,
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Put(snap))

	got, err := store.LoadLatest(key)
	require.NoError(t, err)
	assert.Equal(t, snap.Key, got.Key)
	assert.Equal(t, snap.State, got.State)
	assert.JSONEq(t, string(snap.Context), string(got.Context))
	assert.Equal(t, uint64(1), got.Version)
}

func TestPutEnforcesVersionContract(t *testing.T) {
	store := openTestDB(t)
	key := proto.PRKeyFromPath("acme/widgets", 7)

	require.NoError(t, store.Put(&actor.Snapshot{Key: key, State: "pending", Version: 1}))
	require.NoError(t, store.Put(&actor.Snapshot{Key: key, State: "reviewing", Version: 2}))

	// Stale version and skipped version both conflict.
	assert.ErrorIs(t, store.Put(&actor.Snapshot{Key: key, State: "fixing", Version: 2}), actor.ErrConflict)
	assert.ErrorIs(t, store.Put(&actor.Snapshot{Key: key, State: "fixing", Version: 4}), actor.ErrConflict)

	got, err := store.LoadLatest(key)
	require.NoError(t, err)
	assert.Equal(t, proto.State("reviewing"), got.State)
	assert.Equal(t, uint64(2), got.Version)
}

func TestPutFirstVersionMustBeOne(t *testing.T) {
	store := openTestDB(t)
	key := proto.RepoKeyFromPath("acme/widgets")

	assert.ErrorIs(t, store.Put(&actor.Snapshot{Key: key, State: "idle", Version: 2}), actor.ErrConflict)
	require.NoError(t, store.Put(&actor.Snapshot{Key: key, State: "idle", Version: 1}))
}

func TestLoadHistoryReturnsAllVersions(t *testing.T) {
	store := openTestDB(t)
	key := proto.PRKeyFromPath("acme/widgets", 9)

	for v, state := range []proto.State{"pending", "reviewing", "approved"} {
		require.NoError(t, store.Put(&actor.Snapshot{Key: key, State: state, Version: uint64(v + 1)}))
	}

	history, err := store.LoadHistory(key)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, proto.State("pending"), history[0].State)
	assert.Equal(t, proto.State("approved"), history[2].State)
}

func TestListKeysByType(t *testing.T) {
	store := openTestDB(t)

	require.NoError(t, store.Put(&actor.Snapshot{Key: proto.PRKeyFromPath("acme/widgets", 1), State: "pending", Version: 1}))
	require.NoError(t, store.Put(&actor.Snapshot{Key: proto.PRKeyFromPath("acme/widgets", 2), State: "pending", Version: 1}))
	require.NoError(t, store.Put(&actor.Snapshot{Key: proto.RepoKeyFromPath("acme/widgets"), State: "idle", Version: 1}))

	prs, err := store.ListKeysByType(proto.EntityPR)
	require.NoError(t, err)
	assert.Len(t, prs, 2)

	repos, err := store.ListKeysByType(proto.EntityRepo)
	require.NoError(t, err)
	assert.Len(t, repos, 1)
}
