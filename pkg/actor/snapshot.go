package actor

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"coordinator/pkg/proto"
)

// Snapshot is the durable, versioned serialization of one actor. Version is
// a monotonically increasing write-conflict guard: any write based on a stale
// version is rejected and must be retried after re-reading. Exactly one
// committed snapshot exists per (entityKey, version).
type Snapshot struct {
	Key       proto.EntityKey `json:"entity_key"`
	State     proto.State     `json:"state"`
	Context   json.RawMessage `json:"context"`
	Version   uint64          `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so callers cannot mutate committed state.
func (s *Snapshot) Clone() *Snapshot {
	out := *s
	out.Context = append(json.RawMessage(nil), s.Context...)
	return &out
}

// Sentinel errors for snapshot stores.
var (
	// ErrConflict means the put was based on a stale version.
	ErrConflict = errors.New("snapshot version conflict")
	// ErrNotFound means no snapshot exists for the key.
	ErrNotFound = errors.New("snapshot not found")
)

// Store is the durable record collaborator interface. Writes are versioned
// optimistic-concurrency writes; the store never holds a lock across an
// external call because the runtime never asks it to.
type Store interface {
	// LoadLatest returns the highest-version snapshot for a key, or
	// ErrNotFound.
	LoadLatest(key proto.EntityKey) (*Snapshot, error)

	// Put commits a snapshot. The write succeeds only when snap.Version is
	// exactly one greater than the latest committed version (or 1 for a new
	// key); otherwise Put returns ErrConflict.
	Put(snap *Snapshot) error
}

// MemStore is an in-memory Store used by tests and as the rebuildable
// routing cache. It enforces the same compare-and-swap contract as the
// durable sqlite store.
type MemStore struct {
	mu    sync.Mutex
	store map[proto.EntityKey]*Snapshot
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{store: make(map[proto.EntityKey]*Snapshot)}
}

// LoadLatest implements Store.
func (m *MemStore) LoadLatest(key proto.EntityKey) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.store[key]
	if !ok {
		return nil, ErrNotFound
	}
	return snap.Clone(), nil
}

// Put implements Store with the compare-and-swap version contract.
func (m *MemStore) Put(snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest uint64
	if cur, ok := m.store[snap.Key]; ok {
		latest = cur.Version
	}
	if snap.Version != latest+1 {
		return ErrConflict
	}
	m.store[snap.Key] = snap.Clone()
	return nil
}

// Len returns the number of stored keys.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}
