package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coordinator/pkg/actor"
	"coordinator/pkg/proto"
)

// SnapshotStore is the durable actor.Store: every committed transition is a
// new row keyed by (entity_key, version), so the full state history stays
// queryable and the compare-and-swap contract falls out of the primary key.
type SnapshotStore struct {
	db *sql.DB
}

var _ actor.Store = (*SnapshotStore)(nil)

// NewSnapshotStore creates a store over the given connection.
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Snapshots returns a store over the singleton connection.
func Snapshots() *SnapshotStore {
	return NewSnapshotStore(GetDB())
}

// LoadLatest implements actor.Store.
func (s *SnapshotStore) LoadLatest(key proto.EntityKey) (*actor.Snapshot, error) {
	row := s.db.QueryRow(`
		SELECT version, state, context, updated_at
		FROM snapshots
		WHERE entity_key = ?
		ORDER BY version DESC
		LIMIT 1`, string(key))

	var (
		version   uint64
		state     string
		context   string
		updatedAt time.Time
	)
	if err := row.Scan(&version, &state, &context, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, actor.ErrNotFound
		}
		return nil, fmt.Errorf("loading snapshot for %s: %w", key, err)
	}

	return &actor.Snapshot{
		Key:       key,
		State:     proto.State(state),
		Context:   json.RawMessage(context),
		Version:   version,
		UpdatedAt: updatedAt,
	}, nil
}

// Put implements actor.Store with the compare-and-swap version contract: the
// insert happens in a transaction that first checks the latest committed
// version, so a stale writer gets actor.ErrConflict instead of clobbering a
// newer row.
func (s *SnapshotStore) Put(snap *actor.Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning snapshot txn: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var latest uint64
	err = tx.QueryRow(
		"SELECT COALESCE(MAX(version), 0) FROM snapshots WHERE entity_key = ?",
		string(snap.Key),
	).Scan(&latest)
	if err != nil {
		return fmt.Errorf("checking latest version for %s: %w", snap.Key, err)
	}
	if snap.Version != latest+1 {
		return actor.ErrConflict
	}

	context := string(snap.Context)
	if context == "" {
		context = "{}"
	}
	updatedAt := snap.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = tx.Exec(`
		INSERT INTO snapshots (entity_key, version, state, context, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(snap.Key), snap.Version, string(snap.State), context, updatedAt)
	if err != nil {
		return fmt.Errorf("inserting snapshot for %s: %w", snap.Key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot for %s: %w", snap.Key, err)
	}
	return nil
}

// LoadHistory returns every committed snapshot for a key in version order.
func (s *SnapshotStore) LoadHistory(key proto.EntityKey) ([]*actor.Snapshot, error) {
	rows, err := s.db.Query(`
		SELECT version, state, context, updated_at
		FROM snapshots
		WHERE entity_key = ?
		ORDER BY version ASC`, string(key))
	if err != nil {
		return nil, fmt.Errorf("loading history for %s: %w", key, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*actor.Snapshot
	for rows.Next() {
		var (
			version   uint64
			state     string
			context   string
			updatedAt time.Time
		)
		if err := rows.Scan(&version, &state, &context, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning history row for %s: %w", key, err)
		}
		out = append(out, &actor.Snapshot{
			Key:       key,
			State:     proto.State(state),
			Context:   json.RawMessage(context),
			Version:   version,
			UpdatedAt: updatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history for %s: %w", key, err)
	}
	return out, nil
}

// ListKeysByType returns every entity key of the given type with at least one
// committed snapshot. Used at startup to warm the routing cache.
func (s *SnapshotStore) ListKeysByType(entityType proto.EntityType) ([]proto.EntityKey, error) {
	rows, err := s.db.Query(
		"SELECT DISTINCT entity_key FROM snapshots WHERE entity_key LIKE ?",
		string(entityType)+":%")
	if err != nil {
		return nil, fmt.Errorf("listing keys for %s: %w", entityType, err)
	}
	defer func() { _ = rows.Close() }()

	var out []proto.EntityKey
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning key row: %w", err)
		}
		out = append(out, proto.EntityKey(key))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keys for %s: %w", entityType, err)
	}
	return out, nil
}
