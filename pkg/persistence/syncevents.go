package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"coordinator/pkg/proto"
)

// SyncEvent is one journaled sync trigger or item-level action. The journal
// is how operators answer "what did the sync coordinator do to my repo and
// when"; the actor's own snapshot history only covers state transitions.
//
//nolint:govet // logical field grouping preferred over memory optimization
type SyncEvent struct {
	ID        string              `json:"id"`
	RepoPath  string              `json:"repo_path"`
	Direction proto.SyncDirection `json:"direction"`
	Status    proto.SyncStatus    `json:"status"`
	ItemID    string              `json:"item_id,omitempty"`
	Detail    string              `json:"detail,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// SyncEventStore is the sync journal.
type SyncEventStore struct {
	db *sql.DB
}

// NewSyncEventStore creates a store over the given connection.
func NewSyncEventStore(db *sql.DB) *SyncEventStore {
	return &SyncEventStore{db: db}
}

// SyncEvents returns a store over the singleton connection.
func SyncEvents() *SyncEventStore {
	return NewSyncEventStore(GetDB())
}

// Insert journals a new event. A zero ID gets one assigned.
func (s *SyncEventStore) Insert(ev *SyncEvent) error {
	if ev.ID == "" {
		ev.ID = proto.NewID()
	}
	now := time.Now().UTC()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}
	ev.UpdatedAt = now
	if ev.Status == "" {
		ev.Status = proto.SyncPending
	}

	_, err := s.db.Exec(`
		INSERT INTO sync_events (id, repo_path, direction, status, item_id, detail, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.RepoPath, string(ev.Direction), string(ev.Status), ev.ItemID, ev.Detail, ev.CreatedAt, ev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting sync event %s: %w", ev.ID, err)
	}
	return nil
}

// Begin journals a pending action and returns its journal id. It satisfies
// effect.SyncJournal.
func (s *SyncEventStore) Begin(repoPath string, direction proto.SyncDirection, itemID, detail string) (string, error) {
	ev := &SyncEvent{
		RepoPath:  repoPath,
		Direction: direction,
		ItemID:    itemID,
		Detail:    detail,
	}
	if err := s.Insert(ev); err != nil {
		return "", err
	}
	return ev.ID, nil
}

// Finish moves a journaled action to its final status. It satisfies
// effect.SyncJournal.
func (s *SyncEventStore) Finish(id string, status proto.SyncStatus, detail string) error {
	return s.UpdateStatus(id, status, detail)
}

// UpdateStatus moves one event through its lifecycle.
func (s *SyncEventStore) UpdateStatus(id string, status proto.SyncStatus, detail string) error {
	res, err := s.db.Exec(`
		UPDATE sync_events SET status = ?, detail = ?, updated_at = ?
		WHERE id = ?`,
		string(status), detail, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating sync event %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("sync event %s not found", id)
	}
	return nil
}

// ListByStatus returns a repo's events with the given status, oldest first.
func (s *SyncEventStore) ListByStatus(repoPath string, status proto.SyncStatus) ([]*SyncEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, repo_path, direction, status, item_id, detail, created_at, updated_at
		FROM sync_events
		WHERE repo_path = ? AND status = ?
		ORDER BY created_at ASC`, repoPath, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing sync events for %s: %w", repoPath, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*SyncEvent
	for rows.Next() {
		var (
			ev        SyncEvent
			direction string
			st        string
		)
		if err := rows.Scan(&ev.ID, &ev.RepoPath, &direction, &st, &ev.ItemID, &ev.Detail, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning sync event row: %w", err)
		}
		ev.Direction = proto.SyncDirection(direction)
		ev.Status = proto.SyncStatus(st)
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync events for %s: %w", repoPath, err)
	}
	return out, nil
}
