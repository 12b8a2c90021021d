package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"coordinator/pkg/proto"
)

// OutcomeStore records reviewer verdicts as an append-only audit table,
// independent of the snapshot history so the verdict list survives actor
// resets.
type OutcomeStore struct {
	db *sql.DB
}

// NewOutcomeStore creates a store over the given connection.
func NewOutcomeStore(db *sql.DB) *OutcomeStore {
	return &OutcomeStore{db: db}
}

// Outcomes returns a store over the singleton connection.
func Outcomes() *OutcomeStore {
	return NewOutcomeStore(GetDB())
}

// Record appends one reviewer verdict for an entity.
func (s *OutcomeStore) Record(key proto.EntityKey, outcome proto.ReviewOutcome) error {
	createdAt := outcome.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO review_outcomes (entity_key, reviewer, decision, comment, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(key), outcome.Reviewer, string(outcome.Decision), outcome.Comment, createdAt)
	if err != nil {
		return fmt.Errorf("recording outcome for %s: %w", key, err)
	}
	return nil
}

// List returns the verdicts for an entity in recording order.
func (s *OutcomeStore) List(key proto.EntityKey) ([]proto.ReviewOutcome, error) {
	rows, err := s.db.Query(`
		SELECT reviewer, decision, comment, created_at
		FROM review_outcomes
		WHERE entity_key = ?
		ORDER BY id ASC`, string(key))
	if err != nil {
		return nil, fmt.Errorf("listing outcomes for %s: %w", key, err)
	}
	defer func() { _ = rows.Close() }()

	var out []proto.ReviewOutcome
	for rows.Next() {
		var (
			o        proto.ReviewOutcome
			decision string
		)
		if err := rows.Scan(&o.Reviewer, &decision, &o.Comment, &o.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning outcome row for %s: %w", key, err)
		}
		o.Decision = proto.ReviewDecision(decision)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcomes for %s: %w", key, err)
	}
	return out, nil
}
