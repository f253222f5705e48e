package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/etabotai/etabot/pkg/domain"
)

// AuditStore keeps a hash-chained log of run events in SQLite.
type AuditStore struct {
	mu    sync.Mutex
	db    *sql.DB
	actor string
	now   func() time.Time
}

var _ domain.AuditRepository = (*AuditStore)(nil)

// NewAuditStore wraps an opened database. Events are attributed to actor.
func NewAuditStore(db *sql.DB, actor string) *AuditStore {
	return &AuditStore{db: db, actor: actor, now: time.Now}
}

// Log appends an event, linking it to the last event in the table.
func (s *AuditStore) Log(ctx context.Context, runID, action string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var prev string
	err = tx.QueryRowContext(ctx, `SELECT hash FROM run_events ORDER BY seq DESC LIMIT 1`).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read last event: %w", err)
	}

	e := domain.Event{
		ID:        uuid.New().String(),
		RunID:     runID,
		Timestamp: s.now().UTC(),
		Action:    action,
		Actor:     s.actor,
		Metadata:  metadata,
		PrevHash:  prev,
	}
	e.Hash = e.CalculateHash()

	md, err := marshalMap(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO run_events(id, run_id, ts, action, actor, metadata, prev_hash, hash)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Timestamp.Format(time.RFC3339Nano), e.Action, e.Actor, md, e.PrevHash, e.Hash); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return tx.Commit()
}

// Events returns the run's events in insertion order. An empty runID returns all.
func (s *AuditStore) Events(ctx context.Context, runID string) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, run_id, ts, action, actor, metadata, prev_hash, hash FROM run_events
WHERE (? = '' OR run_id = ?)
ORDER BY seq`, runID, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e  domain.Event
			ts string
			md sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RunID, &ts, &e.Action, &e.Actor, &md, &e.PrevHash, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("event %s timestamp: %w", e.ID, err)
		}
		if e.Metadata, err = unmarshalMap(md); err != nil {
			return nil, fmt.Errorf("event %s metadata: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
