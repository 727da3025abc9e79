package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CursorStore persists the event polling high-water mark.
type CursorStore struct {
	db *sql.DB
}

// NewCursorStore creates a SQLite-backed cursor store.
func NewCursorStore(db *sql.DB) *CursorStore {
	return &CursorStore{db: db}
}

// Save records the start time (epoch seconds) of the newest event seen.
func (s *CursorStore) Save(ctx context.Context, lastEventTime int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_cursor (id, last_event_time, updated_at)
		 VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   last_event_time = excluded.last_event_time,
		   updated_at = excluded.updated_at`,
		lastEventTime,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving event cursor: %w", err)
	}
	return nil
}

// Load returns the stored high-water mark, or 0 when none exists.
func (s *CursorStore) Load(ctx context.Context) (int64, error) {
	var last int64
	err := s.db.QueryRowContext(ctx,
		"SELECT last_event_time FROM event_cursor WHERE id = 1",
	).Scan(&last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("loading event cursor: %w", err)
	}
	return last, nil
}
