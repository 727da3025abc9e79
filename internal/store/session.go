package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quennel-io/hearthlink/internal/cloud"
)

// SessionStore persists cloud session snapshots.
//
// A single row (id = 1) holds the most recent snapshot; saving
// overwrites it.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore creates a SQLite-backed session store.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Save writes the snapshot, replacing any previous one.
func (s *SessionStore) Save(ctx context.Context, snap cloud.Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cloud_session (id, token, token_expires_at, api_base, trusted_until, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   token = excluded.token,
		   token_expires_at = excluded.token_expires_at,
		   api_base = excluded.api_base,
		   trusted_until = excluded.trusted_until,
		   updated_at = excluded.updated_at`,
		snap.Token,
		formatTime(snap.TokenExpiresAt),
		snap.APIBase,
		formatTime(snap.TrustedUntil),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving session snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot. The second return value is false
// when no snapshot has been saved yet.
func (s *SessionStore) Load(ctx context.Context) (cloud.Snapshot, bool, error) {
	var snap cloud.Snapshot
	var expiresAt, trustedUntil string

	err := s.db.QueryRowContext(ctx,
		`SELECT token, token_expires_at, api_base, trusted_until
		 FROM cloud_session WHERE id = 1`,
	).Scan(&snap.Token, &expiresAt, &snap.APIBase, &trustedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cloud.Snapshot{}, false, nil
		}
		return cloud.Snapshot{}, false, fmt.Errorf("loading session snapshot: %w", err)
	}

	snap.TokenExpiresAt = parseTime(expiresAt)
	snap.TrustedUntil = parseTime(trustedUntil)
	return snap, true, nil
}

// Clear removes the stored snapshot.
func (s *SessionStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cloud_session WHERE id = 1"); err != nil {
		return fmt.Errorf("clearing session snapshot: %w", err)
	}
	return nil
}

// formatTime renders a timestamp for storage. The zero value is stored
// as an empty string so it round-trips exactly.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// parseTime is the inverse of formatTime.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, s) //nolint:errcheck // format is controlled
	return t
}
