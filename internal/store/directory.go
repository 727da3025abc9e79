package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quennel-io/hearthlink/internal/directory"
)

// DirectoryStore persists the last known device and hub directory.
//
// Records are stored as the raw cloud JSON so a snapshot survives
// fields the record structs do not model.
type DirectoryStore struct {
	db *sql.DB
}

// NewDirectoryStore creates a SQLite-backed directory store.
func NewDirectoryStore(db *sql.DB) *DirectoryStore {
	return &DirectoryStore{db: db}
}

// Save replaces the stored directory with the given records.
// The swap is transactional; a failed save leaves the previous
// snapshot intact.
func (s *DirectoryStore) Save(ctx context.Context, devices []directory.DeviceRecord, hubs []directory.HubRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning directory save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	now := time.Now().UTC().Format(time.RFC3339)

	if _, err := tx.ExecContext(ctx, "DELETE FROM directory_devices"); err != nil {
		return fmt.Errorf("clearing device snapshot: %w", err)
	}
	for _, d := range devices {
		if d.Serial == "" {
			continue
		}
		raw, err := rawFor(d.Raw, d)
		if err != nil {
			return fmt.Errorf("encoding device %s: %w", d.Serial, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO directory_devices (serial, raw, updated_at) VALUES (?, ?, ?)",
			d.Serial, raw, now,
		); err != nil {
			return fmt.Errorf("saving device %s: %w", d.Serial, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM directory_hubs"); err != nil {
		return fmt.Errorf("clearing hub snapshot: %w", err)
	}
	for _, h := range hubs {
		if h.Serial == "" {
			continue
		}
		raw, err := rawFor(h.Raw, h)
		if err != nil {
			return fmt.Errorf("encoding hub %s: %w", h.Serial, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO directory_hubs (serial, raw, updated_at) VALUES (?, ?, ?)",
			h.Serial, raw, now,
		); err != nil {
			return fmt.Errorf("saving hub %s: %w", h.Serial, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing directory save: %w", err)
	}
	return nil
}

// Load returns the stored directory. Both slices are empty when no
// snapshot has been saved.
func (s *DirectoryStore) Load(ctx context.Context) ([]directory.DeviceRecord, []directory.HubRecord, error) {
	devices, err := loadDevices(ctx, s.db)
	if err != nil {
		return nil, nil, err
	}
	hubs, err := loadHubs(ctx, s.db)
	if err != nil {
		return nil, nil, err
	}
	return devices, hubs, nil
}

func loadDevices(ctx context.Context, db *sql.DB) ([]directory.DeviceRecord, error) {
	rows, err := db.QueryContext(ctx, "SELECT raw FROM directory_devices ORDER BY serial")
	if err != nil {
		return nil, fmt.Errorf("loading device snapshot: %w", err)
	}
	defer rows.Close()

	var devices []directory.DeviceRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		var d directory.DeviceRecord
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			// A corrupt row is dropped rather than failing the whole load.
			continue
		}
		d.Raw = json.RawMessage(raw)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

func loadHubs(ctx context.Context, db *sql.DB) ([]directory.HubRecord, error) {
	rows, err := db.QueryContext(ctx, "SELECT raw FROM directory_hubs ORDER BY serial")
	if err != nil {
		return nil, fmt.Errorf("loading hub snapshot: %w", err)
	}
	defer rows.Close()

	var hubs []directory.HubRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning hub row: %w", err)
		}
		var h directory.HubRecord
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			continue
		}
		h.Raw = json.RawMessage(raw)
		hubs = append(hubs, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hub rows: %w", err)
	}
	return hubs, nil
}

// rawFor prefers the untouched cloud JSON; records built without one
// are marshalled from the struct.
func rawFor(raw json.RawMessage, v any) (string, error) {
	if len(raw) > 0 {
		return string(raw), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
