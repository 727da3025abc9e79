package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	// dirPerm restricts the database directory to the service user.
	dirPerm = 0750

	// filePerm keeps the database file owner-only; it holds the cloud
	// session token.
	filePerm = 0600

	// openPingTimeout bounds the connectivity check during Open.
	openPingTimeout = 5 * time.Second
)

// DB is the SQLite handle shared by the persistence stores. It embeds
// *sql.DB, so the stores use the standard query methods directly; this
// wrapper adds lifecycle, migration, and health-check support.
type DB struct {
	*sql.DB
}

// Config mirrors the database section of config.yaml.
type Config struct {
	// Path is the SQLite file location. Missing parent directories are
	// created on open.
	Path string

	// WALMode enables write-ahead logging so the bridge's poll writes
	// do not block concurrent reads.
	WALMode bool

	// BusyTimeout is how long a statement waits on a locked database,
	// in seconds.
	BusyTimeout int
}

// Open opens (creating if needed) the SQLite database at cfg.Path.
//
// The connection pool is capped at a single connection: SQLite allows
// one writer, and the session, directory, and cursor stores all write.
// File permissions are tightened to owner-only because the session
// table stores the cloud auth token.
//
// Parameters:
//   - cfg: Database configuration
//
// Returns:
//   - *DB: Open handle, verified with a ping
//   - error: If the directory cannot be created or the open fails
func Open(cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPerm); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", cfg.Path, cfg.BusyTimeout*1000)
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	db := &DB{DB: sqlDB}

	ctx, cancel := context.WithTimeout(context.Background(), openPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// The file may not exist yet on a fresh database; the pragma run by
	// the ping usually creates it, but a failure here is not fatal.
	_ = os.Chmod(cfg.Path, filePerm) //nolint:errcheck // Tightened on next open if the file appears later

	return db, nil
}

// Close releases the database handle. Safe to call on a zero DB.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// HealthCheck runs a trivial query to confirm the handle is usable.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
