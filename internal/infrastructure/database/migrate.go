package database

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"time"
)

// Migrate applies the SQL files in fsys that have not been applied yet.
//
// Migrations are plain .sql files at the root of fsys, named
// YYYYMMDD_HHMMSS_description.sql, and run in filename order. Applied
// filenames are recorded in schema_migrations, so re-running Migrate on
// an up-to-date database is a no-op. There is no rollback path: the
// schema only moves forward, and a bad migration is fixed by shipping
// a follow-up one.
//
// Each migration runs in its own transaction. If one fails, the
// earlier ones stay committed, the failing one is rolled back, and the
// rest are not attempted; re-running after a fix continues from the
// failed file.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - fsys: Filesystem holding the .sql files (normally migrations.FS)
//
// Returns:
//   - error: The first migration failure, naming the file
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	sort.Strings(names)

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := db.applyMigration(ctx, fsys, name); err != nil {
			return fmt.Errorf("applying migration %s: %w", name, err)
		}
	}
	return nil
}

// appliedVersions returns the set of already-applied migration files.
func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scanning schema_migrations: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	return applied, nil
}

// applyMigration runs one migration file and records it, atomically.
func (db *DB) applyMigration(ctx context.Context, fsys fs.FS, name string) error {
	sqlText, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is a no-op after commit

	if _, err := tx.ExecContext(ctx, string(sqlText)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		name, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}
