package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/quennel-io/hearthlink/migrations"
)

func migrationFS(files map[string]string) fstest.MapFS {
	fsys := make(fstest.MapFS, len(files))
	for name, sql := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(sql)}
	}
	return fsys
}

func TestMigrate_AppliesInOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// The second file alters a table the first one creates, so running
	// out of order would fail.
	fsys := migrationFS(map[string]string{
		"20260101_000000_base.sql":      "CREATE TABLE readings (id INTEGER PRIMARY KEY);",
		"20260102_000000_add_value.sql": "ALTER TABLE readings ADD COLUMN value TEXT;",
	})

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO readings (value) VALUES ('ok')"); err != nil {
		t.Errorf("migrated schema unusable: %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("querying schema_migrations: %v", err)
	}
	if count != 2 {
		t.Errorf("recorded migrations = %d, want 2", count)
	}
}

func TestMigrate_SecondRunIsNoOp(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := migrationFS(map[string]string{
		"20260101_000000_base.sql": "CREATE TABLE readings (id INTEGER PRIMARY KEY);",
	})

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("first Migrate() error = %v", err)
	}
	// A second run must skip the applied file; re-executing the CREATE
	// would fail.
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_FailureKeepsEarlierMigrations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := migrationFS(map[string]string{
		"20260101_000000_base.sql":   "CREATE TABLE readings (id INTEGER PRIMARY KEY);",
		"20260102_000000_broken.sql": "THIS IS NOT SQL;",
	})

	err := db.Migrate(ctx, fsys)
	if err == nil {
		t.Fatal("Migrate() with broken file should fail")
	}

	// The first migration stays committed and recorded.
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("querying schema_migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("recorded migrations = %d, want 1", count)
	}

	// Fixing the file and re-running continues from the failure.
	fsys["20260102_000000_broken.sql"] = &fstest.MapFile{Data: []byte(
		"ALTER TABLE readings ADD COLUMN value TEXT;",
	)}
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() after fix error = %v", err)
	}
}

func TestMigrate_EmbeddedSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"cloud_session", "directory_devices", "directory_hubs", "event_cursor"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after Migrate: %v", table, err)
		}
	}
}
