// Package database owns the SQLite handle backing HearthLink's local
// state: the cloud session snapshot, the mirrored device directory,
// and the event-poll cursor.
//
// The database is opened with WAL mode and a busy timeout, pooled to a
// single connection (SQLite has one writer, and every store writes),
// and the file is kept owner-only because the session table holds the
// cloud auth token.
//
// Schema changes ship as embedded .sql files applied forward-only at
// startup:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
