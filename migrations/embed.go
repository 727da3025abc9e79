// Package migrations embeds the SQL schema migrations applied at
// startup. Files are named YYYYMMDD_HHMMSS_description.sql and run in
// filename order; see database.Migrate for the contract.
package migrations

import "embed"

// FS holds the migration files.
//
//go:embed *.sql
var FS embed.FS
