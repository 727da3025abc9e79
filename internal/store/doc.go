// Package store persists HearthLink's cloud state across restarts.
//
// Three concerns are stored in SQLite:
//
//   - Session snapshots: the cloud token, its expiry, and the API base
//     the account was migrated to. Restoring these avoids a fresh login
//     (and a possible two-factor prompt) on every start.
//   - Directory snapshots: the last known device and hub records, kept
//     as the raw cloud JSON so nothing is lost in translation.
//   - Event cursor: the high-water mark for event history polling.
//
// All stores operate on the shared database opened by the database
// package; tables are created by the embedded migrations.
package store
