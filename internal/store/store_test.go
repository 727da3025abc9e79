package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quennel-io/hearthlink/internal/cloud"
	"github.com/quennel-io/hearthlink/internal/directory"
)

// testDB creates a temporary SQLite database with the store schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "store-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE cloud_session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			token TEXT NOT NULL DEFAULT '',
			token_expires_at TEXT NOT NULL DEFAULT '',
			api_base TEXT NOT NULL DEFAULT '',
			trusted_until TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);

		CREATE TABLE directory_devices (
			serial TEXT PRIMARY KEY,
			raw TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE directory_hubs (
			serial TEXT PRIMARY KEY,
			raw TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE event_cursor (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			last_event_time INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return db
}

func TestSessionStore_SaveAndLoad(t *testing.T) {
	db := testDB(t)
	s := NewSessionStore(db)
	ctx := context.Background()

	expires := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	snap := cloud.Snapshot{
		Token:          "token-abc",
		TokenExpiresAt: expires,
		APIBase:        "https://eu.api.test.example/api",
	}

	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok {
		t.Fatal("Load() ok = false, want true")
	}
	if got.Token != snap.Token {
		t.Errorf("Token = %q, want %q", got.Token, snap.Token)
	}
	if !got.TokenExpiresAt.Equal(expires) {
		t.Errorf("TokenExpiresAt = %v, want %v", got.TokenExpiresAt, expires)
	}
	if got.APIBase != snap.APIBase {
		t.Errorf("APIBase = %q, want %q", got.APIBase, snap.APIBase)
	}
	if !got.TrustedUntil.IsZero() {
		t.Errorf("TrustedUntil = %v, want zero", got.TrustedUntil)
	}
}

func TestSessionStore_SaveOverwrites(t *testing.T) {
	db := testDB(t)
	s := NewSessionStore(db)
	ctx := context.Background()

	if err := s.Save(ctx, cloud.Snapshot{Token: "first"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, cloud.Snapshot{Token: "second"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok, err := s.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v", ok, err)
	}
	if got.Token != "second" {
		t.Errorf("Token = %q, want %q", got.Token, "second")
	}
}

func TestSessionStore_LoadEmpty(t *testing.T) {
	db := testDB(t)
	s := NewSessionStore(db)

	_, ok, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok {
		t.Error("Load() ok = true for empty store, want false")
	}
}

func TestSessionStore_Clear(t *testing.T) {
	db := testDB(t)
	s := NewSessionStore(db)
	ctx := context.Background()

	if err := s.Save(ctx, cloud.Snapshot{Token: "token"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	_, ok, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok {
		t.Error("Load() ok = true after Clear(), want false")
	}
}

func TestSessionStore_TrustedSentinelRoundTrip(t *testing.T) {
	db := testDB(t)
	s := NewSessionStore(db)
	ctx := context.Background()

	trusted := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := cloud.Snapshot{
		Token:          "trusted-token",
		TokenExpiresAt: trusted,
		TrustedUntil:   trusted,
	}

	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok, err := s.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v", ok, err)
	}
	if !got.TrustedUntil.Equal(trusted) {
		t.Errorf("TrustedUntil = %v, want %v", got.TrustedUntil, trusted)
	}
	if !got.TokenExpiresAt.Equal(trusted) {
		t.Errorf("TokenExpiresAt = %v, want %v", got.TokenExpiresAt, trusted)
	}
}

func TestDirectoryStore_SaveAndLoad(t *testing.T) {
	db := testDB(t)
	s := NewDirectoryStore(db)
	ctx := context.Background()

	devices := []directory.DeviceRecord{
		{
			Serial:        "SN001",
			Name:          "Front Door",
			StationSerial: "HUB01",
			DeviceType:    7,
			Raw:           json.RawMessage(`{"device_sn":"SN001","device_name":"Front Door","station_sn":"HUB01","device_type":7,"extra_field":true}`),
		},
		{
			Serial: "SN002",
			Name:   "Backyard",
		},
	}
	hubs := []directory.HubRecord{
		{
			Serial: "HUB01",
			Name:   "Home Base",
			IP:     "192.168.1.20",
			Raw:    json.RawMessage(`{"station_sn":"HUB01","station_name":"Home Base","ip_addr":"192.168.1.20"}`),
		},
	}

	if err := s.Save(ctx, devices, hubs); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	gotDevices, gotHubs, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(gotDevices) != 2 {
		t.Fatalf("len(devices) = %d, want 2", len(gotDevices))
	}
	if gotDevices[0].Serial != "SN001" || gotDevices[0].Name != "Front Door" {
		t.Errorf("device[0] = %+v", gotDevices[0])
	}
	if gotDevices[0].StationSerial != "HUB01" {
		t.Errorf("device[0].StationSerial = %q, want HUB01", gotDevices[0].StationSerial)
	}
	// Raw JSON preserved, extra fields and all
	if len(gotDevices[0].Raw) == 0 || !json.Valid(gotDevices[0].Raw) {
		t.Errorf("device[0].Raw not preserved: %s", gotDevices[0].Raw)
	}

	if len(gotHubs) != 1 {
		t.Fatalf("len(hubs) = %d, want 1", len(gotHubs))
	}
	if gotHubs[0].IP != "192.168.1.20" {
		t.Errorf("hub IP = %q, want 192.168.1.20", gotHubs[0].IP)
	}
}

func TestDirectoryStore_SaveReplacesWholesale(t *testing.T) {
	db := testDB(t)
	s := NewDirectoryStore(db)
	ctx := context.Background()

	first := []directory.DeviceRecord{{Serial: "SN001"}, {Serial: "SN002"}}
	if err := s.Save(ctx, first, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	second := []directory.DeviceRecord{{Serial: "SN003"}}
	if err := s.Save(ctx, second, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	devices, _, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("len(devices) = %d, want 1", len(devices))
	}
	if devices[0].Serial != "SN003" {
		t.Errorf("Serial = %q, want SN003", devices[0].Serial)
	}
}

func TestDirectoryStore_SkipsEmptySerial(t *testing.T) {
	db := testDB(t)
	s := NewDirectoryStore(db)
	ctx := context.Background()

	devices := []directory.DeviceRecord{{Serial: ""}, {Serial: "SN001"}}
	if err := s.Save(ctx, devices, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, _, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("len(devices) = %d, want 1", len(got))
	}
}

func TestDirectoryStore_LoadEmpty(t *testing.T) {
	db := testDB(t)
	s := NewDirectoryStore(db)

	devices, hubs, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(devices) != 0 || len(hubs) != 0 {
		t.Errorf("Load() = %d devices, %d hubs, want empty", len(devices), len(hubs))
	}
}

func TestCursorStore_SaveAndLoad(t *testing.T) {
	db := testDB(t)
	s := NewCursorStore(db)
	ctx := context.Background()

	if err := s.Save(ctx, 1700000123); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != 1700000123 {
		t.Errorf("Load() = %d, want 1700000123", got)
	}

	// Advancing the mark overwrites
	if err := s.Save(ctx, 1700000456); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != 1700000456 {
		t.Errorf("Load() = %d, want 1700000456", got)
	}
}

func TestCursorStore_LoadEmpty(t *testing.T) {
	db := testDB(t)
	s := NewCursorStore(db)

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != 0 {
		t.Errorf("Load() = %d, want 0 for empty store", got)
	}
}
