package nativedb

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.db")

	db, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.db")

	for i := 0; i < 3; i++ {
		db, err := Open(path, Options{})
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		db.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "storage.db"), Options{BusyTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "2000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := db.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestOpen_DefaultBusyTimeout(t *testing.T) {
	db, _ := createTestDB(t)
	if err := db.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestOpen_SetsSchemaVersion(t *testing.T) {
	db, _ := createTestDB(t)

	var version int
	if err := db.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}

	var name string
	err := db.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_blobs_deleted'`).Scan(&name)
	if err != nil {
		t.Errorf("migration index missing: %v", err)
	}
}

func TestOpen_MigratesVersionZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.db")
	db, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := db.db.Exec("DROP INDEX idx_blobs_deleted"); err != nil {
		t.Fatalf("drop index: %v", err)
	}
	if _, err := db.db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("reset user_version: %v", err)
	}
	db.Close()

	db, err = Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'idx_blobs_deleted'`).Scan(&count); err != nil {
		t.Fatalf("query index: %v", err)
	}
	if count != 1 {
		t.Errorf("idx_blobs_deleted count = %d, want 1", count)
	}
}

func TestOpen_MigratesZeroClocksToUnset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.db")
	db, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	// Rebuild the version 1 layout, where 0 stood for an unset clock.
	stmts := []string{
		"DROP TABLE peer_clocks",
		`CREATE TABLE peer_clocks (
			peer TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			remote_clock INTEGER NOT NULL DEFAULT 0,
			pushed_clock INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (peer, doc_id)
		)`,
		"INSERT INTO peer_clocks (peer, doc_id, remote_clock, pushed_clock) VALUES ('p', 'd', 1000, 0)",
		"PRAGMA user_version = 1",
	}
	for _, stmt := range stmts {
		if _, err := db.db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	db.Close()

	db, err = Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	var remote, pushed sql.NullInt64
	if err := db.db.QueryRow("SELECT remote_clock, pushed_clock FROM peer_clocks WHERE peer = 'p'").Scan(&remote, &pushed); err != nil {
		t.Fatalf("query clocks: %v", err)
	}
	if !remote.Valid || remote.Int64 != 1000 {
		t.Errorf("remote_clock = %v, want 1000", remote)
	}
	if pushed.Valid {
		t.Errorf("pushed_clock = %v, want NULL", pushed)
	}
}

func TestClose_NilSafe(t *testing.T) {
	var db *DB
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}
