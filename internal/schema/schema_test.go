package schema

import (
	"path/filepath"
	"testing"
)

func TestInitDBIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.db")
	db, err := OpenDB(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := InitDB(db); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if err := InitDB(db); err != nil {
		t.Fatalf("second init: %v", err)
	}

	version, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != CurrentVersion {
		t.Errorf("version = %d, want %d", version, CurrentVersion)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fk.db")
	db, err := OpenDB(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()
	if err := InitDB(db); err != nil {
		t.Fatalf("init: %v", err)
	}

	_, err = db.Exec(`INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES ('t', 'ghost', 'x', 'x')`)
	if err == nil {
		t.Error("session insert with missing user succeeded")
	}
}
