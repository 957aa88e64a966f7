package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMigrateSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.db")

	if err := MigrateSQLite(path); err != nil {
		t.Fatalf("MigrateSQLite: %v", err)
	}
	// A second run has nothing to apply and must not fail.
	if err := MigrateSQLite(path); err != nil {
		t.Fatalf("MigrateSQLite (again): %v", err)
	}

	conn, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer conn.Close()

	for _, table := range []string{"images", "users"} {
		var n int
		err := conn.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
		if err != nil {
			t.Fatalf("query sqlite_master: %v", err)
		}
		if n != 1 {
			t.Errorf("table %q missing after migration", table)
		}
	}
}
