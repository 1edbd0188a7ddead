package internal

import (
	"path/filepath"
	"testing"

	"github.com/iksnae/feed-collector/testutil"
)

func TestOpenDatabase(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	dbPath := filepath.Join(dir, "nested", "collector.db")

	db, err := OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("OpenDatabase() error = %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("INSERT INTO collectorKV (key, value) VALUES ('k', 'v')"); err != nil {
		t.Errorf("OpenDatabase() should create collectorKV: %v", err)
	}
}

func TestOpenDatabase_Existing(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	dbPath := filepath.Join(dir, "collector.db")
	testutil.CreateSQLiteFixture(t, dbPath)

	db, err := OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("OpenDatabase() error = %v", err)
	}
	defer db.Close()

	pairs, err := QueryCollectorKV(db, "session:%")
	if err != nil {
		t.Fatalf("QueryCollectorKV() error = %v", err)
	}
	if len(pairs) != 1 {
		t.Errorf("QueryCollectorKV() returned %d pairs, want 1", len(pairs))
	}
}

func TestQueryCollectorKV(t *testing.T) {
	db := testutil.CreateTestDB(t)

	tests := []struct {
		name    string
		pattern string
		want    int
	}{
		{"archived sessions", "session:%", 2},
		{"state key", "collector:%", 1},
		{"everything", "%", 3},
		{"no match", "bubbleId:%", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs, err := QueryCollectorKV(db, tt.pattern)
			if err != nil {
				t.Fatalf("QueryCollectorKV() error = %v", err)
			}
			if len(pairs) != tt.want {
				t.Errorf("QueryCollectorKV() returned %d pairs, want %d", len(pairs), tt.want)
			}
		})
	}
}

func TestQueryCollectorKV_NullValues(t *testing.T) {
	db := testutil.CreateInMemoryDB(t)
	if _, err := db.Exec("INSERT INTO collectorKV (key, value) VALUES ('session:1', NULL)"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	testutil.InsertPair(t, db, "session:2", "{}")

	pairs, err := QueryCollectorKV(db, "session:%")
	if err != nil {
		t.Fatalf("QueryCollectorKV() error = %v", err)
	}
	if len(pairs) != 1 || pairs[0].Key != "session:2" {
		t.Errorf("QueryCollectorKV() = %+v, want only session:2", pairs)
	}
}
