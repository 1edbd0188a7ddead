package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS collectorKV (
	key TEXT PRIMARY KEY,
	value TEXT
)`

// CreateInMemoryDB creates an in-memory SQLite database with the
// collectorKV table
func CreateInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		t.Fatalf("Failed to create collectorKV table: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// CreateTestDB creates a test database holding a current snapshot and two
// archived sessions
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db := CreateInMemoryDB(t)

	pairs := []struct {
		key   string
		value string
	}{
		{key: "collector:state", value: SnapshotJSON("1700000002000", true, false, 2)},
		{key: "session:1700000001000", value: SnapshotJSON("1700000001000", false, false, 1)},
		{key: "session:1700000002000", value: SnapshotJSON("1700000002000", true, false, 2)},
	}

	stmt, err := db.Prepare("INSERT INTO collectorKV (key, value) VALUES (?, ?)")
	if err != nil {
		t.Fatalf("Failed to prepare insert statement: %v", err)
	}
	defer stmt.Close()

	for _, p := range pairs {
		if _, err := stmt.Exec(p.key, p.value); err != nil {
			t.Fatalf("Failed to insert %s: %v", p.key, err)
		}
	}
	return db
}

// InsertPair inserts a raw key-value pair into the database
func InsertPair(t *testing.T, db *sql.DB, key, value string) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO collectorKV (key, value) VALUES (?, ?)", key, value); err != nil {
		t.Fatalf("Failed to insert %s: %v", key, err)
	}
}
