package testutil

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// SnapshotJSON renders a durable snapshot with n records by "Curret#0001",
// alternating with a privileged "Admin" author
func SnapshotJSON(sessionID string, collecting, paused bool, n int) string {
	records := make([]map[string]interface{}, 0, n)
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		user := "Curret#0001"
		if i%2 == 1 {
			user = "Admin Curret"
		}
		counts[user]++
		records = append(records, map[string]interface{}{
			"id":          fmt.Sprintf("item-%s-%d", sessionID, i),
			"username":    user,
			"content":     fmt.Sprintf("post %d", i),
			"timestamp":   "2024-01-01T00:00:00.000Z",
			"collectedAt": "2024-01-01T00:00:01.000Z",
			"sessionId":   sessionID,
		})
	}
	snap := map[string]interface{}{
		"collecting":        collecting,
		"paused":            paused,
		"records":           records,
		"targetAuthors":     []string{"curret"},
		"privilegedAuthors": []string{"admin"},
		"limit":             100,
		"collectedCount":    n,
		"sessionId":         sessionID,
		"authorCounts":      counts,
	}
	data, _ := json.Marshal(snap)
	return string(data)
}

// CreateSQLiteFixture creates an on-disk database holding one archived
// session
func CreateSQLiteFixture(t *testing.T, dbPath string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		t.Fatalf("Failed to create fixture directory: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(createTableSQL); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	value := SnapshotJSON("1700000001000", false, false, 3)
	insertSQL := "INSERT INTO collectorKV (key, value) VALUES (?, ?)"
	if _, err := db.Exec(insertSQL, "collector:state", value); err != nil {
		t.Fatalf("Failed to insert state: %v", err)
	}
	if _, err := db.Exec(insertSQL, "session:1700000001000", value); err != nil {
		t.Fatalf("Failed to insert session: %v", err)
	}
}
