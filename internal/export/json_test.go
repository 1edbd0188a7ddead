package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/iksnae/feed-collector/internal"
)

func TestJSONExporter_Export(t *testing.T) {
	tests := []struct {
		name    string
		doc     *internal.ExportDocument
		records int
	}{
		{"all records", internal.CreateTestDocument(internal.ScopeAll), 3},
		{"privileged records", internal.CreateTestDocument(internal.ScopePrivileged), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			exporter := &JSONExporter{}

			if err := exporter.Export(tt.doc, &buf); err != nil {
				t.Fatalf("JSONExporter.Export() error = %v", err)
			}

			output := buf.String()
			var got internal.ExportDocument
			if err := json.Unmarshal([]byte(output), &got); err != nil {
				t.Fatalf("Output is not valid JSON: %v\nOutput: %s", err, output)
			}
			if len(got.Records) != tt.records || got.Metadata.TotalRecords != tt.records {
				t.Errorf("decoded %d records (total %d), want %d", len(got.Records), got.Metadata.TotalRecords, tt.records)
			}
			if !strings.Contains(output, "\n  \"metadata\": {") {
				t.Errorf("Output should be indented with two spaces:\n%s", output)
			}
		})
	}
}

func TestJSONExporter_Layout(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONExporter{}).Export(internal.CreateTestDocument(internal.ScopePrivileged), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var raw struct {
		Metadata map[string]json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"exportedAt", "scope", "totalRecords", "privilegedAuthors", "authorCounts", "sessionId"} {
		if _, ok := raw.Metadata[key]; !ok {
			t.Errorf("metadata missing %q", key)
		}
	}
	if _, ok := raw.Metadata["targetAuthors"]; ok {
		t.Error("privileged metadata should not carry targetAuthors")
	}
}

func TestJSONExporter_Deterministic(t *testing.T) {
	var a, b bytes.Buffer
	doc := internal.CreateTestDocument(internal.ScopeAll)
	_ = (&JSONExporter{}).Export(doc, &a)
	_ = (&JSONExporter{}).Export(doc, &b)
	if a.String() != b.String() {
		t.Error("exporting the same document twice should produce identical bytes")
	}
}

func TestJSONExporter_Extension(t *testing.T) {
	exporter := &JSONExporter{}
	if got := exporter.Extension(); got != "json" {
		t.Errorf("JSONExporter.Extension() = %v, want json", got)
	}
}
