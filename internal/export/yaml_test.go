package export

import (
	"bytes"
	"testing"

	"github.com/iksnae/feed-collector/internal"
	"gopkg.in/yaml.v3"
)

func TestYAMLExporter_Export(t *testing.T) {
	doc := internal.CreateTestDocument(internal.ScopeAll)

	var buf bytes.Buffer
	if err := (&YAMLExporter{}).Export(doc, &buf); err != nil {
		t.Fatalf("YAMLExporter.Export() error = %v", err)
	}

	var got internal.ExportDocument
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Output is not valid YAML: %v\n%s", err, buf.String())
	}
	if got.Metadata.SessionID != doc.Metadata.SessionID || len(got.Records) != len(doc.Records) {
		t.Errorf("decoded %+v", got.Metadata)
	}
	if got.Metadata.AuthorCounts["Curret#0001"] != 2 {
		t.Errorf("authorCounts = %v", got.Metadata.AuthorCounts)
	}
}

func TestYAMLExporter_Extension(t *testing.T) {
	exporter := &YAMLExporter{}
	if got := exporter.Extension(); got != "yaml" {
		t.Errorf("YAMLExporter.Extension() = %v, want yaml", got)
	}
}
