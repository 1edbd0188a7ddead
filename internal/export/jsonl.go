package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/iksnae/feed-collector/internal"
)

// JSONLExporter exports documents in JSONL format (one record per line)
type JSONLExporter struct{}

// Export exports a document to JSONL format. Metadata is not carried.
func (e *JSONLExporter) Export(doc *internal.ExportDocument, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, rec := range doc.Records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}

// ContentType returns the MIME type of this format
func (e *JSONLExporter) ContentType() string {
	return "application/x-ndjson"
}
