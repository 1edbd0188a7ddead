package export

import (
	"encoding/json"
	"io"

	"github.com/iksnae/feed-collector/internal"
)

// JSONExporter exports documents in JSON format (pretty-printed)
type JSONExporter struct{}

// Export exports a document to JSON format
func (e *JSONExporter) Export(doc *internal.ExportDocument, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(doc)
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}

// ContentType returns the MIME type of this format
func (e *JSONExporter) ContentType() string {
	return "application/json"
}
