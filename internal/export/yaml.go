package export

import (
	"io"

	"github.com/iksnae/feed-collector/internal"
	"gopkg.in/yaml.v3"
)

// YAMLExporter exports documents in YAML format
type YAMLExporter struct{}

// Export exports a document to YAML format
func (e *YAMLExporter) Export(doc *internal.ExportDocument, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	return enc.Encode(doc)
}

// Extension returns the file extension for this format
func (e *YAMLExporter) Extension() string {
	return "yaml"
}

// ContentType returns the MIME type of this format
func (e *YAMLExporter) ContentType() string {
	return "application/yaml"
}
