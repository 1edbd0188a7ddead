package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/iksnae/feed-collector/internal"
)

// Exporter defines the interface for all export formats
type Exporter interface {
	Export(doc *internal.ExportDocument, w io.Writer) error
	Extension() string
	ContentType() string
}

// Artifact is a serialized export ready to hand off
type Artifact struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "jsonl":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "json", "":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, jsonl, md, yaml)", format)
	}
}

// Render serializes doc in format
func Render(doc *internal.ExportDocument, format string) (*Artifact, error) {
	exporter, err := NewExporter(format)
	if err != nil {
		return nil, &internal.ExportError{Format: format, Err: err}
	}
	var buf bytes.Buffer
	if err := exporter.Export(doc, &buf); err != nil {
		return nil, &internal.ExportError{Format: format, Err: err}
	}
	return &Artifact{
		Filename:    doc.BaseName() + "." + exporter.Extension(),
		ContentType: exporter.ContentType(),
		Data:        buf.Bytes(),
	}, nil
}

// WriteFile writes artifact into dir and returns its path
func WriteFile(dir string, artifact *Artifact) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &internal.ExportError{Path: dir, Err: err}
	}
	path := filepath.Join(dir, artifact.Filename)
	if err := os.WriteFile(path, artifact.Data, 0644); err != nil {
		return "", &internal.ExportError{Path: path, Err: err}
	}
	return path, nil
}
