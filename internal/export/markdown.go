package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/iksnae/feed-collector/internal"
)

// MarkdownExporter exports documents in Markdown format
type MarkdownExporter struct{}

// Export exports a document to Markdown format
func (e *MarkdownExporter) Export(doc *internal.ExportDocument, w io.Writer) error {
	md := doc.Metadata

	_, _ = fmt.Fprintf(w, "# Session %s\n\n", md.SessionID)
	_, _ = fmt.Fprintf(w, "**Scope:** %s  \n", md.Scope)
	_, _ = fmt.Fprintf(w, "**Exported:** %s  \n", md.ExportedAt)
	_, _ = fmt.Fprintf(w, "**Records:** %d\n\n", md.TotalRecords)

	if len(md.TargetAuthors) > 0 {
		_, _ = fmt.Fprintf(w, "**Target authors:** %s  \n", strings.Join(md.TargetAuthors, ", "))
	}
	if len(md.PrivilegedAuthors) > 0 {
		_, _ = fmt.Fprintf(w, "**Privileged authors:** %s\n\n", strings.Join(md.PrivilegedAuthors, ", "))
	}

	if len(md.AuthorCounts) > 0 {
		_, _ = fmt.Fprintf(w, "| Author | Records |\n|---|---|\n")
		names := make([]string, 0, len(md.AuthorCounts))
		for name := range md.AuthorCounts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			_, _ = fmt.Fprintf(w, "| %s | %d |\n", escapeTableCell(name), md.AuthorCounts[name])
		}
		_, _ = fmt.Fprintf(w, "\n")
	}

	_, _ = fmt.Fprintf(w, "---\n\n")
	_, _ = fmt.Fprintf(w, "## Records\n\n")

	for i, rec := range doc.Records {
		timestamp := ""
		if rec.Timestamp != "" {
			timestamp = fmt.Sprintf(" (%s)", rec.Timestamp)
		}

		_, _ = fmt.Fprintf(w, "**%s:**%s\n\n%s\n\n", rec.Username, timestamp, escapeMarkdown(rec.Content))

		if i < len(doc.Records)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

// escapeMarkdown escapes markdown special characters
func escapeMarkdown(text string) string {
	// Basic escaping - preserve code blocks
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

func escapeTableCell(text string) string {
	return strings.ReplaceAll(text, "|", "\\|")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}

// ContentType returns the MIME type of this format
func (e *MarkdownExporter) ContentType() string {
	return "text/markdown"
}
