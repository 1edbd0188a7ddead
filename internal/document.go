package internal

import (
	"time"
)

// NewExportDocument projects s into an export document. Privileged scope
// keeps only records and counts of privileged authors and omits the target
// list. It fails with ErrNoRecords when the projection is empty.
func NewExportDocument(s *Session, scope ExportScope, now time.Time) (*ExportDocument, error) {
	records := s.Records
	counts := s.CopyAuthorCounts()
	targets := append([]string{}, s.TargetAuthors...)

	if scope == ScopePrivileged {
		records = make([]Record, 0)
		for _, r := range s.Records {
			if MatchesAuthor(r.Username, s.PrivilegedAuthors) {
				records = append(records, r)
			}
		}
		for name := range counts {
			if !MatchesAuthor(name, s.PrivilegedAuthors) {
				delete(counts, name)
			}
		}
		targets = nil
	}

	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	return &ExportDocument{
		Metadata: ExportMetadata{
			ExportedAt:        formatTime(now),
			Scope:             scope,
			TotalRecords:      len(records),
			TargetAuthors:     targets,
			PrivilegedAuthors: append([]string{}, s.PrivilegedAuthors...),
			AuthorCounts:      counts,
			SessionID:         s.ID,
		},
		Records: append([]Record(nil), records...),
	}, nil
}
