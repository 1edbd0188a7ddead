package internal

import (
	"strconv"
	"strings"
	"time"
)

// DefaultLimit is the record limit used when none is configured
const DefaultLimit = 2000

// Session is the authoritative in-memory state of one collection run
type Session struct {
	ID                string
	Collecting        bool
	Paused            bool
	Records           []Record
	TargetAuthors     []string
	PrivilegedAuthors []string
	Limit             int
	AuthorCounts      map[string]int
}

// NewSession creates a fresh session; the id is derived from now
func NewSession(targets, privileged []string, limit int, now time.Time) *Session {
	return &Session{
		ID:                strconv.FormatInt(now.UnixMilli(), 10),
		Records:           make([]Record, 0),
		TargetAuthors:     normalizeAuthors(targets),
		PrivilegedAuthors: normalizeAuthors(privileged),
		Limit:             limit,
		AuthorCounts:      make(map[string]int),
	}
}

// Count returns the number of collected records
func (s *Session) Count() int {
	return len(s.Records)
}

// LimitReached reports whether the session holds limit records
func (s *Session) LimitReached() bool {
	return s.Limit > 0 && len(s.Records) >= s.Limit
}

// Snapshot returns the durable copy of the session
func (s *Session) Snapshot() *Snapshot {
	snap := &Snapshot{
		Collecting:        s.Collecting,
		Paused:            s.Paused,
		Records:           append([]Record(nil), s.Records...),
		TargetAuthors:     append([]string(nil), s.TargetAuthors...),
		PrivilegedAuthors: append([]string(nil), s.PrivilegedAuthors...),
		Limit:             s.Limit,
		CollectedCount:    len(s.Records),
		SessionID:         s.ID,
		AuthorCounts:      s.CopyAuthorCounts(),
	}
	if snap.Records == nil {
		snap.Records = []Record{}
	}
	if snap.TargetAuthors == nil {
		snap.TargetAuthors = []string{}
	}
	if snap.PrivilegedAuthors == nil {
		snap.PrivilegedAuthors = []string{}
	}
	return snap
}

// CopyAuthorCounts returns a copy safe to hand to notifiers
func (s *Session) CopyAuthorCounts() map[string]int {
	out := make(map[string]int, len(s.AuthorCounts))
	for k, v := range s.AuthorCounts {
		out[k] = v
	}
	return out
}

func normalizeAuthors(authors []string) []string {
	out := make([]string, 0, len(authors))
	for _, a := range authors {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}
