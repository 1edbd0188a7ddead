package internal

import (
	"strings"
	"sync"
)

const (
	// SeenCap is the size above which the seen-set evicts old keys
	SeenCap = 10000
	// SeenKeep is how many of the newest keys survive an eviction
	SeenKeep = 5000
)

// SeenSet remembers dedup keys in insertion order
type SeenSet struct {
	mu    sync.Mutex
	keys  map[string]struct{}
	order []string
	cap   int
	keep  int
}

// NewSeenSet creates an empty seen-set with the default bounds
func NewSeenSet() *SeenSet {
	return newSeenSet(SeenCap, SeenKeep)
}

func newSeenSet(capacity, keep int) *SeenSet {
	return &SeenSet{
		keys: make(map[string]struct{}),
		cap:  capacity,
		keep: keep,
	}
}

// Has reports whether key was seen
func (s *SeenSet) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Add records key; it returns false when key was already present
func (s *SeenSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	s.order = append(s.order, key)
	if len(s.order) > s.cap {
		drop := len(s.order) - s.keep
		for _, k := range s.order[:drop] {
			delete(s.keys, k)
		}
		s.order = append([]string(nil), s.order[drop:]...)
	}
	return true
}

// Len returns the number of remembered keys
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Reset forgets every key
func (s *SeenSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = make(map[string]struct{})
	s.order = nil
}

// FilterStore applies dedup, the limit and the author allow-list to a
// session. It is not safe for concurrent use; the engine serializes access.
type FilterStore struct {
	session *Session
	seen    *SeenSet
}

// NewFilterStore creates a FilterStore over session, seeding the seen-set
// with the ids of the records it already holds.
func NewFilterStore(session *Session, seen *SeenSet) *FilterStore {
	for _, r := range session.Records {
		seen.Add(r.ID)
	}
	return &FilterStore{session: session, seen: seen}
}

// Accept commits record when its key is new, the limit is not reached and
// its author is a target.
func (f *FilterStore) Accept(key string, record Record) bool {
	if f.seen.Has(key) || f.session.LimitReached() {
		return false
	}
	if !f.IsTarget(record.Username) {
		return false
	}
	f.seen.Add(key)
	f.session.Records = append(f.session.Records, record)
	f.session.AuthorCounts[record.Username]++
	return true
}

// IsTarget reports whether username contains any target author
func (f *FilterStore) IsTarget(username string) bool {
	return MatchesAuthor(username, f.session.TargetAuthors)
}

// IsPrivileged reports whether username contains any privileged author
func (f *FilterStore) IsPrivileged(username string) bool {
	return MatchesAuthor(username, f.session.PrivilegedAuthors)
}

// Seen exposes the underlying seen-set
func (f *FilterStore) Seen() *SeenSet {
	return f.seen
}

// MatchesAuthor reports whether the lowercased username contains any of
// the lowercase authors
func MatchesAuthor(username string, authors []string) bool {
	lower := strings.ToLower(username)
	for _, a := range authors {
		if a != "" && strings.Contains(lower, a) {
			return true
		}
	}
	return false
}
