package internal

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record represents one harvested post
type Record struct {
	ID          string `json:"id" yaml:"id"`
	Username    string `json:"username" yaml:"username"`
	Content     string `json:"content" yaml:"content"`
	Timestamp   string `json:"timestamp" yaml:"timestamp"`
	CollectedAt string `json:"collectedAt" yaml:"collectedAt"`
	SessionID   string `json:"sessionId" yaml:"sessionId"`
}

// Snapshot is the durable layout of a session, stored as one JSON value
type Snapshot struct {
	Collecting        bool           `json:"collecting" yaml:"collecting"`
	Paused            bool           `json:"paused" yaml:"paused"`
	Records           []Record       `json:"records" yaml:"records"`
	TargetAuthors     []string       `json:"targetAuthors" yaml:"targetAuthors"`
	PrivilegedAuthors []string       `json:"privilegedAuthors" yaml:"privilegedAuthors"`
	Limit             int            `json:"limit" yaml:"limit"`
	CollectedCount    int            `json:"collectedCount" yaml:"collectedCount"`
	SessionID         string         `json:"sessionId" yaml:"sessionId"`
	AuthorCounts      map[string]int `json:"authorCounts" yaml:"authorCounts"`
}

// ParseSnapshot parses a stored value into a Snapshot
func ParseSnapshot(key string, value []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(value, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", key, err)
	}
	if snap.AuthorCounts == nil {
		snap.AuthorCounts = make(map[string]int)
	}
	return &snap, nil
}

// ToSession builds a detached Session from the snapshot
func (s *Snapshot) ToSession() *Session {
	limit := s.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	sess := &Session{
		ID:                s.SessionID,
		Collecting:        s.Collecting,
		Paused:            s.Paused,
		Records:           append([]Record(nil), s.Records...),
		TargetAuthors:     append([]string(nil), s.TargetAuthors...),
		PrivilegedAuthors: append([]string(nil), s.PrivilegedAuthors...),
		Limit:             limit,
		AuthorCounts:      make(map[string]int, len(s.AuthorCounts)),
	}
	for k, v := range s.AuthorCounts {
		sess.AuthorCounts[k] = v
	}
	return sess
}

// ExportScope names which records an export document carries
type ExportScope string

const (
	ScopeAll        ExportScope = "all"
	ScopePrivileged ExportScope = "privileged"
)

// ExportMetadata describes an export document
type ExportMetadata struct {
	ExportedAt        string         `json:"exportedAt" yaml:"exportedAt"`
	Scope             ExportScope    `json:"scope" yaml:"scope"`
	TotalRecords      int            `json:"totalRecords" yaml:"totalRecords"`
	TargetAuthors     []string       `json:"targetAuthors,omitempty" yaml:"targetAuthors,omitempty"`
	PrivilegedAuthors []string       `json:"privilegedAuthors" yaml:"privilegedAuthors"`
	AuthorCounts      map[string]int `json:"authorCounts" yaml:"authorCounts"`
	SessionID         string         `json:"sessionId" yaml:"sessionId"`
}

// ExportDocument is the transportable projection of a session
type ExportDocument struct {
	Metadata ExportMetadata `json:"metadata" yaml:"metadata"`
	Records  []Record       `json:"records" yaml:"records"`
}

// BaseName returns the artifact file name without extension
func (d *ExportDocument) BaseName() string {
	if d.Metadata.Scope == ScopePrivileged {
		return fmt.Sprintf("feed_records_%s_privileged", d.Metadata.SessionID)
	}
	return fmt.Sprintf("feed_records_%s", d.Metadata.SessionID)
}

// Severity classifies status notifications
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Command actions accepted by the engine
const (
	ActionStart            = "start"
	ActionTogglePause      = "togglePause"
	ActionStop             = "stop"
	ActionExportAll        = "exportAll"
	ActionExportPrivileged = "exportPrivileged"
)

// Command is a request from a control surface
type Command struct {
	Action            string   `json:"action"`
	TargetAuthors     []string `json:"targetAuthors,omitempty"`
	Limit             int      `json:"limit,omitempty"`
	PrivilegedAuthors []string `json:"privilegedAuthors,omitempty"`
}

// Response answers a Command
type Response struct {
	Success  bool            `json:"success"`
	Error    string          `json:"error,omitempty"`
	Message  string          `json:"message,omitempty"`
	Count    int             `json:"count"`
	Document *ExportDocument `json:"document,omitempty"`
}

// formatTime renders times the way records and exports carry them
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
