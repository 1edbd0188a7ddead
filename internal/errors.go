package internal

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyCollecting = errors.New("collection already running")
	ErrNotCollecting     = errors.New("collection is not running")
	ErrNoRecords         = errors.New("no records to export")
	ErrUnknownAction     = errors.New("unknown action")
	ErrInvalidLimit      = errors.New("limit must be a positive integer")
	ErrNoTargets         = errors.New("at least one target author is required")
)

// ResolutionError is returned when no selector candidate matched a role
type ResolutionError struct {
	Role Role
	Err  error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolution error [%s]: no candidate matched", e.Role)
	}
	return fmt.Sprintf("resolution error [%s]: %v", e.Role, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// ExtractionError represents a message root that could not become a record
type ExtractionError struct {
	Field string // "username", "content", "identity"
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error [%s]: %v", e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// StorageError represents errors accessing durable storage
type StorageError struct {
	Path string
	Op   string // "open", "get", "put", "list"
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// CommandError represents a command rejected by the engine
type CommandError struct {
	Action string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command error [%s]: %v", e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
