package internal

import (
	"errors"
	"strings"
	"testing"
)

func TestStorageError(t *testing.T) {
	originalErr := errors.New("permission denied")
	err := &StorageError{
		Path: "/test/path",
		Op:   "open",
		Err:  originalErr,
	}

	errorMsg := err.Error()
	if !strings.Contains(errorMsg, "storage error") {
		t.Errorf("StorageError.Error() should contain 'storage error', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "/test/path") {
		t.Errorf("StorageError.Error() should contain path, got: %q", errorMsg)
	}
	if !errors.Is(err, originalErr) {
		t.Error("StorageError.Unwrap() should return original error")
	}
}

func TestResolutionError(t *testing.T) {
	err := &ResolutionError{Role: RoleUsername}
	if !strings.Contains(err.Error(), "username") {
		t.Errorf("ResolutionError.Error() should contain role, got: %q", err.Error())
	}
	if err.Unwrap() != nil {
		t.Error("ResolutionError.Unwrap() should be nil without a cause")
	}

	cause := errors.New("detached node")
	wrapped := &ResolutionError{Role: RoleScrollContainer, Err: cause}
	if !errors.Is(wrapped, cause) {
		t.Error("ResolutionError.Unwrap() should return original error")
	}
}

func TestExtractionError(t *testing.T) {
	cause := &ResolutionError{Role: RoleContent}
	err := &ExtractionError{Field: "content", Err: cause}

	if !strings.Contains(err.Error(), "extraction error [content]") {
		t.Errorf("ExtractionError.Error() = %q", err.Error())
	}
	var rerr *ResolutionError
	if !errors.As(err, &rerr) || rerr.Role != RoleContent {
		t.Error("ExtractionError should unwrap to the ResolutionError")
	}
}

func TestCommandError(t *testing.T) {
	err := &CommandError{Action: ActionStart, Err: ErrAlreadyCollecting}
	if !strings.Contains(err.Error(), "start") {
		t.Errorf("CommandError.Error() should contain action, got: %q", err.Error())
	}
	if !errors.Is(err, ErrAlreadyCollecting) {
		t.Error("CommandError.Unwrap() should return the sentinel")
	}
}

func TestExportError(t *testing.T) {
	originalErr := errors.New("disk full")
	err := &ExportError{
		Format: "json",
		Path:   "/tmp/out.json",
		Err:    originalErr,
	}

	errorMsg := err.Error()
	if !strings.Contains(errorMsg, "export error") {
		t.Errorf("ExportError.Error() should contain 'export error', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "json") {
		t.Errorf("ExportError.Error() should contain format, got: %q", errorMsg)
	}
	if !errors.Is(err, originalErr) {
		t.Error("ExportError.Unwrap() should return original error")
	}
}
