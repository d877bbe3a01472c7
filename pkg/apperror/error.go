// Package apperror defines the typed errors surfaced by load runs.
package apperror

import (
	"errors"
	"fmt"
)

// Error is an application error identified by a stable code.
type Error struct {
	Code     string
	Message  string
	Internal error
	Details  map[string]any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error
func (e *Error) Unwrap() error {
	return e.Internal
}

// Is reports whether target is an *Error with the same code, so copies made
// with WithInternal or WithMessage still match the sentinel they came from.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithInternal returns a copy of the error with an internal error attached
func (e *Error) WithInternal(err error) *Error {
	return &Error{
		Code:     e.Code,
		Message:  e.Message,
		Internal: err,
		Details:  e.Details,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(message string) *Error {
	return &Error{
		Code:     e.Code,
		Message:  message,
		Internal: e.Internal,
		Details:  e.Details,
	}
}

// WithDetails returns a copy of the error with details attached
func (e *Error) WithDetails(details map[string]any) *Error {
	return &Error{
		Code:     e.Code,
		Message:  e.Message,
		Internal: e.Internal,
		Details:  details,
	}
}

// New creates a new application error
func New(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

var (
	// Input errors
	ErrEmptyInput       = New("empty_input", "Nothing to load")
	ErrInvalidBatchSize = New("invalid_batch_size", "Batch size must be at least 1")
	ErrInvalidDataset   = New("invalid_dataset", "Dataset is malformed")
	ErrUnknownStrategy  = New("unknown_strategy", "Unknown load strategy")

	// Store errors
	ErrGraphNotFound = New("graph_not_found", "Graph does not exist")
	ErrChunkLoad     = New("chunk_load_failed", "Chunk failed to load")
	ErrDatabase      = New("database_error", "Database operation failed")

	// Environment errors
	ErrToolUnavailable = New("tool_unavailable", "External load tool is not available")
)

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
