package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the indexing and ranking paths.
var (
	// ErrUnembeddedChunk is returned when a chunk without an embedding is
	// handed to the vector index.
	ErrUnembeddedChunk = errors.New("chunk has no embedding")
	// ErrIndexNotFound is returned when persisted index artifacts are
	// missing or incomplete.
	ErrIndexNotFound = errors.New("index artifacts not found")
	// ErrModelNotLoaded is returned when ranking is attempted before a
	// model is available.
	ErrModelNotLoaded = errors.New("ranking model not loaded")
)

// Sentinel errors for validation failures.
var (
	ErrMissingID          = errors.New("missing id")
	ErrMissingTitle       = errors.New("missing title")
	ErrMissingContent     = errors.New("missing content")
	ErrMissingTimestamp   = errors.New("missing timestamp")
	ErrInvalidSourceType  = errors.New("invalid source type")
	ErrInvalidSeverity    = errors.New("invalid severity")
	ErrInvalidProtocol    = errors.New("invalid protocol")
	ErrInvalidAssetType   = errors.New("invalid asset type")
	ErrInvalidCategory    = errors.New("invalid threat category")
	ErrQueryTooShort      = errors.New("query too short")
	ErrInvalidDateRange   = errors.New("date_from after date_to")
	ErrInvalidMaxResults  = errors.New("max results out of range")
)

// ValidationError wraps a sentinel with field context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
