// Package errors consolidates error definitions for the entire project.
//
// It provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - HTTP status mapping
// - A BatchError type carrying per-item rejection reasons
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Validation errors (user-correctable, never retried automatically)
	ErrValidation     = errors.New("validation failed")
	ErrInvalidPayload = errors.New("payload must be a JSON object")
	ErrInvalidItems   = errors.New("items must be a non-empty array")
	ErrInvalidRange   = errors.New("invalid date range")

	// Persistence errors (server fault, safe to retry the whole operation)
	ErrPersistence  = errors.New("persistence failed")
	ErrLogAppend    = errors.New("event log append failed")
	ErrStoreMerge   = errors.New("aggregate store merge failed")
	ErrStoreClosed  = errors.New("store is closed")
	ErrWriterClosed = errors.New("writer is closed")

	// Not found (query ranges with no rows are NOT errors; these are for
	// genuinely missing resources such as the event log file)
	ErrNotFound = errors.New("not found")

	// State errors
	ErrRunInProgress = errors.New("aggregation run already in progress")

	// Internal errors
	ErrInternal = errors.New("internal error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrInvalidItems) ||
		errors.Is(err, ErrInvalidRange)
}

// IsPersistence returns true if err is a persistence error.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence) ||
		errors.Is(err, ErrLogAppend) ||
		errors.Is(err, ErrStoreMerge) ||
		errors.Is(err, ErrStoreClosed) ||
		errors.Is(err, ErrWriterClosed)
}

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetriable returns true if the error is potentially retriable.
// Persistence failures are retriable because neither partial appends nor
// partial merges are observable.
func IsRetriable(err error) bool {
	return IsPersistence(err) || errors.Is(err, ErrRunInProgress)
}

// ============================================================================
// Error to HTTP status mapping
// ============================================================================

// ErrorToStatus maps an error to its HTTP status code.
func ErrorToStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ============================================================================
// BatchError
// ============================================================================

// BatchError reports a batch rejected as a whole, carrying the collected
// per-item (and structural) rejection reasons.
type BatchError struct {
	Reasons []string
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if len(e.Reasons) == 0 {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Reasons, "; "))
}

// Unwrap makes BatchError match ErrValidation via errors.Is.
func (e *BatchError) Unwrap() error {
	return ErrValidation
}

// NewBatchError creates a BatchError from the collected reasons.
func NewBatchError(reasons []string) *BatchError {
	return &BatchError{Reasons: reasons}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
// Returns nil if err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with formatted context.
// Returns nil if err is nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
