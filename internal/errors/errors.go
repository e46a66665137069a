// Package errors provides domain-specific error types and sentinel errors
// for improved error handling across the application.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidInput indicates user provided invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrContextCanceled indicates context was canceled.
	ErrContextCanceled = errors.New("context canceled")
)

// ValidationError represents input validation failures detected before any
// network call is made (inverted date ranges, unknown mode selectors, ...).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// RetrievalError represents an upstream fetch failure for a specific date
// window. It is fatal for the enclosing retrieval: callers receive it
// unchanged and may retry the whole range at their own policy.
type RetrievalError struct {
	URL         string
	StatusCode  int
	WindowStart time.Time
	WindowEnd   time.Time
	Err         error
}

func (e *RetrievalError) Error() string {
	window := ""
	if !e.WindowStart.IsZero() {
		window = fmt.Sprintf(", window=%s~%s",
			e.WindowStart.Format("2006-01-02"), e.WindowEnd.Format("2006-01-02"))
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("retrieval error (url=%s, status=%d%s): %v", e.URL, e.StatusCode, window, e.Err)
	}
	return fmt.Sprintf("retrieval error (url=%s%s): %v", e.URL, window, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// NewRetrievalError creates a new retrieval error without window context.
func NewRetrievalError(url string, statusCode int, err error) *RetrievalError {
	return &RetrievalError{
		URL:        url,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewWindowRetrievalError creates a retrieval error tagged with the offending
// date window.
func NewWindowRetrievalError(url string, start, end time.Time, err error) *RetrievalError {
	return &RetrievalError{
		URL:         url,
		WindowStart: start,
		WindowEnd:   end,
		Err:         err,
	}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRetrieval reports whether err is (or wraps) a RetrievalError.
func IsRetrieval(err error) bool {
	var re *RetrievalError
	return errors.As(err, &re)
}

// IsNotFound reports whether err is the not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
