package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("date_range", "end date before start date")

	if !IsValidation(err) {
		t.Error("IsValidation() = false, want true")
	}
	if IsRetrieval(err) {
		t.Error("IsRetrieval() = true, want false")
	}

	want := "validation failed on date_range: end date before start date"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestValidationError_Wrapped(t *testing.T) {
	inner := NewValidationError("mode", "unknown mode selector")
	wrapped := fmt.Errorf("historical query: %w", inner)

	if !IsValidation(wrapped) {
		t.Error("IsValidation() on wrapped error = false, want true")
	}

	var ve *ValidationError
	if !errors.As(wrapped, &ve) {
		t.Fatal("errors.As failed to extract ValidationError")
	}
	if ve.Field != "mode" {
		t.Errorf("Field = %q, want %q", ve.Field, "mode")
	}
}

func TestRetrievalError(t *testing.T) {
	cause := errors.New("connection refused")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	err := NewWindowRetrievalError("https://example.com/query", start, end, cause)

	if !IsRetrieval(err) {
		t.Error("IsRetrieval() = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() failed to match wrapped cause")
	}
	if err.WindowStart != start || err.WindowEnd != end {
		t.Error("window dates not preserved")
	}

	msg := err.Error()
	if want := "2024-01-01~2024-01-16"; !contains(msg, want) {
		t.Errorf("Error() = %q, missing window %q", msg, want)
	}
}

func TestRetrievalError_StatusCode(t *testing.T) {
	err := NewRetrievalError("https://example.com/query", 503, errors.New("service unavailable"))

	if err.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", err.StatusCode)
	}
	if want := "status=503"; !contains(err.Error(), want) {
		t.Errorf("Error() = %q, missing %q", err.Error(), want)
	}
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		checkFn  func(error) bool
		expected bool
	}{
		{"ErrNotFound is recognized", ErrNotFound, IsNotFound, true},
		{"wrapped ErrNotFound is recognized", fmt.Errorf("lookup: %w", ErrNotFound), IsNotFound, true},
		{"other error is not not-found", errors.New("boom"), IsNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.checkFn(tt.err); got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
