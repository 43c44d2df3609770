// Package apperrors defines the shared error taxonomy for the drop engine.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
)

// ErrCancelled reports that an operation was interrupted by the caller.
// It is not a failure of the remote call.
var ErrCancelled = errors.New("operation cancelled")

// APIError is a non-2xx response from the vendor API, as returned by the
// transport layer before classification.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status=%d body=%s", e.StatusCode, string(e.Body))
}

// TransportError is a network-level failure (connect, timeout, reset).
// Always retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError is a vendor-side rejection (4xx) or a malformed response
// detected at the client boundary. Fatal; never retried.
type ValidationError struct {
	Op      string
	Message string
	Status  int // 0 when the failure is a malformed response, not a status
	Line    int // offending line index where the vendor identified one, else -1
}

func (e *ValidationError) Error() string {
	if e.Line >= 0 {
		return fmt.Sprintf("validation failed during %s (line %d): %s", e.Op, e.Line, e.Message)
	}
	if e.Status > 0 {
		return fmt.Sprintf("validation failed during %s (status %d): %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("validation failed during %s: %s", e.Op, e.Message)
}

// NewValidationError builds a ValidationError with no line attribution.
func NewValidationError(op, message string, status int) *ValidationError {
	return &ValidationError{Op: op, Message: message, Status: status, Line: -1}
}

// RetriesExhaustedError reports that the retry budget was spent. It wraps
// the last underlying failure.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

// IsRetryable classifies a failure: 5xx statuses and transport-level
// timeouts are retryable, 4xx statuses and malformed responses are fatal.
// Cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	var api *APIError
	if errors.As(err, &api) {
		return api.StatusCode >= 500
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
