// Package ai holds what every speech and language provider shares: error
// classification and the sticky primary/secondary switch used for fallback.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRecoverable indicates a temporary failure that may succeed if retried.
	// Examples: network timeout, rate limiting, temporary service unavailability.
	ErrRecoverable = errors.New("recoverable AI provider error")

	// ErrFatal indicates a permanent failure that will not succeed if retried.
	// Examples: invalid API key, unsupported format, malformed request.
	ErrFatal = errors.New("fatal AI provider error")
)

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// IsFatal checks if an error is fatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// ProviderError wraps a provider failure with the provider name, the
// operation that failed and a retry classification.
type ProviderError struct {
	Provider  string
	Op        string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap exposes both the underlying error and the classification sentinel.
func (e *ProviderError) Unwrap() []error {
	if e.Retryable {
		return []error{e.Err, ErrRecoverable}
	}
	return []error{e.Err, ErrFatal}
}

// NewRecoverableError creates a recoverable error with context.
func NewRecoverableError(provider, op string, err error) error {
	return &ProviderError{Provider: provider, Op: op, Err: err, Retryable: true}
}

// NewFatalError creates a fatal error with context.
func NewFatalError(provider, op string, err error) error {
	return &ProviderError{Provider: provider, Op: op, Err: err, Retryable: false}
}

// Classify wraps err as recoverable or fatal. Context cancellation and
// deadlines are recoverable; anything already classified is returned as is.
func Classify(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsRecoverable(err) || IsFatal(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewRecoverableError(provider, op, err)
	}
	var status interface{ StatusCode() int }
	if errors.As(err, &status) {
		return ClassifyStatus(provider, op, status.StatusCode(), err)
	}
	return NewRecoverableError(provider, op, err)
}

// ClassifyStatus wraps err according to an HTTP status code: timeouts, rate
// limits and server errors are recoverable, other failures are fatal.
func ClassifyStatus(provider, op string, code int, err error) error {
	if RetryableStatus(code) {
		return NewRecoverableError(provider, op, err)
	}
	return NewFatalError(provider, op, err)
}

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
