// Package llmerrors classifies provider failures so the retry layer can pick
// the right wait behavior without string-matching at the call site.
package llmerrors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an LLM API failure.
type ErrorType int8

const (
	// TypeUnknown is an unclassified failure. Not retried.
	TypeUnknown ErrorType = iota
	// TypeRateLimit is a 429. Retried with long linear waits because the
	// provider replenishes the token budget once per minute.
	TypeRateLimit
	// TypeOverloaded is a 529/overloaded_error. Retried with short waits.
	TypeOverloaded
	// TypeTransient covers 5xx and network-level failures.
	TypeTransient
	// TypeEmptyResponse means the provider returned no usable content.
	TypeEmptyResponse
	// TypeAuth covers 401/403. Never retried.
	TypeAuth
	// TypeBadPrompt covers 400-level request rejections. Never retried.
	TypeBadPrompt
)

// String returns the type name used in logs.
func (t ErrorType) String() string {
	switch t {
	case TypeRateLimit:
		return "rate_limit"
	case TypeOverloaded:
		return "overloaded"
	case TypeTransient:
		return "transient"
	case TypeEmptyResponse:
		return "empty_response"
	case TypeAuth:
		return "auth"
	case TypeBadPrompt:
		return "bad_prompt"
	case TypeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("error_type_%d", int8(t))
	}
}

// Error is a classified LLM API failure.
type Error struct {
	Err        error
	Message    string
	Type       ErrorType
	StatusCode int
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm %s (status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm %s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a formatted message.
func New(t ErrorType, format string, args ...any) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// NewWithStatus creates a classified error carrying the HTTP status code.
func NewWithStatus(t ErrorType, statusCode int, format string, args ...any) *Error {
	return &Error{Type: t, StatusCode: statusCode, Message: fmt.Sprintf(format, args...)}
}

// NewWithCause wraps an underlying error with a classification.
func NewWithCause(t ErrorType, cause error, format string, args ...any) *Error {
	return &Error{Type: t, Err: cause, Message: fmt.Sprintf(format, args...)}
}

// TypeOf extracts the classification of err, TypeUnknown if unclassified.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return TypeUnknown
}

// IsRetryable reports whether the retry layer should attempt err again. Only
// capacity failures are retried; everything else propagates so a broken
// request does not burn five attempts.
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case TypeRateLimit, TypeOverloaded:
		return true
	default:
		return false
	}
}

// RetryExhaustedError is the terminal failure produced when every retry
// attempt has been consumed. It is the only error an agent run propagates.
type RetryExhaustedError struct {
	LastErr  error
	Attempts int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("model call failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

// NewRetryExhausted wraps the last attempt's error as terminal.
func NewRetryExhausted(attempts int, lastErr error) *RetryExhaustedError {
	return &RetryExhaustedError{Attempts: attempts, LastErr: lastErr}
}
