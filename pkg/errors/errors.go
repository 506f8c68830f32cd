package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeAmbiguous   ErrorType = "ambiguous"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a forum interaction error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("%s error: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Network wraps a transport failure (connection refused, timeout, reset).
func Network(err error) *Error {
	return &Error{
		Type:    ErrorTypeNetwork,
		Message: fmt.Sprintf("network error: %v", err),
		Err:     err,
	}
}

// Parsing reports a response that did not match the expected structure.
func Parsing(format string, args ...interface{}) *Error {
	return &Error{
		Type:    ErrorTypeParsing,
		Message: fmt.Sprintf(format, args...),
	}
}

// Ambiguous reports a response that matched no known success or failure marker.
func Ambiguous(body string) *Error {
	return &Error{
		Type:    ErrorTypeAmbiguous,
		Message: fmt.Sprintf("unrecognised response: %s", Preview(body, 100)),
	}
}

// FromStatus maps a non-2xx HTTP status onto an error type.
func FromStatus(code int, url string) *Error {
	t := ErrorTypeUnknown
	switch {
	case code == 401 || code == 403:
		t = ErrorTypeAuth
	case code == 404:
		t = ErrorTypeNotFound
	case code == 429:
		t = ErrorTypeRateLimit
	case code >= 500:
		t = ErrorTypeServerError
	}
	return &Error{
		Type:    t,
		Message: fmt.Sprintf("unexpected status for %s", url),
		Code:    code,
	}
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return ErrorTypeAuth
	}
	return ErrorTypeUnknown
}

// AuthError is returned when no authenticated session could be obtained.
// It is fatal for the whole account run.
type AuthError struct {
	Reason   string
	Attempts int
}

func (e *AuthError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("authentication failed after %d attempt(s): %s", e.Attempts, e.Reason)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing, ErrorTypeAmbiguous:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}

// Preview trims body to at most n runes for log output.
func Preview(body string, n int) string {
	body = strings.TrimSpace(body)
	r := []rune(body)
	if len(r) <= n {
		return body
	}
	return string(r[:n]) + "..."
}
