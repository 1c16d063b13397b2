package registry

import (
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy of registry calls.
type ErrorCategory string

const (
	// ErrorTimeout indicates the registry took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates a 2xx response whose body could not be decoded
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates the API key was missing or refused
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorUnavailable indicates a network failure or a 5xx/429 response
	ErrorUnavailable ErrorCategory = "unavailable"

	// ErrorRejected indicates the registry refused the request content
	ErrorRejected ErrorCategory = "rejected"

	// ErrorNotFound indicates the requested record doesn't exist
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorInternal indicates a failure on our side building the request
	ErrorInternal ErrorCategory = "internal"
)

// Error wraps registry failures with normalized categorization.
type Error struct {
	Category   ErrorCategory
	Op         string
	StatusCode int
	Message    string
	// Fields holds field-scoped rejection messages keyed by wire field name.
	// Only set for ErrorRejected.
	Fields     map[string]string
	Underlying error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("registry %s [%s]", e.Op, e.Category)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s status %d", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError creates a normalized registry error.
func NewError(category ErrorCategory, op, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		Op:         op,
		Message:    message,
		Underlying: underlying,
	}
}

// CategoryOf extracts the error category, defaulting to ErrorInternal.
func CategoryOf(err error) ErrorCategory {
	var re *Error
	if errors.As(err, &re) {
		return re.Category
	}
	return ErrorInternal
}

// FieldErrorsOf returns the field-scoped rejection messages carried by err, if any.
func FieldErrorsOf(err error) map[string]string {
	var re *Error
	if errors.As(err, &re) && re.Category == ErrorRejected {
		return re.Fields
	}
	return nil
}
