// Package errs defines the machine-readable error codes returned by the
// reconciliation services.
package errs

import (
	"errors"
	"fmt"
)

// Code is a stable error identifier exposed to API clients.
type Code string

const (
	NotFound                        Code = "NOT_FOUND"
	AlreadyReconciled               Code = "ALREADY_RECONCILED"
	DifferenceExceedsTolerance      Code = "DIFFERENCE_EXCEEDS_TOLERANCE"
	GroupDifferenceExceedsTolerance Code = "GROUP_DIFFERENCE_EXCEEDS_TOLERANCE"
	BulkLimitExceeded               Code = "BULK_LIMIT_EXCEEDED"
	ConcurrentModification          Code = "CONCURRENT_MODIFICATION"
	Validation                      Code = "VALIDATION_ERROR"
	Internal                        Code = "INTERNAL"
)

// Error carries a Code, a human message and optional structured details.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithDetails sets structured details and returns e.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// CodeOf returns the code carried by err, or Internal for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns the human message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// DetailsOf returns the structured details for err, if any.
func DetailsOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
