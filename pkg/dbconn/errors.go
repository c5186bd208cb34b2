package dbconn

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the adapter concern that produced them.
type ErrorCategory string

const (
	ErrCategoryConnection ErrorCategory = "CONNECTION"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryAttachment ErrorCategory = "ATTACHMENT"
	ErrCategorySchema     ErrorCategory = "SCHEMA"
	ErrCategoryChannel    ErrorCategory = "CHANNEL"
)

// Error codes for each category.
const (
	// Connection codes
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeCloneFailed      = "CLONE_FAILED"

	// Query codes
	CodePrepareFailed = "PREPARE_FAILED"
	CodeQueryFailed   = "QUERY_FAILED"

	// Attachment codes
	CodeMissingAttachment = "MISSING_ATTACHMENT"
	CodeAttachFailed      = "ATTACH_FAILED"
	CodeDetachFailed      = "DETACH_FAILED"

	// Schema codes
	CodeUnsupportedDataType = "UNSUPPORTED_DATA_TYPE"

	// Channel codes
	CodeChannelClosed = "CHANNEL_CLOSED"
)

// Error is the structured error type used throughout the connection adapters.
// It carries a category, code, message, optional details and cause, so failures
// surface enough context to be actionable by the caller.
type Error struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// NewError creates a new Error.
func NewError(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// WrapError creates a new Error wrapping an existing error.
func WrapError(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetail attaches a key/value detail to the error and returns it.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsCategory reports whether err (or any error it wraps) is an adapter Error
// of the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Category == category
	}
	return false
}
