package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a browsediary error code.
type ErrorCode string

const (
	ErrSourceUnavailable      ErrorCode = "SOURCE_UNAVAILABLE"       // store missing or not a history store
	ErrSourcePermissionDenied ErrorCode = "SOURCE_PERMISSION_DENIED" // store present but unreadable (retryable)
	ErrRecordMalformed        ErrorCode = "RECORD_MALFORMED"         // single record skipped, never fatal
	ErrDestinationUnwritable  ErrorCode = "DESTINATION_UNWRITABLE"   // diary directory or file
	ErrInvalidRequest         ErrorCode = "INVALID_REQUEST"          // bad date, bad config
	ErrCancelled              ErrorCode = "CANCELLED"                // interrupted by signal
	ErrInternal               ErrorCode = "INTERNAL"
)

// DiaryError represents a structured error with code, details and an optional cause.
type DiaryError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Details   map[string]any
	Err       error
}

// Error implements the error interface.
func (e *DiaryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *DiaryError) Unwrap() error {
	return e.Err
}

// NewSourceUnavailable creates an error for a history store that is missing
// or does not look like a history store.
func NewSourceUnavailable(path string, cause error) *DiaryError {
	msg := fmt.Sprintf("history store unavailable: %s", path)
	if cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, cause)
	}
	return &DiaryError{
		Code:    ErrSourceUnavailable,
		Message: msg,
		Details: map[string]any{"path": path},
		Err:     cause,
	}
}

// NewSourcePermissionDenied creates a retryable error for a history store that
// exists but cannot be read, typically because the browser holds it.
func NewSourcePermissionDenied(path string, cause error) *DiaryError {
	msg := fmt.Sprintf("history store not readable: %s", path)
	if cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, cause)
	}
	return &DiaryError{
		Code:      ErrSourcePermissionDenied,
		Message:   msg,
		Retryable: true,
		Details:   map[string]any{"path": path},
		Err:       cause,
	}
}

// NewRecordMalformed creates an error describing why a record was skipped.
func NewRecordMalformed(url, reason string) *DiaryError {
	return &DiaryError{
		Code:    ErrRecordMalformed,
		Message: fmt.Sprintf("record for %q skipped: %s", url, reason),
		Details: map[string]any{"url": url, "reason": reason},
	}
}

// NewDestinationUnwritable creates an error for a diary path that cannot be
// created or appended to.
func NewDestinationUnwritable(path string, cause error) *DiaryError {
	msg := fmt.Sprintf("cannot write diary file: %s", path)
	if cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, cause)
	}
	return &DiaryError{
		Code:    ErrDestinationUnwritable,
		Message: msg,
		Details: map[string]any{"path": path},
		Err:     cause,
	}
}

// NewInvalidRequest creates an error for invalid input or configuration.
func NewInvalidRequest(msg string) *DiaryError {
	return &DiaryError{
		Code:    ErrInvalidRequest,
		Message: msg,
	}
}

// NewCancelled creates an error for an operation interrupted before completion.
func NewCancelled(stage string) *DiaryError {
	return &DiaryError{
		Code:    ErrCancelled,
		Message: fmt.Sprintf("%s cancelled", stage),
		Details: map[string]any{"stage": stage},
	}
}

// NewInternal creates an error for unexpected internal failures.
func NewInternal(err error) *DiaryError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &DiaryError{
		Code:    ErrInternal,
		Message: msg,
		Err:     err,
	}
}

// Is checks if err (or anything it wraps) is a DiaryError with the given code.
func Is(err error, code ErrorCode) bool {
	var dErr *DiaryError
	if stderrors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first DiaryError in err's chain, or
// ErrInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var dErr *DiaryError
	if stderrors.As(err, &dErr) {
		return dErr.Code
	}
	return ErrInternal
}

// IsRetryable reports whether err is a DiaryError marked retryable.
func IsRetryable(err error) bool {
	var dErr *DiaryError
	if stderrors.As(err, &dErr) {
		return dErr.Retryable
	}
	return false
}

// AsDiaryError returns the first DiaryError in err's chain.
func AsDiaryError(err error) (*DiaryError, bool) {
	var dErr *DiaryError
	if stderrors.As(err, &dErr) {
		return dErr, true
	}
	return nil, false
}
