// Package errors defines the recoverable, coded errors surfaced by the
// loader, the reducer, storage and the repositories.
//
// Broken preconditions inside the aggregation engine are not represented
// here; they panic with an assertion failure from
// github.com/cockroachdb/errors.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies an Error. Errors compare equal under errors.Is when
// their codes match.
type Code string

const (
	CodeUnknown       Code = "UNKNOWN_ERROR"
	CodeDatabaseError Code = "DATABASE_ERROR"
	CodeStorageError  Code = "STORAGE_ERROR"
	CodeExportError   Code = "EXPORT_ERROR"
	CodeEmptyInput    Code = "EMPTY_INPUT"
	CodeParseError    Code = "PARSE_ERROR"
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeTimeout       Code = "TIMEOUT_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConfigError   Code = "CONFIG_ERROR"
	CodeClosed        Code = "CLOSED"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New returns an error with code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return Wrap(code, fmt.Sprintf(format, args...), err)
}

// Sentinels for errors.Is checks; one per code.
var (
	ErrDatabaseError = New(CodeDatabaseError, "database error")
	ErrStorageError  = New(CodeStorageError, "storage error")
	ErrExportError   = New(CodeExportError, "export error")
	ErrEmptyInput    = New(CodeEmptyInput, "empty input")
	ErrParseError    = New(CodeParseError, "parse error")
	ErrInvalidInput  = New(CodeInvalidInput, "invalid input")
	ErrTimeout       = New(CodeTimeout, "operation timeout")
	ErrNotFound      = New(CodeNotFound, "resource not found")
	ErrConfigError   = New(CodeConfigError, "configuration error")
	ErrClosed        = New(CodeClosed, "already closed")
)

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}

func IsDatabaseError(err error) bool   { return HasCode(err, CodeDatabaseError) }
func IsStorageError(err error) bool    { return HasCode(err, CodeStorageError) }
func IsParseError(err error) bool      { return HasCode(err, CodeParseError) }
func IsEmptyInputError(err error) bool { return HasCode(err, CodeEmptyInput) }

// GetErrorCode returns the code of the outermost *Error in err's chain,
// or CodeUnknown.
func GetErrorCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
