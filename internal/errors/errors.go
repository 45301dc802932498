// Package errors defines the coded error taxonomy shared by yapm packages.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies a failure class.
type Code string

const (
	// ParseFailed indicates a malformed version string, package file or manifest block.
	ParseFailed Code = "PARSE_ERROR"
	// NotFound indicates a referenced package, repository or tag does not exist.
	NotFound Code = "NOT_FOUND"
	// StateConflict indicates the on-disk or repository state forbids the operation.
	StateConflict Code = "STATE_CONFLICT"
	// ExternalTool indicates an external process exited non-zero.
	ExternalTool Code = "EXTERNAL_TOOL"
	// InvalidArgument indicates a caller supplied an unusable argument.
	InvalidArgument Code = "INVALID_ARGUMENT"
)

// Error is a yapm error with a stable code.
type Error struct {
	Code     Code
	Message  string
	Details  string
	ExitCode int
	cause    error
}

// New creates a new Error.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	if e.Details != "" {
		msg += "\n" + e.Details
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails attaches detail text, e.g. a tool's captured stderr.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// Parse creates a PARSE_ERROR.
func Parse(format string, args ...any) *Error {
	return New(ParseFailed, fmt.Sprintf(format, args...), nil)
}

// NotFoundf creates a NOT_FOUND error.
func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...), nil)
}

// Conflict creates a STATE_CONFLICT error.
func Conflict(format string, args ...any) *Error {
	return New(StateConflict, fmt.Sprintf(format, args...), nil)
}

// Invalid creates an INVALID_ARGUMENT error.
func Invalid(format string, args ...any) *Error {
	return New(InvalidArgument, fmt.Sprintf(format, args...), nil)
}

// Tool creates an EXTERNAL_TOOL error carrying the tool's stderr verbatim.
func Tool(command string, exitCode int, stderr string, cause error) *Error {
	e := New(ExternalTool, fmt.Sprintf("%s exited with code %d", command, exitCode), cause)
	e.ExitCode = exitCode
	e.Details = stderr
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
