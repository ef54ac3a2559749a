// Typed tool errors.
//
// Every tool failure carries a stable code so the orchestrator can record
// it on an observation and feed it back to the model without string parsing.
package tools

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a tool failure.
type ErrorCode string

const (
	// CodeNotFound means the requested path does not exist.
	CodeNotFound ErrorCode = "NotFound"
	// CodePermissionDenied means the path is outside the repository root
	// or the OS denied access.
	CodePermissionDenied ErrorCode = "PermissionDenied"
	// CodeTooLarge means the target exceeds the configured size ceiling.
	CodeTooLarge ErrorCode = "TooLarge"
	// CodeSchemaViolation means the arguments did not match the tool schema.
	CodeSchemaViolation ErrorCode = "SchemaViolation"
	// CodeExecFailed covers I/O and other runtime failures.
	CodeExecFailed ErrorCode = "ExecFailed"
	// CodeTimeout means the tool call exceeded its per-call timeout.
	CodeTimeout ErrorCode = "Timeout"
)

// Error is a tool failure with a classification code.
type Error struct {
	Code ErrorCode
	Tool string
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Tool, e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Tool, e.Code, e.Msg)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a tool error with a formatted message.
func Errorf(code ErrorCode, tool, format string, args ...interface{}) *Error {
	return &Error{Code: code, Tool: tool, Msg: fmt.Sprintf(format, args...)}
}

// WrapError creates a tool error wrapping a cause.
func WrapError(code ErrorCode, tool, msg string, err error) *Error {
	return &Error{Code: code, Tool: tool, Msg: msg, Err: err}
}

// CodeOf extracts the error code from any error. Unclassified errors
// report CodeExecFailed.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return CodeExecFailed
}

// Retryable reports whether a failure with this code is worth retrying.
// Schema and policy violations never succeed on retry; transient I/O might.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeSchemaViolation, CodePermissionDenied, CodeNotFound, CodeTooLarge:
		return false
	default:
		return true
	}
}
