// Package errors provides structured error handling for csvscan
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeDialectAmbiguous means sniffing could not settle on a consistent dialect
	ErrorTypeDialectAmbiguous ErrorType = "dialect_ambiguous"
	// ErrorTypeSchemaMismatch means a row does not have the declared number of fields
	ErrorTypeSchemaMismatch ErrorType = "schema_mismatch"
	// ErrorTypeCastFailure means a field could not be converted to its column type
	ErrorTypeCastFailure ErrorType = "cast_failure"
	// ErrorTypeMalformedEncoding means a text field is not valid UTF-8
	ErrorTypeMalformedEncoding ErrorType = "malformed_encoding"
	// ErrorTypePrematureEOF means the stream ended inside a quote or escape
	ErrorTypePrematureEOF ErrorType = "premature_eof"
	// ErrorTypeParse represents malformed quoting or escaping
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeValidation represents invalid arguments
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeInternal represents internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// Detail keys attached by the reader.
const (
	DetailFile          = "file"
	DetailLine          = "line"
	DetailLineEstimated = "line_estimated"
	DetailBufferIndex   = "buffer_index"
	DetailColumn        = "column"
	DetailRow           = "row"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns a detail value, or nil when absent.
func (e *Error) Detail(key string) interface{} {
	if e.Details == nil {
		return nil
	}
	return e.Details[key]
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// As is errors.As re-exported so callers need a single import.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is errors.Is re-exported so callers need a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsRecoverable reports whether the orchestrator may retry with a relaxed
// configuration. Encoding failures never are.
func IsRecoverable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeDialectAmbiguous, ErrorTypeSchemaMismatch, ErrorTypeCastFailure:
		return true
	default:
		return false
	}
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
