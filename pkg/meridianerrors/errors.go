// Package meridianerrors provides structured error handling for Meridian with
// rich context, stack traces, and error categorization. It enables consistent
// error handling patterns across the entire codebase.
//
// # Overview
//
// The meridianerrors package extends Go's standard error handling with:
//   - Error categorization through ErrorType
//   - Structured context with key-value details
//   - Automatic stack trace capture
//   - Error wrapping with cause preservation
//   - Retryability detection
//
// # Error Types
//
// Errors are categorized by type, which drives:
//   - Retry decisions in the broker (transient vs. permanent failures)
//   - Monitoring and alerting
//   - The stable kind tag surfaced to callers
//
// # Secret Safety
//
// Error messages and details must never contain decrypted connection
// parameter values. Reference field names instead. This is enforced by
// convention at the vault and adapter boundaries; the round-trip tests
// assert it.
//
// # Thread Safety
//
// Error instances are not thread-safe for modification. Create new
// instances or use WithDetail before sharing across goroutines.
package meridianerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error, used for retry strategies,
// monitoring, and the stable kind tag surfaced to callers.
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors (malformed parameters,
	// bad hosts); never retried
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents resource not found errors
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConflict represents conflict errors (duplicate registration,
	// duplicate connection label)
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeRateLimit represents rate limit errors from a backend
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeTimeout represents operation timeout errors; transient
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConnection represents transient connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeAuthentication represents bad-credential errors; never retried
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeDecryption represents cipher integrity or key mismatch
	// failures; indicates tampering or unmigrated key rotation
	ErrorTypeDecryption ErrorType = "decryption"
	// ErrorTypeSchemaMismatch represents decrypted parameters that do not
	// match the connector's declared parameter schema
	ErrorTypeSchemaMismatch ErrorType = "schema_mismatch"
	// ErrorTypeCredential represents credential store failures in the broker
	// (a decrypt failure surfaced to a caller); never retried
	ErrorTypeCredential ErrorType = "credential"
	// ErrorTypeUnknownConnector represents an unregistered connector tag
	ErrorTypeUnknownConnector ErrorType = "unknown_connector"
	// ErrorTypeMetadataParse represents unparseable backend metadata
	ErrorTypeMetadataParse ErrorType = "metadata_parse"
)

// Error represents a structured error with context.
//
// Fields:
//   - Type: Categorizes the error for handling strategies
//   - Message: Human-readable error description, free of secret material
//   - Cause: The underlying error that caused this error
//   - Details: Key-value pairs providing additional context
//   - Stack: Call stack at the point of error creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack, capturing
// the function name, file path, and line number for debugging.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface, returning a formatted error message
// that includes the error type, message, and cause (if present).
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling compatibility with errors.Is
// and errors.As for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Detail values follow the
// same secret-safety rule as messages: field names, hosts, and counts are
// fine; decrypted parameter values are not.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, automatically
// capturing the call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If the error is already a structured Error,
// its stack trace is preserved. Returns nil if the input error is nil.
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

// IsRetryable returns true if the error is transient based on its type.
// Rate limit, timeout, and connection errors are considered retryable;
// everything else — including decryption and credential failures — is
// permanent. The broker uses this to bound its retry loop.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeConnection:
		return true
	case ErrorTypeInternal, ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeConflict,
		ErrorTypeAuthentication, ErrorTypeConfig, ErrorTypeDecryption,
		ErrorTypeSchemaMismatch, ErrorTypeCredential, ErrorTypeUnknownConnector,
		ErrorTypeMetadataParse:
		return false
	default:
		return false
	}
}

// IsType checks if the error is of the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the error type of a structured error, or ErrorTypeInternal
// for plain errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
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
