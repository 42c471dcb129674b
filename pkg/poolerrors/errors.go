// Package poolerrors provides structured error handling for tablepool with
// error categorization, key-value context and stack traces.
//
// # Overview
//
// Every failure surfaced by the reader pool carries an ErrorType so callers can
// branch on the category without string matching:
//
//	reader, err := readers.Borrow(ctx)
//	switch {
//	case poolerrors.IsType(err, poolerrors.ErrorTypeClosed):
//	    // the pool was shut down
//	case poolerrors.IsExhausted(err):
//	    // FAIL policy, or BLOCK wait elapsed
//	case err != nil:
//	    return err
//	}
//
// # Thread Safety
//
// Error instances are not safe for concurrent modification. Attach details with
// WithDetail before sharing an error across goroutines.
package poolerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType is the category of an error.
type ErrorType string

const (
	// ErrorTypeInternal represents internal invariant violations
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeCreation represents a factory failing to produce a handle
	ErrorTypeCreation ErrorType = "creation"
	// ErrorTypeExhausted represents a pool at capacity under the FAIL policy
	ErrorTypeExhausted ErrorType = "exhausted"
	// ErrorTypeTimeout represents a BLOCK borrow whose max wait elapsed
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeCanceled represents a borrow abandoned because its context ended
	ErrorTypeCanceled ErrorType = "canceled"
	// ErrorTypeInvalidReturn represents returning a handle that is not on loan from the pool
	ErrorTypeInvalidReturn ErrorType = "invalid_return"
	// ErrorTypeClosed represents an operation on a pool that has been shut down
	ErrorTypeClosed ErrorType = "closed"
	// ErrorTypeBackend represents failures reported by a backing store
	ErrorTypeBackend ErrorType = "backend"
	// ErrorTypeNotFound represents a missing row or object
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeData represents undecodable stored data
	ErrorTypeData ErrorType = "data"
)

// Error is a structured error with a category, optional cause and details.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame is a single frame of the call stack captured at creation.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
//
// Example:
//
//	err := poolerrors.New(poolerrors.ErrorTypeExhausted, "pool exhausted").
//	    WithDetail("max_active", 8).
//	    WithDetail("pool", "users")
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given type, capturing the call stack.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a format string.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps err with a category and message. If err is already an *Error its
// stack is preserved. Returns nil if err is nil.
//
// Example:
//
//	conn, err := pgx.Connect(ctx, dsn)
//	if err != nil {
//	    return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeBackend, "failed to connect").
//	        WithDetail("table", table)
//	}
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

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

// IsType reports whether the outermost structured error in err's chain has
// the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// IsExhausted reports whether err means no handle could be lent out because
// the pool was at capacity: the FAIL policy, or a BLOCK wait that elapsed.
func IsExhausted(err error) bool {
	return IsType(err, ErrorTypeExhausted) || IsType(err, ErrorTypeTimeout)
}

// IsRetryable reports whether a caller could reasonably retry the operation.
// The pool never retries on its own.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeExhausted, ErrorTypeTimeout, ErrorTypeCreation, ErrorTypeBackend:
		return true
	case ErrorTypeInternal, ErrorTypeConfig, ErrorTypeCanceled, ErrorTypeInvalidReturn,
		ErrorTypeClosed, ErrorTypeNotFound, ErrorTypeData:
		return false
	default:
		return false
	}
}

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
