// Package errors provides centralized error definitions and error handling utilities
// for teelog. It defines the sentinel errors of the capture core, domain error
// types that carry descriptor and session context, and classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - StreamError: errors from duplicating, redirecting, flushing or restoring a
//     standard stream descriptor
//   - CaptureError: errors from the lifecycle of a capture session
//
// Semantic errors represent common error conditions:
//   - TimeoutError: operation timed out
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewStreamError("restore", errors.ErrAlreadyRestored).WithStream("stdout")
//	err := errors.NewCaptureError("open log file", errors.ErrLogFileOpen).WithPath("build.log")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrSessionAlreadyActive) { ... }
//
//	var streamErr *errors.StreamError
//	if errors.As(err, &streamErr) { ... }
//
// # Error Classification
//
// Nothing in the capture core is retried: a partial descriptor swap cannot be
// replayed blindly. GetSeverity tells callers how bad a failure is; a
// critical error means a standard stream may still point somewhere other
// than where it started.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that leave process descriptors in an
	// unknown state.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Stream-related sentinel errors
var (
	// ErrUnsupportedStream indicates a stream identity other than stdout or stderr.
	ErrUnsupportedStream = New("unsupported stream identity")
	// ErrAlreadyRestored indicates that a stream handle has no saved descriptor
	// left to restore.
	ErrAlreadyRestored = New("stream already restored")
	// ErrFlush indicates that flushing a stream failed.
	ErrFlush = New("flush failed")
	// ErrStreamEngaged indicates a redirect of a stream that another handle
	// already has redirected.
	ErrStreamEngaged = New("stream already redirected by another handle")
)

// Session-related sentinel errors
var (
	// ErrSessionAlreadyActive indicates Start on a session that is capturing.
	ErrSessionAlreadyActive = New("capture session already active")
	// ErrSessionNotActive indicates Stop on a session that is not capturing.
	ErrSessionNotActive = New("capture session not active")
	// ErrSessionClosed indicates Start on a session that has already been stopped.
	// Sessions are one-shot.
	ErrSessionClosed = New("capture session already used")
	// ErrLogFileOpen indicates that the transcript file could not be opened.
	ErrLogFileOpen = New("cannot open log file")
	// ErrJoinTimeout indicates that the background reader did not exit in time.
	ErrJoinTimeout = New("background reader did not stop")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// TeelogError is the base interface for all teelog errors.
type TeelogError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message  string
	cause    error
	severity Severity
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// StreamError represents errors from manipulating a standard stream descriptor.
//
// Example:
//
//	err := errors.NewStreamError("restore", errors.ErrAlreadyRestored).WithStream("stderr").WithDescriptor(2)
//	fmt.Println(err) // "stream error [stream=stderr, fd=2]: restore: stream already restored"
type StreamError struct {
	baseError
	Stream     string
	Descriptor int
}

// NewStreamError creates a new StreamError. Descriptor errors leave the
// process in a state the caller must know about, so they default to critical.
func NewStreamError(message string, cause error) *StreamError {
	return &StreamError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityCritical,
		},
		Descriptor: -1, // -1 indicates not set
	}
}

// WithStream adds the stream identity to the error context.
func (e *StreamError) WithStream(stream string) *StreamError {
	e.Stream = stream
	return e
}

// WithDescriptor adds the descriptor number to the error context.
func (e *StreamError) WithDescriptor(fd int) *StreamError {
	e.Descriptor = fd
	return e
}

// WithSeverity sets the error severity.
func (e *StreamError) WithSeverity(s Severity) *StreamError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *StreamError) Error() string {
	var parts []string
	if e.Stream != "" {
		parts = append(parts, fmt.Sprintf("stream=%s", e.Stream))
	}
	if e.Descriptor >= 0 {
		parts = append(parts, fmt.Sprintf("fd=%d", e.Descriptor))
	}

	prefix := "stream error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("stream error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StreamError) Is(target error) bool {
	if _, ok := target.(*StreamError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CaptureError represents errors from the lifecycle of a capture session.
//
// Example:
//
//	err := errors.NewCaptureError("open log file", errors.ErrLogFileOpen).WithPath("out.log").WithPhase("start")
type CaptureError struct {
	baseError
	Path  string
	Phase string
}

// NewCaptureError creates a new CaptureError.
func NewCaptureError(message string, cause error) *CaptureError {
	return &CaptureError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithPath adds the transcript path to the error context.
func (e *CaptureError) WithPath(path string) *CaptureError {
	e.Path = path
	return e
}

// WithPhase adds the lifecycle phase ("start", "stop") to the error context.
func (e *CaptureError) WithPhase(phase string) *CaptureError {
	e.Phase = phase
	return e
}

// WithSeverity sets the error severity.
func (e *CaptureError) WithSeverity(s Severity) *CaptureError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *CaptureError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}

	prefix := "capture error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("capture error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *CaptureError) Is(target error) bool {
	if _, ok := target.(*CaptureError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// TimeoutError indicates that an operation exceeded its time limit.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
	cause     error
}

// NewTimeoutError creates a new TimeoutError.
//
// Example:
//
//	err := errors.NewTimeoutError("join reader", 2*time.Second)
//	fmt.Println(err) // "join reader timed out after 2s"
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds an underlying cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s timed out after %v", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *TimeoutError) Unwrap() error {
	return e.cause
}

// Is matches other TimeoutErrors, ErrTimeout, and the cause chain.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// GetSeverity returns the highest severity found in err's tree, so a
// critical stream error joined with lesser ones still reports critical.
// It returns SeverityError when nothing in the tree carries a severity.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	sev := SeverityError
	found := false
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if te, ok := e.(TeelogError); ok {
			if s := te.Severity(); !found || s > sev {
				sev = s
			}
			found = true
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return sev
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this returns nil for a nil error.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to restore stdout")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to open %s", path)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
