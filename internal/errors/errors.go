// Package errors provides enhanced error handling for the annealing solver service.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Kind classifies an error so transports can map it to a status without
// inspecting messages.
type Kind string

const (
	// KindInternal is the zero-value classification for unexpected failures.
	KindInternal Kind = "Internal"
	// KindInvalidProblemShape reports malformed or mismatched input dimensions.
	KindInvalidProblemShape Kind = "InvalidProblemShape"
	// KindInvalidParameter reports an out-of-range scalar such as a
	// non-positive penalty or read count.
	KindInvalidParameter Kind = "InvalidParameter"
	// KindUnknownSolver reports an unrecognised solver name.
	KindUnknownSolver Kind = "UnknownSolver"
	// KindSolverTimeout reports a sampling call that exceeded its deadline.
	KindSolverTimeout Kind = "SolverTimeout"
	// KindSolverUnavailable reports a backend that failed or is not configured.
	KindSolverUnavailable Kind = "SolverUnavailable"
)

// Error represents an error with context and stack trace.
type Error struct {
	// The underlying error that was returned
	Err error
	// A human-readable message describing the error
	Message string
	// The operation that was being performed when the error occurred
	Operation string
	// The component or package where the error occurred
	Component string
	// Kind classifies the failure
	Kind Kind
	// Field names the offending input field, if any
	Field string
	// The stack trace
	Stack []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var builder strings.Builder

	if e.Kind != "" && e.Kind != KindInternal {
		builder.WriteString(string(e.Kind))
	}

	if e.Message != "" {
		if builder.Len() > 0 {
			builder.WriteString(": ")
		}
		builder.WriteString(e.Message)
	}

	if e.Field != "" {
		if builder.Len() > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString("(field=")
		builder.WriteString(e.Field)
		builder.WriteString(")")
	}

	if e.Operation != "" {
		if builder.Len() > 0 {
			builder.WriteString(": ")
		}
		builder.WriteString("operation=")
		builder.WriteString(e.Operation)
	}

	if e.Component != "" {
		if builder.Len() > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString("component=")
		builder.WriteString(e.Component)
	}

	if e.Err != nil {
		if builder.Len() > 0 {
			builder.WriteString(": ")
		}
		builder.WriteString(e.Err.Error())
	}

	return builder.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same Kind, so sentinel values such as
// ErrUnknownSolver work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind != "" && t.Kind == e.Kind && t.Message == "" && t.Field == ""
}

// WithOperation adds an operation to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithComponent adds a component to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// WithField records the offending input field.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// StackTrace returns the stack trace as a slice of strings.
func (e *Error) StackTrace() []string {
	return e.Stack
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidProblemShape = &Error{Kind: KindInvalidProblemShape}
	ErrInvalidParameter    = &Error{Kind: KindInvalidParameter}
	ErrUnknownSolver       = &Error{Kind: KindUnknownSolver}
	ErrSolverTimeout       = &Error{Kind: KindSolverTimeout}
	ErrSolverUnavailable   = &Error{Kind: KindSolverUnavailable}
)

// New creates a new error with a message.
func New(msg string) *Error {
	return &Error{
		Message: msg,
		Kind:    KindInternal,
		Stack:   getStackTrace(),
	}
}

// Errorf creates a new error with a formatted message.
func Errorf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Kind:    KindInternal,
		Stack:   getStackTrace(),
	}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Kind:    kind,
		Stack:   getStackTrace(),
	}
}

// InvalidShape reports a dimension problem with the named field.
func InvalidShape(field, format string, args ...interface{}) *Error {
	e := Newf(KindInvalidProblemShape, format, args...)
	e.Field = field
	return e
}

// InvalidParameter reports an out-of-range value in the named field.
func InvalidParameter(field, format string, args ...interface{}) *Error {
	e := Newf(KindInvalidParameter, format, args...)
	e.Field = field
	return e
}

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) *Error {
	if err == nil {
		return nil
	}

	e, ok := err.(*Error)
	if !ok {
		e = &Error{
			Err:   err,
			Kind:  KindInternal,
			Stack: getStackTrace(),
		}
	}

	if msg != "" {
		e.Message = msg
	}

	return e
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}

	e, ok := err.(*Error)
	if !ok {
		e = &Error{
			Err:   err,
			Kind:  KindInternal,
			Stack: getStackTrace(),
		}
	}

	e.Message = fmt.Sprintf(format, args...)
	return e
}

// WrapKind wraps err into a new classified error. The original stays
// reachable through Unwrap.
func WrapKind(err error, kind Kind, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Err:     err,
		Message: msg,
		Kind:    kind,
		Stack:   getStackTrace(),
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	return KindInternal
}

// FieldOf returns the offending field recorded in err's chain, if any.
func FieldOf(err error) string {
	var e *Error
	if As(err, &e) {
		return e.Field
	}
	return ""
}

// HTTPStatus maps an error to the status code a transport should return.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidProblemShape, KindInvalidParameter, KindUnknownSolver:
		return http.StatusBadRequest
	case KindSolverTimeout:
		return http.StatusGatewayTimeout
	case KindSolverUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// getStackTrace returns the current stack trace as a slice of strings.
func getStackTrace() []string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:]) // Skip runtime.Callers, getStackTrace, and the constructor
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]string, 0, n)

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") && !strings.Contains(frame.File, "internal/errors") {
			stack = append(stack, fmt.Sprintf("%s\n\t%s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}

	return stack
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
