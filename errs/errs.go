// Package errs defines the error-kind taxonomy used across opsbrief: a small,
// closed set of causes (configuration, connectivity, query, validation,
// deadline, ambiguous reference) that every layer above the Gateway reasons
// about explicitly instead of inspecting arbitrary error strings. Errors
// chain a message plus an optional cause, so errors.Is/As keep working
// across wrapping.
package errs

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy from the error handling design.
type Kind string

const (
	// KindConfiguration means the store or a dependency was never configured.
	KindConfiguration Kind = "configuration_error"
	// KindConnectivity means a transient external failure occurred; safe to retry.
	KindConnectivity Kind = "connectivity_error"
	// KindQuery means a structural or semantic problem exists in a specific query.
	KindQuery Kind = "query_error"
	// KindValidation means caller input failed schema or range validation.
	KindValidation Kind = "validation_error"
	// KindDeadlineExceeded means a per-task timeout or total budget was reached.
	KindDeadlineExceeded Kind = "deadline_exceeded"
	// KindAmbiguousReference means an asset lookup matched nothing; this is
	// reported to callers as {found:false, suggestions}, not raised as an error.
	KindAmbiguousReference Kind = "ambiguous_reference"
)

// Error is a structured failure carrying a Kind, a human-safe message, and
// an optional cause. It is never allowed to escape a tool's public Run
// method; tools convert it into ToolResult{success:false}.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New constructs an Error of the given kind with the given message.
func New(kind Kind, message string) *Error {
	if message == "" {
		message = string(kind)
	}
	return &Error{Kind: kind, Message: message}
}

// Newf formats a message according to a format specifier.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap attaches a cause to a new Error of the given kind.
func Wrap(kind Kind, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the cause so errors.Is/As traverse the chain.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, errs.New(errs.KindConnectivity, "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf extracts the Kind from err, defaulting to KindQuery when err is not
// a *Error (an unclassified failure is treated as a query-level problem,
// never retried, never treated as configuration).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return KindQuery
}

// Retryable reports whether an error of this kind may be safely retried by
// the Gateway's bounded retry policy. Only connectivity failures qualify.
func Retryable(err error) bool {
	return KindOf(err) == KindConnectivity
}
