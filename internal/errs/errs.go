// Package errs defines the typed error kinds shared across flowtitan's
// packages. Callers compare kinds with errors.Is against the Kind
// sentinels and unwrap for the underlying cause with errors.Unwrap.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a flowtitan error. Kinds double as errors.Is sentinels:
// errors.Is(err, errs.Timeout) matches any *Error with Kind == Timeout,
// regardless of message or wrapped cause.
type Kind string

const (
	Parse             Kind = "parse_error"
	Validation        Kind = "validation_error"
	PolicyDenied      Kind = "policy_denied"
	Provider          Kind = "provider_error"
	Timeout           Kind = "timeout_error"
	SupervisorFailure Kind = "supervisor_failure"
	Transient         Kind = "transient_failure"
	FatalInternal     Kind = "fatal_internal"
)

// Error is the concrete error type for every flowtitan-originated failure.
// Op names the operation that failed (e.g. "dsl.parse", "worker_pool.dispatch");
// Line is set when the failure is attributable to a DSL source line, else 0.
type Error struct {
	Kind Kind
	Op   string
	Line int
	Err  error
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d): %v", e.Op, e.Kind, e.Line, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a Kind sentinel this error matches, so that
// errors.Is(err, errs.Timeout) works without exposing *Error to callers.
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	return false
}

// Error lets a bare Kind satisfy the error interface, which is what makes
// errors.Is(err, errs.Timeout) valid Go: Timeout is both a Kind and an error.
func (k Kind) Error() string { return string(k) }

func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func NewAt(kind Kind, op string, line int, cause error) *Error {
	return &Error{Kind: kind, Op: op, Line: line, Err: cause}
}

func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Of returns the Kind of err if it (or something it wraps) is a *Error,
// and ok=false otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
