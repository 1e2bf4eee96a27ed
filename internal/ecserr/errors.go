// Package ecserr defines the error kinds raised by the ECS core.
package ecserr

import "fmt"

// Kind classifies an Error. See the error handling design notes for the
// propagation rule attached to each kind.
type Kind string

const (
	// NotRegistered means a signature or lookup referenced an unknown
	// component, family, or system identifier.
	NotRegistered Kind = "not_registered"
	// SignatureError means the column expression itself could not be
	// parsed/compiled.
	SignatureError Kind = "signature_error"
	// NoMatch means run_system was called against a system with zero
	// active tables.
	NoMatch Kind = "no_match"
	// InvalidEntity means a handle unknown to the entity index was used.
	InvalidEntity Kind = "invalid_entity"
	// InternalAssert means an internal invariant was violated. Always
	// raised via Assertf, which panics rather than returns.
	InternalAssert Kind = "internal_assert"
)

// Error is the single error type returned by the core. Registration and
// parse failures carry enough context to be reported back to a host without
// leaving the world mutated.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ecsrt: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("ecsrt: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around a lower-level cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

// Assertf panics with an InternalAssert error when cond is false. Reserved
// for conditions that indicate a bug in the engine itself, never user
// input — those go through New(NotRegistered/...) and are returned.
func Assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(New(InternalAssert, format, args...))
	}
}
