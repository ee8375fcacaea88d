// Package dberr defines the engine's error taxonomy: a small, closed set
// of error kinds, each carrying the offending operation and a
// human-readable detail, with standard-library wrapping so callers can
// still errors.Is/As through to an underlying cause.
package dberr

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error categories every operation in
// the engine reports through.
type Kind string

const (
	InvalidArgument Kind = "invalid-argument"
	NotFound        Kind = "not-found"
	ParseError      Kind = "parse-error"
	IOError         Kind = "io-error"
	CompileError    Kind = "compile-error"
	LoadError       Kind = "load-error"
	ValidationError Kind = "validation-error"
	InternalError   Kind = "internal-error"
)

// Error is the engine's single error type: a kind, the operation that
// failed, a detail string, and an optional wrapped cause.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Detail)
}

// Unwrap exposes the wrapped cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no wrapped cause.
func New(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

// Wrap builds an Error around an existing cause. detail is formatted
// with fmt.Sprintf semantics, mirroring the existing fmt.Errorf idiom
// used across the engine.
func Wrap(kind Kind, op string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...), Err: cause}
}

// Is reports whether err is (or wraps) a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
