// Package errs provides the structured error type and diagnostics collector
// shared by every evaluator-core package.
package errs

import (
	"errors"
	"log/slog"
	"strings"
)

// Error represents an error with optional structured logging attributes.
// It implements both error and slog.LogValuer.
type Error struct {
	msg   string
	err   error
	attrs []slog.Attr
}

// New creates a new Error with a message.
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Wrap wraps a standard error as an Error, reusing an existing *Error if err
// already carries one.
func Wrap(err error) *Error {
	ee := &Error{}
	if errors.As(err, &ee) {
		return ee
	}

	return &Error{err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	part := make([]string, 0, 2)

	if e.msg != "" {
		part = append(part, e.msg)
	}

	if e.err != nil {
		part = append(part, e.err.Error())
	}

	return strings.Join(part, ": ")
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error { return e.err }

// LogValue implements slog.LogValuer.
func (e *Error) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(e.attrs)+2)

	if e.msg != "" {
		attrs = append(attrs, slog.String("error", e.msg))
	}

	if e.err != nil {
		attrs = append(attrs, slog.String("cause", e.err.Error()))
	}

	return slog.GroupValue(append(attrs, e.attrs...)...)
}

// Wrap appends a causal error to the receiver, returning a new Error that
// shares the receiver's attributes.
func (e *Error) Wrap(err error) *Error {
	return &Error{
		msg:   e.msg,
		err:   err,
		attrs: e.attrs,
	}
}

// With adds structured attributes to the error, returning a new Error.
func (e *Error) With(attrs ...slog.Attr) *Error {
	newAttrs := make([]slog.Attr, len(e.attrs)+len(attrs))
	copy(newAttrs, e.attrs)
	copy(newAttrs[len(e.attrs):], attrs)

	return &Error{
		msg:   e.msg,
		err:   e.err,
		attrs: newAttrs,
	}
}

// Sentinel errors emitted by the evaluator core, grouped per spec.md §7.
var (
	// ErrInvalidScope is returned when a token appears in a scope that
	// cannot accept it (a symbol at module scope, a literal at body scope).
	ErrInvalidScope = New("token in invalid scope")
	// ErrUnknownInvocation is returned when a reference remains in state
	// None after the fixed-point loop quiesces.
	ErrUnknownInvocation = New("unknown invocation")
	// ErrMacroFailed is returned when a macro returns not-ok or produces
	// unbalanced parentheses.
	ErrMacroFailed = New("macro failed")
	// ErrBuildFailed is returned when compile, link, load, or symbol
	// resolution returns a non-zero status or null.
	ErrBuildFailed = New("build failed")
	// ErrDuplicateDefinition is returned when two top-level forms share a
	// name.
	ErrDuplicateDefinition = New("duplicate definition")
	// ErrInternalInconsistency is returned when a reference's enclosing
	// definition does not correspond to a known definition.
	ErrInternalInconsistency = New("internal inconsistency")
)
