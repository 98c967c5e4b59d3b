// Package errors augments the standard errors
// provided by fmt (https://golang.org/src/fmt/errors.go)
// with Wrap() and Message() methods to derive errors from sentinels
// without resorting to fmt.Errorf("%w", err).
package errors

import (
	stderr "errors"
	"fmt"
)

var _ error = New("")

// New Error
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Error augments the standard error interface with Wrap and Message methods.
//
// Sentinels declared with New are never mutated: Wrap and Message return
// derived copies which still match the sentinel with Is.
type Error struct {
	msg    string
	err    error
	origin *Error
}

// Error message, followed by the message of the wrapped cause, if any
func (e *Error) Error() string {
	if e.err == nil {
		return e.msg
	}
	if e.msg == "" {
		return e.err.Error()
	}
	return e.msg + ": " + e.err.Error()
}

// Unwrap nested error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap a nested error into a copy of this error
func (e *Error) Wrap(err error) *Error {
	c := e.derive()
	c.err = err
	return c
}

// Message returns a copy of this error with a more specific message
func (e *Error) Message(msg string) *Error {
	c := e.derive()
	c.msg = msg
	return c
}

// Messagef is like Message with a format
func (e *Error) Messagef(format string, args ...interface{}) *Error {
	return e.Message(fmt.Sprintf(format, args...))
}

func (e *Error) derive() *Error {
	origin := e
	if e.origin != nil {
		origin = e.origin
	}
	return &Error{msg: e.msg, err: e.err, origin: origin}
}

// Is of some error type?
func (e *Error) Is(target error) bool {
	if e == target || e.err == target {
		return true
	}
	return e.origin != nil && e.origin == target
}

// As finds the first error in err's chain that matches target, and if so, sets target to that error value and returns true.
// (a shortcut to standard lib errors.As)
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is reports whether any error in err's chain matches target
// (a shortcut to standard lib errors.Is)
func Is(err, target error) bool {
	return stderr.Is(err, target)
}
