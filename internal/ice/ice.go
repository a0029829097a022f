// Package ice reports internal compiler errors: violated guarantees that the
// pipeline relies on (malformed dependency IR, misuse of builtin ids, a
// declaration queried against a fragment that does not own it). They are never
// recovered from and never degraded into "not found".
package ice

import (
	"errors"
	"fmt"
)

// Error is an internal consistency violation about a named subject
// (module, declaration, phase).
type Error struct {
	Subject string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	msg := "internal compiler error"
	if e.Subject != "" {
		msg += " in " + e.Subject
	}
	msg += ": " + e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error for subject.
func Errorf(subject, format string, args ...any) *Error {
	return &Error{Subject: subject, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches subject and msg to err. Returns nil for a nil err.
func Wrap(err error, subject, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Subject: subject, Msg: msg, Err: err}
}

// Panic raises an *Error as a panic. Used where the caller broke a documented
// precondition and no error return exists.
func Panic(subject, format string, args ...any) {
	panic(Errorf(subject, format, args...))
}

// Is reports whether err is (or wraps) an internal compiler error.
func Is(err error) bool {
	var target *Error
	return errors.As(err, &target)
}

// Recover turns a panicking *Error into a returned error. Other panics propagate.
//
//	defer ice.Recover(&err)
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(*Error); ok {
		*errp = e
		return
	}
	panic(r)
}
