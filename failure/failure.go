// Package failure classifies pipeline errors into a small set of kinds so
// front ends can report them without string matching.
package failure

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a pipeline failure
type Kind string

const (
	InvalidInput    Kind = "InvalidInput"
	HTTPError       Kind = "HttpError"
	NoTableFound    Kind = "NoTableFound"
	AutomationError Kind = "AutomationError"
	Unhandled       Kind = "Unhandled"
)

// Error is a classified error. Op names the stage that failed.
type Error struct {
	Kind   Kind
	Op     string
	Status int // HTTP status code, zero when not applicable
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and an operation name
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a classified error from a format string
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// HTTP builds an HttpError carrying the response status (0 for transport failures)
func HTTP(op string, status int, err error) *Error {
	return &Error{Kind: HTTPError, Op: op, Status: status, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors are Unhandled; nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unhandled
}

// Is reports whether err is classified as kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusOf returns the HTTP status attached to err, or 0
func StatusOf(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}
