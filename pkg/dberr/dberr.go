/*
Package dberr defines the error taxonomy shared by every datahost component:
host directories, transactional locks, the block cache, block files, B-Tree
indexes, and tables. Every public operation in those packages returns errors
constructed here so callers can branch on Kind without parsing strings.
*/
package dberr

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way callers are expected to handle it.
type Kind int

const (
	// Internal indicates an invariant violation or I/O failure. Always a bug
	// or a disk failure; never caused by caller input.
	Internal Kind = iota
	// BadRequest indicates the caller violated a documented contract (bad
	// schema, bad bounds, duplicate key on insert, reserved identifier, ...).
	BadRequest
	// NotFound indicates a named block, index, or auxiliary is not visible
	// under the caller's transaction.
	NotFound
	// Conflict indicates another transaction already holds a pending write
	// on the targeted value.
	Conflict
	// Timeout indicates a lock acquisition or I/O wait exceeded the caller's
	// deadline.
	Timeout
	// Unsupported indicates a well-formed request the current planner or
	// index set cannot serve.
	Unsupported
	// NotImplemented is reserved for staged functionality.
	NotImplemented
)

func (k Kind) String() string {
	switch k {
	case Internal:
		return "internal"
	case BadRequest:
		return "bad_request"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Timeout:
		return "timeout"
	case Unsupported:
		return "unsupported"
	case NotImplemented:
		return "not_implemented"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by datahost components.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "blockfile.commit"
	Msg  string
	Err  error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes Error compatible with errors.Is against the sentinel values below:
// e.g. errors.Is(err, dberr.ErrConflict) is true for any Conflict-kind Error.
func (e *Error) Is(target error) bool {
	s, ok := target.(*Error)
	if !ok {
		return false
	}
	return s.Kind == e.Kind && s.Op == "" && s.Msg == ""
}

// Sentinels usable with errors.Is(err, dberr.ErrConflict) and friends.
var (
	ErrInternal       = &Error{Kind: Internal}
	ErrBadRequest     = &Error{Kind: BadRequest}
	ErrNotFound       = &Error{Kind: NotFound}
	ErrConflict       = &Error{Kind: Conflict}
	ErrTimeout        = &Error{Kind: Timeout}
	ErrUnsupported    = &Error{Kind: Unsupported}
	ErrNotImplemented = &Error{Kind: NotImplemented}
)

// New constructs an Error of the given kind.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap constructs an Error of the given kind around an underlying cause.
func Wrap(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Internalf builds an Internal-kind error from a formatted message; it
// wraps no underlying error (use Wrap for that).
func Internalf(op, format string, args ...any) *Error {
	return New(Internal, op, fmt.Sprintf(format, args...))
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to Internal for errors not
// produced by this package (foreign errors are always a bug to surface as
// opaque failures rather than silently downgrade).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
