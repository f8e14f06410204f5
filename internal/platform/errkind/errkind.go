// Package errkind implements the explicit error taxonomy called for by
// the design notes: an error is always a typed Kind plus a message,
// never a string the caller greps for ("contains 'not found'").
package errkind

import "fmt"

// Kind classifies why an operation failed so callers can decide how to
// react (retry, surface to the user, log and move on) without parsing
// messages.
type Kind int

const (
	// Unknown is never returned by this package; it is the zero value
	// so a missed type-switch case fails loudly instead of silently
	// matching "Validation".
	Unknown Kind = iota
	// Validation covers bad input: empty lines, non-positive quantity,
	// unknown status transitions. Never retried.
	Validation
	// NotFound covers missing orders/items/reservations. Never retried.
	NotFound
	// Conflict covers duplicate reservations, invariant violations at
	// write time, and CAS failures. May be retried once by the caller
	// after re-reading state.
	Conflict
	// Unavailable classifies a "couldn't reserve this" outcome. Error
	// carries no per-line detail for it; the Reservation Engine reports
	// unavailability, with the per-line requested/available detail,
	// through reservation.Result rather than through an Error.
	Unavailable
	// Transient covers store timeouts and broker unavailability.
	// Retried by the event layer with backoff.
	Transient
	// Fatal covers corrupted persisted state or an invariant broken at
	// read time. The component refuses to continue processing that
	// order.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Unavailable:
		return "unavailable"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the single error type every core component returns. Message
// never contains a third-party error's text; that is kept in Cause,
// and Error() appends Cause's message after Message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, errkind.New(errkind.Validation, "")) style
// checks work by comparing Kind only; the target must be an *Error.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validationf(format string, args ...interface{}) *Error {
	return New(Validation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...interface{}) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

func Transientf(format string, args ...interface{}) *Error {
	return New(Transient, fmt.Sprintf(format, args...))
}

func Fatalf(format string, args ...interface{}) *Error {
	return New(Fatal, fmt.Sprintf(format, args...))
}

// KindOf extracts the Kind of err, or Unknown if err is not (or does
// not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return Unknown
}

// asError is a tiny local errors.As to avoid importing errors just for
// this one call site's generic signature friction with *Error.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
