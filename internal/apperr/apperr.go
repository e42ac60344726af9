// Package apperr defines the error taxonomy shared by services, the REST
// surface and the live coordinator. Handlers map each kind to one HTTP
// status; websocket handlers return the message in a per-request ack.
package apperr

import (
	"errors"
	"fmt"
)

// Kind sentinels. Wrap them with a message via the constructors below and
// test with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrAuthorization = errors.New("authorization error")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
)

// Error carries a kind sentinel plus a human-readable message.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Unwrap lets errors.Is match the kind sentinel.
func (e *Error) Unwrap() error { return e.kind }

// Validation reports malformed input, rejected before any persistence.
func Validation(format string, args ...interface{}) error {
	return &Error{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// Authorization reports an insufficient role or missing ownership.
func Authorization(format string, args ...interface{}) error {
	return &Error{kind: ErrAuthorization, msg: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing session or participant.
func NotFound(format string, args ...interface{}) error {
	return &Error{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

// Conflict reports a lifecycle or uniqueness violation (double initiate,
// close of a closed session, leave of an inactive participant).
func Conflict(format string, args ...interface{}) error {
	return &Error{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}
