package protocol

import "fmt"

// Error is a structured protocol failure carrying the remote error code
// and the location it originated from. Implementations should wrap
// unrecoverable run-loop failures in this type so the supervisor can log
// the code alongside the message.
type Error struct {
	Code     string
	Message  string
	Location string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}
