package sessions

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidName is returned for a session name that is empty after
	// trimming. Rejected before anything touches the registry.
	ErrInvalidName = errors.New("invalid session name")

	// ErrDuplicateSession is returned by Add when the name already has a
	// handle.
	ErrDuplicateSession = errors.New("session already exists")

	// ErrSessionNotFound is returned when a named session has no handle.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAmbiguousSession is returned by Get without a name when more than
	// one session is registered.
	ErrAmbiguousSession = errors.New("multiple sessions registered, name required")

	// ErrNoSessions is returned by Get without a name when the registry is
	// empty.
	ErrNoSessions = errors.New("no sessions registered")

	// ErrNoSessionsRemaining signals that the last session has been evicted.
	// Fatal: the process has nothing left to serve and must exit.
	ErrNoSessionsRemaining = errors.New("no sessions remaining")
)

// StorageInitError wraps a filesystem failure while preparing a session's
// storage directory.
type StorageInitError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *StorageInitError) Error() string {
	return fmt.Sprintf("failed to initialize session storage at %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StorageInitError) Unwrap() error {
	return e.Err
}
