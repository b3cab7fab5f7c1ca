// Package protocol defines the capability surface Lintas expects from a wire
// protocol implementation. The actual connection, encryption, and RPC
// semantics live in an external library; Lintas only drives lifecycle.
package protocol

import "context"

// AuthStatus is the authorization state of one client as seen by Lintas.
// The underlying protocol may expose richer intermediate states; the
// supervisor only cares about the two terminal ones.
type AuthStatus int

const (
	// NotLoggedIn means the client has no usable authorization.
	NotLoggedIn AuthStatus = iota
	// LoggedIn means the client holds valid credentials and may issue calls.
	LoggedIn
)

// String returns a human-readable status name.
func (s AuthStatus) String() string {
	switch s {
	case LoggedIn:
		return "logged_in"
	default:
		return "not_logged_in"
	}
}

// Event is a single inbound protocol event delivered to an event handler.
type Event struct {
	Session string
	Kind    string
	Payload map[string]interface{}
}

// EventHandler receives inbound events from a running client.
type EventHandler interface {
	HandleEvent(ctx context.Context, evt Event) error
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, evt Event) error

// HandleEvent calls f.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Client is one long-lived protocol connection bound to a session storage
// path. Implementations own the wire connection and the credential blob;
// Lintas never inspects either.
type Client interface {
	// Start connects the client. It blocks until the client is connected
	// and authorized, or fails.
	Start(ctx context.Context) error

	// Stop requests a shutdown. Safe to call while RunLoop is in flight.
	Stop() error

	// IsAuthorized reports whether the client holds valid credentials.
	IsAuthorized() bool

	// Authorize runs the interactive authorization procedure. Blocks until
	// the handshake resolves.
	Authorize(ctx context.Context) error

	// SetEventHandler binds the handler that receives inbound events once
	// the run loop is live.
	SetEventHandler(h EventHandler)

	// RunLoop runs the client's event loop. The optional bootstrap callback
	// runs once inside the loop before it starts waiting for events.
	// RunLoop blocks until graceful shutdown (nil) or an unrecoverable
	// protocol error.
	RunLoop(ctx context.Context, bootstrap func(context.Context) error) error

	// Invoke forwards one structured request (send message, fetch history,
	// download media, ...) to the remote service and returns its result.
	Invoke(ctx context.Context, method string, args map[string]interface{}) (interface{}, error)
}

// ClientFactory constructs a client bound to a session storage path with
// the session's effective settings.
type ClientFactory func(path string, settings Settings) (Client, error)
