package sessions

import (
	"sync"

	"github.com/dyah/lintas/pkg/protocol"
)

// State is the supervisor-visible lifecycle state of one session.
type State int

const (
	// StateCreated means the handle exists but nothing has been started.
	StateCreated State = iota
	// StateAuthorizing means the authorization handshake is in flight.
	StateAuthorizing
	// StateRunning means the session's event loop is live.
	StateRunning
	// StateStopped means the event loop has exited.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateAuthorizing:
		return "authorizing"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "created"
	}
}

// Handle owns one protocol client for one named session. Handles are owned
// exclusively by the registry; at most one event loop runs per handle.
type Handle struct {
	name   string
	path   string
	client protocol.Client

	mu          sync.RWMutex
	state       State
	forcedOut   bool
	loopRunning bool
}

func newHandle(name, path string, client protocol.Client) *Handle {
	return &Handle{
		name:   name,
		path:   path,
		client: client,
		state:  StateCreated,
	}
}

// Name returns the session name.
func (h *Handle) Name() string {
	return h.name
}

// Path returns the session's storage path.
func (h *Handle) Path() string {
	return h.path
}

// Client returns the underlying protocol client.
func (h *Handle) Client() protocol.Client {
	return h.client
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// AuthStatus reports the session's authorization status. A forced logout
// (set during removal) wins over whatever the client believes, so a loop
// resuming after removal sees NotLoggedIn and stops issuing calls.
func (h *Handle) AuthStatus() protocol.AuthStatus {
	h.mu.RLock()
	forced := h.forcedOut
	h.mu.RUnlock()
	if forced {
		return protocol.NotLoggedIn
	}
	if h.client.IsAuthorized() {
		return protocol.LoggedIn
	}
	return protocol.NotLoggedIn
}

// forceLoggedOut flips the handle to NotLoggedIn regardless of the client's
// own view. This is the cooperative cancellation signal for an in-flight
// loop task; a call already on the wire may still complete.
func (h *Handle) forceLoggedOut() {
	h.mu.Lock()
	h.forcedOut = true
	h.state = StateStopped
	h.mu.Unlock()
}

// Removed reports whether the handle has been evicted from the registry.
func (h *Handle) Removed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.forcedOut
}

// tryStartLoop marks the loop as running. Returns false when a loop is
// already active for this handle.
func (h *Handle) tryStartLoop() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loopRunning || h.forcedOut {
		return false
	}
	h.loopRunning = true
	h.state = StateRunning
	return true
}

func (h *Handle) loopDone() {
	h.mu.Lock()
	h.loopRunning = false
	if h.state == StateRunning {
		h.state = StateStopped
	}
	h.mu.Unlock()
}
