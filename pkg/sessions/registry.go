package sessions

import (
	"fmt"
	"sync"

	"github.com/dyah/lintas/pkg/protocol"
	"github.com/rs/zerolog"
)

// Registry is the in-process table mapping session names to handles. It is
// the only shared mutable structure; every mutation happens behind its
// mutex. Construct isolated instances for tests, never ambient state.
type Registry struct {
	resolver *Resolver
	defaults protocol.Settings
	schema   map[string]interface{}
	logger   zerolog.Logger

	mu       sync.RWMutex
	handles  map[string]*Handle
	onRemove []func(name string)
}

// RegistryConfig holds registry construction parameters.
type RegistryConfig struct {
	// Resolver maps session names to storage paths. Required.
	Resolver *Resolver
	// Defaults are process-wide settings merged into every Add.
	Defaults protocol.Settings
	// SettingsSchema optionally validates merged settings (JSON schema).
	SettingsSchema map[string]interface{}
	Logger         zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	return &Registry{
		resolver: cfg.Resolver,
		defaults: cfg.Defaults.Clone(),
		schema:   cfg.SettingsSchema,
		logger:   cfg.Logger,
		handles:  make(map[string]*Handle),
	}, nil
}

// Resolver returns the registry's path resolver.
func (r *Registry) Resolver() *Resolver {
	return r.resolver
}

// OnRemove registers a callback invoked after a session is removed. Used to
// drop per-session state held elsewhere (dispatchers, event handlers).
func (r *Registry) OnRemove(fn func(name string)) {
	r.mu.Lock()
	r.onRemove = append(r.onRemove, fn)
	r.mu.Unlock()
}

// Add creates a handle for name, constructing the protocol client bound to
// the resolved storage path with settings merged over the process defaults.
// The registry is left unchanged on any failure.
func (r *Registry) Add(name string, factory protocol.ClientFactory, settings protocol.Settings) (*Handle, error) {
	path, err := r.resolver.Resolve(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, name)
	}

	if err := r.resolver.EnsureDir(path); err != nil {
		return nil, err
	}

	merged := r.defaults.Merge(settings)
	if err := merged.Validate(r.schema); err != nil {
		return nil, fmt.Errorf("failed to validate settings for %s: %w", name, err)
	}

	client, err := factory(path, merged)
	if err != nil {
		return nil, fmt.Errorf("failed to construct protocol client for %s: %w", name, err)
	}

	h := newHandle(name, path, client)
	r.handles[name] = h

	r.logger.Info().Str("session", name).Str("path", path).Msg("Session registered")
	return h, nil
}

// Remove evicts a session: stops its client, forces its authorization
// status to NotLoggedIn so a mid-flight loop task goes quiet, then deletes
// the entry and drops associated per-session state.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	h, exists := r.handles[name]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	delete(r.handles, name)
	callbacks := append([]func(string){}, r.onRemove...)
	r.mu.Unlock()

	// The forced logout must be visible before the stop request: a client
	// may wake its run loop from inside Stop, and the loop goroutine
	// decides removal-vs-failure by this flag.
	h.forceLoggedOut()
	if err := h.client.Stop(); err != nil {
		r.logger.Warn().Err(err).Str("session", name).Msg("Failed to stop protocol client")
	}

	for _, fn := range callbacks {
		fn(name)
	}

	r.logger.Info().Str("session", name).Msg("Session removed")
	return nil
}

// Get looks up a handle. With a name it returns that session or
// ErrSessionNotFound. Without one it returns the sole registered session,
// ErrNoSessions when the registry is empty, or ErrAmbiguousSession when
// several sessions exist and the caller must disambiguate.
func (r *Registry) Get(name ...string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(name) > 0 && name[0] != "" {
		h, exists := r.handles[name[0]]
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, name[0])
		}
		return h, nil
	}

	switch len(r.handles) {
	case 0:
		return nil, ErrNoSessions
	case 1:
		for _, h := range r.handles {
			return h, nil
		}
	}
	return nil, ErrAmbiguousSession
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Names returns the registered session names in unspecified order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	return names
}

// Handles returns a snapshot of all handles.
func (r *Registry) Handles() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	return out
}
