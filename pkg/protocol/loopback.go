package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LoopbackClient is a self-contained Client used by the lintas binary when
// no real transport is wired in. Authorization persists a marker blob at the
// session path, so a session stays logged in across restarts; the run loop
// idles until cancelled. Useful for development and for exercising the
// supervisor end to end.
type LoopbackClient struct {
	path     string
	settings Settings

	mu      sync.Mutex
	started bool
	handler EventHandler
}

type loopbackBlob struct {
	AuthorizedAt time.Time `json:"authorized_at"`
	Device       string    `json:"device,omitempty"`
}

// NewLoopbackClient is a ClientFactory for LoopbackClient.
func NewLoopbackClient(path string, settings Settings) (Client, error) {
	if path == "" {
		return nil, fmt.Errorf("session path is required")
	}
	return &LoopbackClient{path: path, settings: settings}, nil
}

// Start marks the client as started.
func (c *LoopbackClient) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("client already started")
	}
	c.started = true
	return nil
}

// Stop marks the client as stopped.
func (c *LoopbackClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	return nil
}

// IsAuthorized reports whether a marker blob exists at the session path.
func (c *LoopbackClient) IsAuthorized() bool {
	info, err := os.Stat(c.path)
	return err == nil && !info.IsDir()
}

// Authorize writes the marker blob.
func (c *LoopbackClient) Authorize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	blob := loopbackBlob{AuthorizedAt: time.Now().UTC()}
	if device, ok := c.settings["device"].(string); ok {
		blob.Device = device
	}
	data, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("failed to encode session blob: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session blob: %w", err)
	}
	return nil
}

// SetEventHandler sets the inbound event handler.
func (c *LoopbackClient) SetEventHandler(h EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// RunLoop runs the optional bootstrap, then idles until the context is
// cancelled.
func (c *LoopbackClient) RunLoop(ctx context.Context, bootstrap func(context.Context) error) error {
	if bootstrap != nil {
		if err := bootstrap(ctx); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

// Invoke echoes the request back as the result and mirrors it to the event
// handler, so dispatch round-trips are observable without a real transport.
func (c *LoopbackClient) Invoke(ctx context.Context, method string, args map[string]interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.IsAuthorized() {
		return nil, &Error{Code: "AUTH_REQUIRED", Message: "session is not authorized"}
	}

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		evt := Event{Session: c.sessionName(), Kind: "loopback." + method, Payload: args}
		if err := handler.HandleEvent(ctx, evt); err != nil {
			return nil, fmt.Errorf("event handler rejected loopback echo: %w", err)
		}
	}

	return map[string]interface{}{"method": method, "args": args}, nil
}

// sessionName derives the session name from the storage path.
func (c *LoopbackClient) sessionName() string {
	base := filepath.Base(c.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
