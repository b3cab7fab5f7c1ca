package sessions

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dyah/lintas/pkg/protocol"
)

// fakeClient is a controllable protocol client for supervisor and registry
// tests. Its run loop blocks until the test injects an outcome or the
// context is cancelled.
type fakeClient struct {
	mu         sync.Mutex
	path       string
	settings   protocol.Settings
	authorized bool
	authErr    error
	startErr   error
	started    bool
	startCalls int
	stopped    bool
	handler    protocol.EventHandler
	invoked    []string

	// stopLoopErr makes Stop wake the run loop with an error instead of a
	// clean return; stopDelay holds Stop open after the wakeup.
	stopLoopErr error
	stopDelay   time.Duration

	loopOutcome chan error
	loopEntered chan struct{}
}

func newFakeClient(path string, settings protocol.Settings) *fakeClient {
	return &fakeClient{
		path:        path,
		settings:    settings,
		loopOutcome: make(chan error, 2),
		loopEntered: make(chan struct{}, 1),
	}
}

func (c *fakeClient) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.started = true
	c.startCalls++
	return nil
}

func (c *fakeClient) Stop() error {
	c.mu.Lock()
	c.stopped = true
	outcome := c.stopLoopErr
	delay := c.stopDelay
	c.mu.Unlock()
	// A stop request resumes a suspended run loop, like a real client
	// winding down its connection. Some clients surface the teardown to
	// the loop as an error rather than a clean return.
	select {
	case c.loopOutcome <- outcome:
	default:
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return nil
}

func (c *fakeClient) IsAuthorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authorized
}

func (c *fakeClient) Authorize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authErr != nil {
		return c.authErr
	}
	c.authorized = true
	return nil
}

func (c *fakeClient) SetEventHandler(h protocol.EventHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *fakeClient) RunLoop(ctx context.Context, bootstrap func(context.Context) error) error {
	if bootstrap != nil {
		if err := bootstrap(ctx); err != nil {
			return err
		}
	}
	select {
	case c.loopEntered <- struct{}{}:
	default:
	}
	select {
	case <-ctx.Done():
		return nil
	case err := <-c.loopOutcome:
		return err
	}
}

func (c *fakeClient) Invoke(ctx context.Context, method string, args map[string]interface{}) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil, fmt.Errorf("client stopped")
	}
	c.invoked = append(c.invoked, method)
	return map[string]interface{}{"method": method}, nil
}

func (c *fakeClient) failLoop(err error) {
	c.loopOutcome <- err
}

func (c *fakeClient) wasStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *fakeClient) startCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startCalls
}

// fakeFactory builds fake clients and remembers them by path so tests can
// reach the client behind a handle.
type fakeFactory struct {
	mu      sync.Mutex
	clients map[string]*fakeClient
	// preAuthorized marks new clients as already holding credentials.
	preAuthorized bool
	// authErrs makes authorization fail for clients whose path contains
	// the given session name.
	authErrs map[string]error
	err      error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{clients: make(map[string]*fakeClient)}
}

func (f *fakeFactory) factory(path string, settings protocol.Settings) (protocol.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := newFakeClient(path, settings)
	c.authorized = f.preAuthorized
	base := filepath.Base(path)
	for name, authErr := range f.authErrs {
		if base == name+SessionFileSuffix {
			c.authErr = authErr
		}
	}
	f.clients[path] = c
	return c, nil
}

func (f *fakeFactory) client(path string) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[path]
}

func (f *fakeFactory) clientFor(r *Resolver, name string) *fakeClient {
	path, err := r.Resolve(name)
	if err != nil {
		return nil
	}
	return f.client(path)
}
