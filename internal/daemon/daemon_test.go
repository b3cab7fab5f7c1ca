package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyah/lintas/internal/config"
	"github.com/dyah/lintas/internal/logger"
	"github.com/dyah/lintas/pkg/protocol"
	"github.com/dyah/lintas/pkg/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	loopErr chan error
}

func newStubClient() *stubClient {
	return &stubClient{loopErr: make(chan error, 1)}
}

func (c *stubClient) Start(ctx context.Context) error         { return nil }
func (c *stubClient) Stop() error                             { return nil }
func (c *stubClient) IsAuthorized() bool                      { return true }
func (c *stubClient) Authorize(ctx context.Context) error     { return nil }
func (c *stubClient) SetEventHandler(h protocol.EventHandler) {}

func (c *stubClient) RunLoop(ctx context.Context, bootstrap func(context.Context) error) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-c.loopErr:
		return err
	}
}

func (c *stubClient) Invoke(ctx context.Context, method string, args map[string]interface{}) (interface{}, error) {
	return nil, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.StorageRoot = filepath.Join(dir, "sessions")
	cfg.Logging.File = filepath.Join(dir, "lintas.log")
	cfg.Logging.Console = false
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	cfg.Gateway.Enabled = false
	cfg.Watchdog.Enabled = false
	return cfg
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(logger.Config{
		Level:   "error",
		File:    filepath.Join(t.TempDir(), "test.log"),
		Console: false,
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestNew_RequiredOptions(t *testing.T) {
	cfg := testConfig(t)
	log := testLogger(t)
	factory := func(path string, settings protocol.Settings) (protocol.Client, error) {
		return newStubClient(), nil
	}

	_, err := New(Options{Logger: log, Factory: factory})
	assert.Error(t, err)

	_, err = New(Options{Config: cfg, Factory: factory})
	assert.Error(t, err)

	_, err = New(Options{Config: cfg, Logger: log})
	assert.Error(t, err)
}

func TestDaemon_StartConnectStop(t *testing.T) {
	clients := make(map[string]*stubClient)
	factory := func(path string, settings protocol.Settings) (protocol.Client, error) {
		c := newStubClient()
		clients[path] = c
		return c, nil
	}

	d, err := New(Options{
		Config:  testConfig(t),
		Logger:  testLogger(t),
		Factory: factory,
	})
	require.NoError(t, err)

	require.NoError(t, d.Start())
	assert.Error(t, d.Start())

	require.NoError(t, d.Connect([]string{"alice", "bob"}))
	assert.Len(t, clients, 2)

	st := d.Status()
	assert.True(t, st.Running)
	assert.ElementsMatch(t, []string{"alice", "bob"}, st.Sessions)

	require.NoError(t, d.Stop())
	assert.Error(t, d.Stop())
	assert.False(t, d.Status().Running)
}

func TestDaemon_WaitReturnsFatalWhenLastSessionDies(t *testing.T) {
	var client *stubClient
	factory := func(path string, settings protocol.Settings) (protocol.Client, error) {
		client = newStubClient()
		return client, nil
	}

	d, err := New(Options{
		Config:  testConfig(t),
		Logger:  testLogger(t),
		Factory: factory,
	})
	require.NoError(t, err)
	require.NoError(t, d.Start())
	require.NoError(t, d.Connect([]string{"alice"}))

	waitErr := make(chan error, 1)
	go func() { waitErr <- d.Wait() }()

	client.loopErr <- errors.New("connection reset")

	select {
	case err := <-waitErr:
		assert.ErrorIs(t, err, sessions.ErrNoSessionsRemaining)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for fatal shutdown")
	}
}

func TestDaemon_ConnectUnknownSettingsStillRegisters(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sessions.Defaults = map[string]interface{}{"device": "lintas"}

	var captured protocol.Settings
	factory := func(path string, settings protocol.Settings) (protocol.Client, error) {
		captured = settings
		return newStubClient(), nil
	}

	d, err := New(Options{Config: cfg, Logger: testLogger(t), Factory: factory})
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	require.NoError(t, d.Connect([]string{"alice"}))
	assert.Equal(t, "lintas", captured["device"])
}
