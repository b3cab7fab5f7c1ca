package watchdog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dyah/lintas/pkg/protocol"
	"github.com/dyah/lintas/pkg/sessions"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type heartbeatRecorder struct {
	mu      sync.Mutex
	details []string
}

func (r *heartbeatRecorder) Record(ctx context.Context, session, event, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event == "heartbeat" {
		r.details = append(r.details, detail)
	}
	return nil
}

func (r *heartbeatRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.details)
}

type idleClient struct{}

func (idleClient) Start(ctx context.Context) error         { return nil }
func (idleClient) Stop() error                             { return nil }
func (idleClient) IsAuthorized() bool                      { return true }
func (idleClient) Authorize(ctx context.Context) error     { return nil }
func (idleClient) SetEventHandler(h protocol.EventHandler) {}
func (idleClient) RunLoop(ctx context.Context, bootstrap func(context.Context) error) error {
	<-ctx.Done()
	return nil
}
func (idleClient) Invoke(ctx context.Context, method string, args map[string]interface{}) (interface{}, error) {
	return nil, nil
}

func TestWatchdog_SweepsAndJournals(t *testing.T) {
	reg, err := sessions.NewRegistry(sessions.RegistryConfig{
		Resolver: sessions.NewResolver(t.TempDir()),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	_, err = reg.Add("alice", func(path string, settings protocol.Settings) (protocol.Client, error) {
		return idleClient{}, nil
	}, nil)
	require.NoError(t, err)

	journal := &heartbeatRecorder{}
	w, err := New(Config{
		Registry: reg,
		Schedule: "@every 100ms",
		Journal:  journal,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	require.NoError(t, w.Start())
	defer w.Stop()

	require.Eventually(t, func() bool { return journal.count() >= 2 }, 3*time.Second, 20*time.Millisecond)

	journal.mu.Lock()
	detail := journal.details[0]
	journal.mu.Unlock()
	assert.Contains(t, detail, "sessions=1")
}

func TestNew_InvalidSchedule(t *testing.T) {
	reg, err := sessions.NewRegistry(sessions.RegistryConfig{
		Resolver: sessions.NewResolver(t.TempDir()),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	_, err = New(Config{Registry: reg, Schedule: "every day at noon"})
	assert.Error(t, err)
}

func TestNew_RequiresRegistry(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestWatchdog_StartTwice(t *testing.T) {
	reg, err := sessions.NewRegistry(sessions.RegistryConfig{
		Resolver: sessions.NewResolver(t.TempDir()),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	w, err := New(Config{Registry: reg, Schedule: "@every 1h", Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	assert.Error(t, w.Start())
}
