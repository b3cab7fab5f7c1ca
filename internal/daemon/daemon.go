// Package daemon wires the Lintas runtime together: configuration,
// logging, the session registry and supervisor, and the supporting
// services around them (journal, gateway, watchdog, config hot reload).
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dyah/lintas/internal/config"
	"github.com/dyah/lintas/internal/logger"
	"github.com/dyah/lintas/pkg/dispatch"
	"github.com/dyah/lintas/pkg/gateway"
	"github.com/dyah/lintas/pkg/journal"
	"github.com/dyah/lintas/pkg/protocol"
	"github.com/dyah/lintas/pkg/sessions"
	"github.com/dyah/lintas/pkg/watchdog"
)

// Daemon is the Lintas supervisor host.
type Daemon struct {
	config  *config.Config
	logger  *logger.Logger
	factory protocol.ClientFactory

	journal    *journal.Journal
	registry   *sessions.Registry
	dispatcher *dispatch.Dispatcher
	supervisor *sessions.Supervisor
	gateway    *gateway.Server
	watchdog   *watchdog.Watchdog
	cfgWatcher *config.Watcher

	ctx    context.Context
	cancel context.CancelFunc

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Options holds daemon construction parameters.
type Options struct {
	Config *config.Config
	Logger *logger.Logger
	// Factory builds the protocol client for each session.
	Factory protocol.ClientFactory
	// ConfigLoader enables config hot reload when set.
	ConfigLoader *config.Loader
}

// New creates a daemon, initializing all modules in dependency order.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts.Factory == nil {
		return nil, fmt.Errorf("protocol client factory is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		config:  opts.Config,
		logger:  opts.Logger,
		factory: opts.Factory,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := d.initialize(opts); err != nil {
		cancel()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) initialize(opts Options) error {
	cfg := d.config
	zl := d.logger.GetZerolog()

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path, zl)
		if err != nil {
			return fmt.Errorf("failed to open session journal: %w", err)
		}
		d.journal = j
	}

	registry, err := sessions.NewRegistry(sessions.RegistryConfig{
		Resolver:       sessions.NewResolver(cfg.StorageRoot),
		Defaults:       protocol.Settings(cfg.Sessions.Defaults),
		SettingsSchema: cfg.Sessions.Schema,
		Logger:         zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create session registry: %w", err)
	}
	d.registry = registry
	d.logger.Info().Str("storage_root", cfg.StorageRoot).Msg("Session registry initialized")

	d.dispatcher = dispatch.New(registry, zl)

	var recorder sessions.Recorder
	if d.journal != nil {
		recorder = d.journal
	}
	supervisor, err := sessions.NewSupervisor(sessions.SupervisorConfig{
		Registry:     registry,
		EventHandler: d.dispatcher,
		Journal:      recorder,
		Logger:       zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}
	d.supervisor = supervisor
	d.logger.Info().Msg("Session supervisor initialized")

	if cfg.Gateway.Enabled {
		gw, err := gateway.NewServer(gateway.Config{
			Host:         cfg.Gateway.Host,
			Port:         cfg.Gateway.Port,
			SharedSecret: cfg.Gateway.SharedSecret,
			Registry:     registry,
			Commander:    d.dispatcher,
			Logger:       zl,
		})
		if err != nil {
			return fmt.Errorf("failed to create gateway server: %w", err)
		}
		d.gateway = gw
		d.logger.Info().Int("port", cfg.Gateway.Port).Msg("Gateway server initialized")
	}

	if cfg.Watchdog.Enabled {
		wd, err := watchdog.New(watchdog.Config{
			Registry: registry,
			Schedule: cfg.Watchdog.Schedule,
			Journal:  recorder,
			Logger:   zl,
		})
		if err != nil {
			return fmt.Errorf("failed to create watchdog: %w", err)
		}
		d.watchdog = wd
	}

	if opts.ConfigLoader != nil {
		watcher, err := config.NewWatcher(opts.ConfigLoader, d.handleConfigReload, zl)
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		d.cfgWatcher = watcher
	}

	return nil
}

// handleConfigReload applies the hot-swappable parts of a changed config.
// Storage paths and listener addresses need a restart and are ignored.
func (d *Daemon) handleConfigReload(cfg *config.Config) {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		d.logger.Warn().Err(err).Msg("Ignoring invalid log level from reloaded config")
		return
	}
	d.logger.Info().Str("level", cfg.Logging.Level).Msg("Log level updated from config")
}

// Start starts the supporting services. Sessions are connected separately
// via Connect.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().Msg("Starting Lintas daemon")

	if d.gateway != nil {
		if err := d.gateway.Start(); err != nil {
			return fmt.Errorf("failed to start gateway server: %w", err)
		}
	}
	if d.watchdog != nil {
		if err := d.watchdog.Start(); err != nil {
			return fmt.Errorf("failed to start watchdog: %w", err)
		}
	}
	if d.cfgWatcher != nil {
		if err := d.cfgWatcher.Start(); err != nil {
			d.logger.Warn().Err(err).Msg("Config hot reload unavailable")
		}
	}

	d.logger.Info().Msg("Daemon started")
	return nil
}

// Connect brings up the named sessions in supplied order. Cold-start
// sessions authorize as a concurrent batch; one session's failure does
// not block the rest.
func (d *Daemon) Connect(names []string) error {
	return d.supervisor.ConnectAll(d.ctx, names, d.factory)
}

// Wait blocks until a termination signal arrives or the last session is
// evicted. It returns sessions.ErrNoSessionsRemaining in the fatal case so
// the CLI can exit non-zero.
func (d *Daemon) Wait() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
		return d.Stop()

	case err := <-d.supervisor.Fatal():
		d.logger.Error().Err(err).Msg("All sessions gone, shutting down")
		if stopErr := d.Stop(); stopErr != nil {
			d.logger.Warn().Err(stopErr).Msg("Shutdown after fatal condition was not clean")
		}
		return err
	}
}

// Stop shuts the daemon down gracefully: supporting services first, then
// session loops via context cancellation.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping Lintas daemon")

	if d.cfgWatcher != nil {
		if err := d.cfgWatcher.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to stop config watcher")
		}
	}
	if d.watchdog != nil {
		d.watchdog.Stop()
	}
	if d.gateway != nil {
		if err := d.gateway.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to stop gateway server")
		}
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.supervisor.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		d.logger.Warn().Msg("Timeout waiting for session loops to stop")
	}

	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to close session journal")
		}
	}

	d.logger.Info().Msg("Daemon stopped")
	return nil
}

// Status describes the daemon's runtime state.
type Status struct {
	Running  bool
	Uptime   time.Duration
	Sessions []string
}

// Status returns the daemon status.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st := Status{
		Running:  d.running,
		Sessions: d.registry.Names(),
	}
	if d.running {
		st.Uptime = time.Since(d.startTime)
	}
	return st
}

// Registry returns the session registry.
func (d *Daemon) Registry() *sessions.Registry {
	return d.registry
}

// Supervisor returns the session supervisor.
func (d *Daemon) Supervisor() *sessions.Supervisor {
	return d.supervisor
}

// Dispatcher returns the command dispatcher.
func (d *Daemon) Dispatcher() *dispatch.Dispatcher {
	return d.dispatcher
}
