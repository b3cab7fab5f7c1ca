// Package watchdog runs a periodic health sweep over registered sessions:
// state and authorization are logged, the active-session gauge refreshed,
// and a heartbeat journaled. It observes only; recovery decisions belong
// to the supervisor.
package watchdog

import (
	"context"
	"fmt"

	"github.com/dyah/lintas/internal/metrics"
	"github.com/dyah/lintas/pkg/sessions"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Config holds watchdog construction parameters.
type Config struct {
	// Registry is the session table to sweep. Required.
	Registry *sessions.Registry
	// Schedule is a cron spec, e.g. "@every 1m".
	Schedule string
	// Journal records heartbeats. Optional.
	Journal sessions.Recorder
	Logger  zerolog.Logger
}

// Watchdog is the periodic session health reporter.
type Watchdog struct {
	registry *sessions.Registry
	journal  sessions.Recorder
	logger   zerolog.Logger
	schedule string
	cron     *cron.Cron
}

// New creates a watchdog. The schedule is validated eagerly so a bad
// config fails at startup, not at first tick.
func New(cfg Config) (*Watchdog, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "@every 1m"
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid watchdog schedule %q: %w", schedule, err)
	}

	return &Watchdog{
		registry: cfg.Registry,
		journal:  cfg.Journal,
		logger:   cfg.Logger,
		schedule: schedule,
	}, nil
}

// Start begins the sweep schedule.
func (w *Watchdog) Start() error {
	if w.cron != nil {
		return fmt.Errorf("watchdog already started")
	}
	c := cron.New()
	if _, err := c.AddFunc(w.schedule, w.sweep); err != nil {
		return fmt.Errorf("failed to schedule watchdog sweep: %w", err)
	}
	c.Start()
	w.cron = c
	w.logger.Info().Str("schedule", w.schedule).Msg("Watchdog started")
	return nil
}

// Stop halts the schedule. A sweep already in flight finishes.
func (w *Watchdog) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
	w.cron = nil
	w.logger.Info().Msg("Watchdog stopped")
}

func (w *Watchdog) sweep() {
	handles := w.registry.Handles()
	metrics.SetActiveSessions(len(handles))

	running := 0
	for _, h := range handles {
		if h.State() == sessions.StateRunning {
			running++
		}
		w.logger.Debug().
			Str("session", h.Name()).
			Str("state", h.State().String()).
			Str("auth", h.AuthStatus().String()).
			Msg("Session health")
	}

	w.logger.Info().
		Int("sessions", len(handles)).
		Int("running", running).
		Msg("Watchdog sweep")

	if w.journal != nil {
		detail := fmt.Sprintf("sessions=%d running=%d", len(handles), running)
		if err := w.journal.Record(context.Background(), "", "heartbeat", detail); err != nil {
			w.logger.Warn().Err(err).Msg("Failed to journal watchdog heartbeat")
		}
	}
}
