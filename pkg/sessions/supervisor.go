package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dyah/lintas/internal/logger"
	"github.com/dyah/lintas/internal/metrics"
	"github.com/dyah/lintas/pkg/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Recorder persists session lifecycle events. Implemented by pkg/journal;
// a nil Recorder disables journaling.
type Recorder interface {
	Record(ctx context.Context, session, event, detail string) error
}

// Supervisor orchestrates authorization, loop scheduling, and failure
// recovery across all sessions. Failures inside one session's loop are
// contained here and never cross into other sessions; only the eviction of
// the last session is fatal.
type Supervisor struct {
	registry *Registry
	handler  protocol.EventHandler
	journal  Recorder
	logger   zerolog.Logger
	quiet    func() func()

	fatal chan error
	wg    sync.WaitGroup
}

// SupervisorConfig holds supervisor construction parameters.
type SupervisorConfig struct {
	// Registry is the session table the supervisor drives. Required.
	Registry *Registry
	// EventHandler is bound to every client before its loop starts. The
	// command dispatcher supplies this; optional.
	EventHandler protocol.EventHandler
	// Journal records lifecycle events. Optional.
	Journal Recorder
	Logger  zerolog.Logger
	// Quiet suppresses verbose logging for the duration of an
	// authorization flow and returns the restore function. Defaults to
	// the process-wide logger suppression.
	Quiet func() func()
}

// NewSupervisor creates a supervisor over the given registry.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	quiet := cfg.Quiet
	if quiet == nil {
		quiet = logger.Quiet
	}
	return &Supervisor{
		registry: cfg.Registry,
		handler:  cfg.EventHandler,
		journal:  cfg.Journal,
		logger:   cfg.Logger,
		quiet:    quiet,
		fatal:    make(chan error, 1),
	}, nil
}

// Registry returns the supervised registry.
func (s *Supervisor) Registry() *Registry {
	return s.registry
}

// Fatal returns the channel on which the supervisor reports
// ErrNoSessionsRemaining. The daemon consumes it and exits non-zero; the
// condition is deliberately not auto-recovered, since the operator must
// decide whether to restart with fresh credentials.
func (s *Supervisor) Fatal() <-chan error {
	return s.fatal
}

// RunSession drives one session from its current state to running: the
// authorization handshake first when needed (with verbose logging
// suppressed for its duration), then client start, event handler binding,
// and loop scheduling. The scheduling call returns immediately; the loop
// runs as its own goroutine until failure or removal.
func (s *Supervisor) RunSession(ctx context.Context, h *Handle) error {
	if h.AuthStatus() != protocol.LoggedIn {
		if err := s.authorize(ctx, h); err != nil {
			return err
		}
	}
	return s.startSession(ctx, h)
}

// authorize runs the client's authorization procedure. The global log
// level is raised for the duration so interactive prompts stay readable;
// the restore runs on every exit path.
func (s *Supervisor) authorize(ctx context.Context, h *Handle) error {
	h.setState(StateAuthorizing)
	s.record(ctx, h.Name(), "authorizing", "")

	restore := s.quiet()
	defer restore()

	if err := h.Client().Authorize(ctx); err != nil {
		h.setState(StateStopped)
		metrics.RecordAuthorization(h.Name(), false)
		s.record(ctx, h.Name(), "authorize_failed", err.Error())
		return fmt.Errorf("failed to authorize session %s: %w", h.Name(), err)
	}

	metrics.RecordAuthorization(h.Name(), true)
	s.record(ctx, h.Name(), "authorized", "")
	return nil
}

// startSession starts the client, binds the event handler, and schedules
// the session's event loop.
func (s *Supervisor) startSession(ctx context.Context, h *Handle) error {
	if err := h.Client().Start(ctx); err != nil {
		h.setState(StateStopped)
		return fmt.Errorf("failed to start session %s: %w", h.Name(), err)
	}

	if s.handler != nil {
		h.Client().SetEventHandler(s.handler)
	}

	if !h.tryStartLoop() {
		return fmt.Errorf("session %s already has an active loop", h.Name())
	}

	metrics.RecordSessionStarted(h.Name())
	metrics.SetActiveSessions(s.registry.Len())
	s.record(ctx, h.Name(), "running", "")

	s.wg.Add(1)
	go s.runLoop(ctx, h)

	return nil
}

// runLoop is the long-lived per-session task. It blocks inside the
// client's own run loop and resolves failures when that loop returns.
func (s *Supervisor) runLoop(ctx context.Context, h *Handle) {
	defer s.wg.Done()
	defer h.loopDone()

	runID := uuid.NewString()
	log := s.logger.With().Str("session", h.Name()).Str("run_id", runID).Logger()
	log.Info().Msg("Session loop started")

	err := h.Client().RunLoop(ctx, nil)

	// A removed session's loop must go quiet: the forced NotLoggedIn
	// status is the cancellation signal, and whatever the loop returned
	// after removal is not a failure.
	if h.Removed() {
		log.Debug().Msg("Session loop exited after removal")
		return
	}

	if err == nil {
		log.Info().Msg("Session loop exited gracefully")
		s.record(ctx, h.Name(), "stopped", "")
		return
	}

	s.handleLoopFailure(ctx, h, err, log)
}

// handleLoopFailure contains a loop crash: log it, evict the session, and
// raise the fatal condition when the registry is left empty.
func (s *Supervisor) handleLoopFailure(ctx context.Context, h *Handle, err error, log zerolog.Logger) {
	var code, origin string
	var protoErr *protocol.Error
	if errors.As(err, &protoErr) {
		code = protoErr.Code
		origin = protoErr.Location
	}

	log.Error().
		Err(err).
		Str("code", code).
		Str("origin", origin).
		Str("path", h.Path()).
		Msg("Session loop failed")

	metrics.RecordLoopFailure(h.Name())
	s.record(ctx, h.Name(), "loop_failed", err.Error())

	if removeErr := s.registry.Remove(h.Name()); removeErr != nil {
		log.Warn().Err(removeErr).Msg("Failed to evict session after loop failure")
	}
	metrics.SetActiveSessions(s.registry.Len())

	if s.registry.Len() == 0 {
		s.record(ctx, h.Name(), "fatal", ErrNoSessionsRemaining.Error())
		log.Error().Msg("Last session evicted, nothing left to serve")
		select {
		case s.fatal <- ErrNoSessionsRemaining:
		default:
		}
	}
}

// ConnectAll resolves each name to a handle (reusing registered sessions,
// creating the rest via factory) and brings every session to running.
// Already-authorized sessions start immediately in supplied order; the
// remainder authorize as one concurrent batch before their loops are
// scheduled. A later failure never blocks or rolls back an earlier
// success.
func (s *Supervisor) ConnectAll(ctx context.Context, names []string, factory protocol.ClientFactory) error {
	var errs []error
	var pending []*Handle

	for _, name := range names {
		h, err := s.registry.Get(name)
		if err != nil {
			h, err = s.registry.Add(name, factory, nil)
			if err != nil {
				errs = append(errs, err)
				continue
			}
		}

		// A session whose loop is already live stays untouched; starting
		// its client again would double-start it.
		if h.State() == StateRunning {
			continue
		}

		if h.AuthStatus() == protocol.LoggedIn {
			if err := s.startSession(ctx, h); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		pending = append(pending, h)
	}

	if len(pending) > 0 {
		errs = append(errs, s.authorizeBatch(ctx, pending)...)
	}

	return errors.Join(errs...)
}

// authorizeBatch authorizes cold-start sessions concurrently under one
// shared log suppression scope, then schedules the loops of those that
// came out authorized.
func (s *Supervisor) authorizeBatch(ctx context.Context, pending []*Handle) []error {
	restore := s.quiet()

	var mu sync.Mutex
	var errs []error
	var wg sync.WaitGroup

	for _, h := range pending {
		h.setState(StateAuthorizing)
		s.record(ctx, h.Name(), "authorizing", "")

		wg.Add(1)
		go func(h *Handle) {
			defer wg.Done()
			if err := h.Client().Authorize(ctx); err != nil {
				h.setState(StateStopped)
				metrics.RecordAuthorization(h.Name(), false)
				s.record(ctx, h.Name(), "authorize_failed", err.Error())
				mu.Lock()
				errs = append(errs, fmt.Errorf("failed to authorize session %s: %w", h.Name(), err))
				mu.Unlock()
				return
			}
			metrics.RecordAuthorization(h.Name(), true)
			s.record(ctx, h.Name(), "authorized", "")
		}(h)
	}

	wg.Wait()
	restore()

	for _, h := range pending {
		if h.AuthStatus() != protocol.LoggedIn {
			continue
		}
		if err := s.startSession(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// Wait blocks until every scheduled session loop has exited.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) record(ctx context.Context, session, event, detail string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(ctx, session, event, detail); err != nil {
		s.logger.Warn().Err(err).Str("session", session).Msg("Failed to journal session event")
	}
}
