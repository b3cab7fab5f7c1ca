// Package gateway exposes a small websocket surface for operators: session
// status queries and command dispatch. It is transport glue around the
// supervisor, not part of the session lifecycle core.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dyah/lintas/internal/metrics"
	"github.com/dyah/lintas/pkg/protocol"
	"github.com/dyah/lintas/pkg/sessions"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Commander forwards one structured request to a named session.
// *dispatch.Dispatcher satisfies this.
type Commander interface {
	Invoke(ctx context.Context, session, method string, args map[string]interface{}) (interface{}, error)
}

// Request is one inbound gateway frame.
type Request struct {
	ID      string                 `json:"id"`
	Method  string                 `json:"method"`
	Session string                 `json:"session,omitempty"`
	Args    map[string]interface{} `json:"args,omitempty"`
}

// Response is one outbound gateway frame.
type Response struct {
	ID     string      `json:"id"`
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// SessionStatus describes one session for operators.
type SessionStatus struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	Authorized bool   `json:"authorized"`
}

// Config holds gateway construction parameters.
type Config struct {
	Host         string
	Port         int
	SharedSecret string
	Registry     *sessions.Registry
	Commander    Commander
	Logger       zerolog.Logger
}

// Server serves the websocket operator surface plus /metrics and /healthz.
type Server struct {
	addr         string
	sharedSecret string
	registry     *sessions.Registry
	commander    Commander
	logger       zerolog.Logger
	upgrader     websocket.Upgrader

	server *http.Server
	mu     sync.Mutex
}

// NewServer creates a gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Commander == nil {
		return nil, fmt.Errorf("commander is required")
	}

	return &Server{
		addr:         net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		sharedSecret: cfg.SharedSecret,
		registry:     cfg.Registry,
		commander:    cfg.Commander,
		logger:       cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Handler returns the gateway's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("gateway already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.server = &http.Server{Handler: s.Handler()}
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	s.logger.Info().Str("addr", s.addr).Msg("Gateway server started")
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()
	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.sharedSecret != "" && r.Header.Get("X-Lintas-Secret") != s.sharedSecret {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	connID, _ := gonanoid.New()
	log := s.logger.With().Str("conn_id", connID).Logger()
	log.Debug().Msg("Gateway connection opened")

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Gateway connection closed unexpectedly")
			}
			return
		}

		resp := s.handleRequest(r.Context(), req)
		if err := conn.WriteJSON(resp); err != nil {
			log.Warn().Err(err).Msg("Failed to write gateway response")
			return
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case "sessions.list":
		return Response{ID: req.ID, OK: true, Result: s.listSessions()}

	case "sessions.status":
		h, err := s.registry.Get(req.Session)
		if err != nil {
			return Response{ID: req.ID, Error: err.Error()}
		}
		return Response{ID: req.ID, OK: true, Result: statusOf(h)}

	case "dispatch":
		method, _ := req.Args["method"].(string)
		if method == "" {
			return Response{ID: req.ID, Error: "dispatch requires args.method"}
		}
		args, _ := req.Args["args"].(map[string]interface{})
		result, err := s.commander.Invoke(ctx, req.Session, method, args)
		if err != nil {
			return Response{ID: req.ID, Error: err.Error()}
		}
		return Response{ID: req.ID, OK: true, Result: result}

	default:
		return Response{ID: req.ID, Error: fmt.Sprintf("unknown method: %s", req.Method)}
	}
}

func (s *Server) listSessions() []SessionStatus {
	handles := s.registry.Handles()
	out := make([]SessionStatus, 0, len(handles))
	for _, h := range handles {
		out = append(out, statusOf(h))
	}
	return out
}

func statusOf(h *sessions.Handle) SessionStatus {
	return SessionStatus{
		Name:       h.Name(),
		State:      h.State().String(),
		Authorized: h.AuthStatus() == protocol.LoggedIn,
	}
}
