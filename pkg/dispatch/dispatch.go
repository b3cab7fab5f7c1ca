// Package dispatch forwards structured user requests (send message, fetch
// history, download media) to the protocol client of a named session. It
// holds no business logic of its own; every operation is a pass-through to
// Client.Invoke.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyah/lintas/pkg/protocol"
	"github.com/dyah/lintas/pkg/sessions"
	"github.com/rs/zerolog"
)

// SendMessageRequest asks a session to send a text message to a peer.
type SendMessageRequest struct {
	Peer string `json:"peer"`
	Text string `json:"text"`
}

// HistoryRequest fetches recent messages from a peer.
type HistoryRequest struct {
	Peer  string `json:"peer"`
	Limit int    `json:"limit"`
}

// DownloadMediaRequest downloads the media attached to a message.
type DownloadMediaRequest struct {
	Peer      string `json:"peer"`
	MessageID int64  `json:"message_id"`
}

// Subscriber receives inbound protocol events for one session.
type Subscriber func(evt protocol.Event)

// Dispatcher routes commands to session clients and fans inbound events
// out to per-session subscribers. Subscriber state is dropped when the
// registry removes the session.
type Dispatcher struct {
	registry *sessions.Registry
	logger   zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string][]Subscriber
}

// New creates a dispatcher over the registry and hooks session removal so
// stale subscriber state cannot outlive its session.
func New(registry *sessions.Registry, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		registry:    registry,
		logger:      logger,
		subscribers: make(map[string][]Subscriber),
	}
	registry.OnRemove(d.dropSession)
	return d
}

// SendMessage forwards a send request to the named session.
func (d *Dispatcher) SendMessage(ctx context.Context, session string, req SendMessageRequest) (interface{}, error) {
	return d.invoke(ctx, session, "messages.send", map[string]interface{}{
		"peer": req.Peer,
		"text": req.Text,
	})
}

// FetchHistory forwards a history request to the named session.
func (d *Dispatcher) FetchHistory(ctx context.Context, session string, req HistoryRequest) (interface{}, error) {
	return d.invoke(ctx, session, "messages.history", map[string]interface{}{
		"peer":  req.Peer,
		"limit": req.Limit,
	})
}

// DownloadMedia forwards a media download request to the named session.
func (d *Dispatcher) DownloadMedia(ctx context.Context, session string, req DownloadMediaRequest) (interface{}, error) {
	return d.invoke(ctx, session, "messages.downloadMedia", map[string]interface{}{
		"peer":       req.Peer,
		"message_id": req.MessageID,
	})
}

// Invoke forwards an arbitrary structured request. Transport layers that
// speak raw method names use this directly.
func (d *Dispatcher) Invoke(ctx context.Context, session, method string, args map[string]interface{}) (interface{}, error) {
	return d.invoke(ctx, session, method, args)
}

func (d *Dispatcher) invoke(ctx context.Context, session, method string, args map[string]interface{}) (interface{}, error) {
	h, err := d.registry.Get(session)
	if err != nil {
		return nil, err
	}

	result, err := h.Client().Invoke(ctx, method, args)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s on session %s: %w", method, session, err)
	}
	return result, nil
}

// Subscribe registers a subscriber for one session's inbound events.
func (d *Dispatcher) Subscribe(session string, fn Subscriber) {
	d.mu.Lock()
	d.subscribers[session] = append(d.subscribers[session], fn)
	d.mu.Unlock()
}

// HandleEvent implements protocol.EventHandler. The supervisor binds the
// dispatcher to every client before its loop starts.
func (d *Dispatcher) HandleEvent(ctx context.Context, evt protocol.Event) error {
	d.mu.RLock()
	subs := append([]Subscriber{}, d.subscribers[evt.Session]...)
	d.mu.RUnlock()

	for _, fn := range subs {
		fn(evt)
	}

	d.logger.Debug().
		Str("session", evt.Session).
		Str("kind", evt.Kind).
		Int("subscribers", len(subs)).
		Msg("Inbound event dispatched")
	return nil
}

func (d *Dispatcher) dropSession(session string) {
	d.mu.Lock()
	delete(d.subscribers, session)
	d.mu.Unlock()
}
