package livefeed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/natachasiqueira/clinicamentalize/internal/events"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

const writeTimeout = 5 * time.Second

// InboundMessage is what a subscriber may send.
type InboundMessage struct {
	Type string `json:"type"` // "ping"
}

// OutboundMessage is pushed to subscribers.
type OutboundMessage struct {
	Type  string           `json:"type"` // "hello", "event", "pong"
	Event *events.Envelope `json:"event,omitempty"`
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) send(msg OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return websocket.JSON.Send(s.conn, msg)
}

// Hub pushes outbox events to connected admin dashboards. It is an
// events.DeliveryHandler.
type Hub struct {
	logger *logging.Logger

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{logger: logger, subs: make(map[*subscriber]struct{})}
}

var _ events.DeliveryHandler = (*Hub)(nil)

// Subscribers returns the number of open connections.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// HandleWebSocket upgrades the request and streams events until the client
// disconnects.
// GET /admin/live
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(h.serveWS).ServeHTTP(w, r)
}

func (h *Hub) serveWS(conn *websocket.Conn) {
	sub := &subscriber{conn: conn}
	if err := sub.send(OutboundMessage{Type: "hello"}); err != nil {
		return
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	defer h.remove(sub)

	h.logger.Info("livefeed: subscriber connected", "remote", conn.Request().RemoteAddr)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("livefeed: connection closed", "error", err)
			return
		}
		if msg.Type == "ping" {
			_ = sub.send(OutboundMessage{Type: "pong"})
		}
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	delete(h.subs, sub)
	h.mu.Unlock()
	if ok {
		_ = sub.conn.Close()
	}
}

// Handle broadcasts the entry. Subscribers that cannot be written to are
// dropped; delivery to the others still succeeds.
func (h *Hub) Handle(ctx context.Context, entry events.OutboxEntry) error {
	env := events.EnvelopeFor(entry)
	msg := OutboundMessage{Type: "event", Event: &env}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if err := s.send(msg); err != nil {
			h.logger.Warn("livefeed: dropping subscriber", "error", err)
			h.remove(s)
		}
	}
	return nil
}
