package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/engine"
	"github.com/kpoilly/AIOps-Agent-Experiments/pkg/types"
)

const (
	heartbeatInterval = 30 * time.Second
	writeWait         = 10 * time.Second
	clientBuffer      = 64
)

// defaultOrigins are the development front ends allowed when no origins are
// configured.
var defaultOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// newUpgrader builds a websocket upgrader that accepts requests without an
// Origin header, any origin when "*" is listed, and otherwise only the listed
// origins. Origins compare case-insensitively and ignore a trailing slash.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = normalizeOrigin(o)
		if o == "" {
			continue
		}
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	if len(allowed) == 0 {
		for _, o := range defaultOrigins {
			allowed[o] = struct{}{}
		}
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll {
				return true
			}
			_, ok := allowed[normalizeOrigin(origin)]
			return ok
		},
	}
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

// HubOption configures an EventHub.
type HubOption func(*EventHub)

// WithConnectionGauge tracks the number of connected clients in g.
func WithConnectionGauge(g prometheus.Gauge) HubOption {
	return func(h *EventHub) { h.gauge = g }
}

// EventHub broadcasts run lifecycle events to websocket clients. It
// implements engine.Hooks; a slow client drops events rather than stalling
// the run that emits them.
type EventHub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
	gauge    prometheus.Gauge

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

// NewEventHub creates a hub accepting websocket clients from allowedOrigins.
func NewEventHub(allowedOrigins []string, logger *zap.Logger, opts ...HubOption) *EventHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &EventHub{
		upgrader: newUpgrader(allowedOrigins),
		logger:   logger,
		clients:  make(map[*wsClient]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// wsClient is one connected subscriber.
type wsClient struct {
	conn *websocket.Conn
	send chan types.Event
	done chan struct{}
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

// ServeWS upgrades the request and streams events until the client leaves or
// the hub closes.
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("origin", r.Header.Get("Origin")))
		return
	}
	// The HTTP server's deadlines carry over to the hijacked connection.
	_ = conn.SetReadDeadline(time.Time{})

	c := &wsClient{
		conn: conn,
		send: make(chan types.Event, clientBuffer),
		done: make(chan struct{}),
	}
	if !h.register(c) {
		conn.Close()
		return
	}
	defer h.unregister(c)

	h.logger.Debug("websocket client connected", zap.String("remote", r.RemoteAddr))
	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *EventHub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	if h.gauge != nil {
		h.gauge.Inc()
	}
	return true
}

func (h *EventHub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		if h.gauge != nil {
			h.gauge.Dec()
		}
	}
	h.mu.Unlock()
	c.close()
}

// readLoop discards client messages; it only exists to notice disconnects.
func (h *EventHub) readLoop(c *wsClient) {
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writeLoop owns all writes to the connection and closes it on exit.
func (h *EventHub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(heartbeatInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case ev := <-c.send:
			if err := h.write(c, ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := h.write(c, types.Event{Type: types.EventHeartbeat, Timestamp: time.Now().UTC()}); err != nil {
				return
			}
		}
	}
}

func (h *EventHub) write(c *wsClient, ev types.Event) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(ev); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
		return err
	}
	return nil
}

// Broadcast queues ev for every client without blocking.
func (h *EventHub) Broadcast(ev types.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.logger.Warn("dropping event for slow websocket client", zap.String("type", ev.Type), zap.String("run_id", ev.RunID))
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		c.close()
	}
}

// ─── engine.Hooks ─────────────────────────────────────────────────────────────

func (h *EventHub) RunStarted(_ context.Context, run engine.RunInfo) {
	h.Broadcast(types.Event{Type: types.EventRunStarted, RunID: run.RunID, Alert: run.AlertSummary})
}

func (h *EventHub) TurnCompleted(_ context.Context, run engine.RunInfo, turn int, decision engine.Decision) {
	h.Broadcast(types.Event{Type: types.EventTurnCompleted, RunID: run.RunID, Turn: turn, Decision: string(decision)})
}

func (h *EventHub) CapabilityInvoked(_ context.Context, run engine.RunInfo, inv engine.Invocation) {
	ev := types.Event{
		Type:       types.EventCapabilityInvoked,
		RunID:      run.RunID,
		Capability: inv.Capability,
		Status:     string(inv.Status),
	}
	if inv.Err != nil {
		ev.Error = inv.Err.Error()
	}
	h.Broadcast(ev)
}

func (h *EventHub) RunFinished(_ context.Context, run engine.RunInfo, d *engine.Diagnosis) {
	h.Broadcast(types.Event{
		Type:    types.EventRunFinished,
		RunID:   run.RunID,
		Turn:    d.Turns,
		Outcome: string(d.Outcome),
		Result:  d.Result,
		Error:   d.Error,
	})
}
