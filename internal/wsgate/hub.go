// Package wsgate carries player events over websockets. Hub implements transport.Transport.
package wsgate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/puzzle-duel/internal/event"
	"github.com/park285/puzzle-duel/internal/msgcat"
	"github.com/park285/puzzle-duel/internal/obslog"
	"github.com/park285/puzzle-duel/internal/transport"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

var ErrOutboxFull = errors.New("outbox full")

// Dispatcher receives decoded events. The orchestrator implements it.
type Dispatcher interface {
	Handle(ctx context.Context, userID string, ev event.Inbound) error
	Disconnect(ctx context.Context, userID string)
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client

	dispatcher atomic.Pointer[dispatcherBox]
	messages   *msgcat.Catalog

	originPatterns []string
	outboxSize     int
	writeTimeout   time.Duration
	pingInterval   time.Duration

	seq atomic.Uint64
}

type dispatcherBox struct{ d Dispatcher }

type Option func(*Hub)

func WithOriginPatterns(p []string) Option {
	return func(h *Hub) { h.originPatterns = append([]string(nil), p...) }
}

func WithMessages(c *msgcat.Catalog) Option {
	return func(h *Hub) { h.messages = c }
}

func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

func WithOutboxSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.outboxSize = n
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients:      make(map[string]*client),
		outboxSize:   32,
		writeTimeout: 3 * time.Second,
		pingInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetDispatcher wires the event consumer. The hub and the orchestrator depend on each other,
// so this happens after both are built.
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.dispatcher.Store(&dispatcherBox{d: d})
}

func (h *Hub) getDispatcher() Dispatcher {
	if b := h.dispatcher.Load(); b != nil {
		return b.d
	}
	return nil
}

// Send queues ev for userID without blocking.
func (h *Hub) Send(_ context.Context, userID string, ev event.Outbound) error {
	h.mu.RLock()
	c := h.clients[userID]
	h.mu.RUnlock()
	if c == nil {
		return transport.ErrNotConnected
	}
	raw, err := event.EncodeOutbound(ev)
	if err != nil {
		return err
	}
	return c.enqueue(raw)
}

// Broadcast sends ev to every connected player. The lobby topic is the only one.
func (h *Hub) Broadcast(ctx context.Context, topic string, ev event.Outbound) error {
	if topic != transport.TopicLobby {
		return fmt.Errorf("unknown topic %q", topic)
	}
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	var errs []error
	for _, id := range ids {
		if err := h.Send(ctx, id, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Connected reports whether userID has a live connection.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll drops every connection, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	list := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		list = append(list, c)
	}
	h.clients = make(map[string]*client)
	h.mu.Unlock()
	for _, c := range list {
		c.close(websocket.StatusGoingAway, "server shutting down")
	}
}

// UserID extracts the player identity from the upgrade request.
func UserID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-User-Id")); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("user"))
}

// Handler upgrades the request and runs the connection until it closes.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := UserID(r)
		if userID == "" {
			http.Error(w, "missing user", http.StatusBadRequest)
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
		if err != nil {
			obslog.L().Warn("ws_accept_failed", zap.String("user_id", userID), zap.Error(err))
			return
		}

		c := &client{
			id:     fmt.Sprintf("conn-%d", h.seq.Add(1)),
			userID: userID,
			conn:   conn,
			out:    make(chan []byte, h.outboxSize),
			done:   make(chan struct{}),
		}
		if prev := h.register(c); prev != nil {
			prev.close(websocket.StatusPolicyViolation, "replaced by a new connection")
		}
		obslog.L().Info("ws_connected", zap.String("user_id", userID), zap.String("conn_id", c.id))

		ctx, cancel := context.WithCancel(transport.WithConnRef(r.Context(), c.id))
		defer cancel()
		go h.writeLoop(ctx, c)
		go h.pingLoop(ctx, c)

		h.readLoop(ctx, c)

		c.close(websocket.StatusNormalClosure, "bye")
		if h.unregister(c) {
			obslog.L().Info("ws_disconnected", zap.String("user_id", userID), zap.String("conn_id", c.id))
			if d := h.getDispatcher(); d != nil {
				d.Disconnect(context.WithoutCancel(ctx), userID)
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				obslog.L().Debug("ws_read_end", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		ev, err := event.DecodeInbound(data)
		if err != nil {
			msg := h.messages.Text("errors.bad_request", nil, "bad request")
			if raw, encErr := event.EncodeOutbound(event.Error{Message: msg}); encErr == nil {
				_ = c.enqueue(raw)
			}
			continue
		}
		d := h.getDispatcher()
		if d == nil {
			continue
		}
		if err := d.Handle(ctx, c.userID, ev); err != nil {
			obslog.L().Debug("ws_event_rejected", zap.String("user_id", c.userID), zap.String("event", string(ev.Kind())), zap.Error(err))
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case raw := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, raw)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_failed", zap.String("user_id", c.userID), zap.Error(err))
				c.close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (h *Hub) pingLoop(ctx context.Context, c *client) {
	t := time.NewTicker(h.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				obslog.L().Info("ws_ping_timeout", zap.String("user_id", c.userID))
				c.close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

// register installs c and returns the connection it replaced, if any.
func (h *Hub) register(c *client) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.clients[c.userID]
	h.clients[c.userID] = c
	return prev
}

// unregister removes c only if it is still the user's current connection.
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] != c {
		return false
	}
	delete(h.clients, c.userID)
	return true
}

type client struct {
	id     string
	userID string
	conn   *websocket.Conn
	out    chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *client) enqueue(raw []byte) error {
	select {
	case <-c.done:
		return transport.ErrNotConnected
	default:
	}
	select {
	case c.out <- raw:
		return nil
	case <-c.done:
		return transport.ErrNotConnected
	default:
		return ErrOutboxFull
	}
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close(code, reason)
	})
}
