// Package duelclient is a reconnecting websocket client for the duel server, used by
// duelcheck and the integration tests.
package duelclient

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/park285/puzzle-duel/internal/event"
	"github.com/park285/puzzle-duel/internal/obslog"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "disconnected"
}

var ErrNotConnected = errors.New("duelclient: not connected")

type EventCallback func(ev event.Outbound)

type StateCallback func(s State)

type Client struct {
	url    string
	userID string

	connM sync.Mutex
	conn  *websocket.Conn
	state State

	cbM      sync.RWMutex
	eventCbs []EventCallback
	stateCbs []StateCallback

	maxReconnect int
	pingInterval time.Duration
	rejoin       *event.JoinLobby

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type Option func(*Client)

// WithReconnect sets how many dial attempts follow a dropped connection. Zero disables it.
func WithReconnect(attempts int) Option {
	return func(c *Client) { c.maxReconnect = attempts }
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

// WithRejoin sends join on every successful connection, so a reconnect lands back in the lobby.
func WithRejoin(join event.JoinLobby) Option {
	return func(c *Client) { c.rejoin = &join }
}

// New targets a ws:// or wss:// URL of the /ws endpoint.
func New(wsURL, userID string, opts ...Option) *Client {
	c := &Client{
		url:          strings.TrimSpace(wsURL),
		userID:       strings.TrimSpace(userID),
		maxReconnect: 5,
		pingInterval: 30 * time.Second,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Connect(ctx context.Context) error {
	c.connM.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.connM.Unlock()
		return nil
	}
	c.connM.Unlock()

	c.setState(StateConnecting)
	if err := c.dial(ctx); err != nil {
		c.setState(StateFailed)
		return err
	}
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	hdr := http.Header{}
	hdr.Set("X-User-Id", c.userID)
	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      hdr,
	})
	if err != nil {
		return err
	}

	c.connM.Lock()
	if c.isStopping() {
		c.connM.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "closed")
		return ErrNotConnected
	}
	c.conn = conn
	c.connM.Unlock()
	c.setState(StateConnected)

	c.wg.Add(2)
	go c.listen(conn)
	go c.pingLoop(conn)

	if c.rejoin != nil {
		if err := c.Send(ctx, *c.rejoin); err != nil {
			obslog.L().Warn("duelclient_rejoin_failed", zap.String("user_id", c.userID), zap.Error(err))
		}
	}
	return nil
}

// Send writes one inbound event on the current connection.
func (c *Client) Send(ctx context.Context, ev event.Inbound) error {
	raw, err := event.EncodeInbound(ev)
	if err != nil {
		return err
	}
	c.connM.Lock()
	conn := c.conn
	c.connM.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, raw)
}

func (c *Client) listen(conn *websocket.Conn) {
	defer c.wg.Done()
	ctx := context.Background()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.dropped(conn, "read: "+err.Error())
			return
		}
		ev, err := event.DecodeOutbound(data)
		if err != nil {
			obslog.L().Debug("duelclient_bad_frame", zap.String("user_id", c.userID), zap.Error(err))
			continue
		}
		c.cbM.RLock()
		cbs := append([]EventCallback(nil), c.eventCbs...)
		c.cbM.RUnlock()
		for _, cb := range cbs {
			cb(ev)
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-t.C:
			if !c.current(conn) {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (c *Client) current(conn *websocket.Conn) bool {
	c.connM.Lock()
	defer c.connM.Unlock()
	return c.conn == conn
}

// dropped runs once per connection when its reader fails.
func (c *Client) dropped(conn *websocket.Conn, reason string) {
	c.connM.Lock()
	if c.conn != conn {
		c.connM.Unlock()
		return
	}
	c.conn = nil
	c.connM.Unlock()
	_ = conn.Close(websocket.StatusGoingAway, "reconnect")

	if c.isStopping() {
		return
	}
	obslog.L().Info("duelclient_disconnected", zap.String("user_id", c.userID), zap.String("reason", reason))
	c.setState(StateDisconnected)
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	if c.maxReconnect <= 0 {
		return
	}
	c.setState(StateReconnecting)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for attempt := 1; attempt <= c.maxReconnect; attempt++ {
			select {
			case <-c.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			if err := c.dial(context.Background()); err != nil {
				obslog.L().Debug("duelclient_reconnect_failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			return
		}
		c.setState(StateFailed)
	}()
}

func (c *Client) OnEvent(cb EventCallback) {
	c.cbM.Lock()
	c.eventCbs = append(c.eventCbs, cb)
	c.cbM.Unlock()
}

func (c *Client) OnStateChange(cb StateCallback) {
	c.cbM.Lock()
	c.stateCbs = append(c.stateCbs, cb)
	c.cbM.Unlock()
}

func (c *Client) State() State {
	c.connM.Lock()
	defer c.connM.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.connM.Lock()
	c.state = s
	c.connM.Unlock()

	c.cbM.RLock()
	cbs := append([]StateCallback(nil), c.stateCbs...)
	c.cbM.RUnlock()
	for _, cb := range cbs {
		cb(s)
	}
}

// Close stops reconnecting, closes the connection and waits for the goroutines.
func (c *Client) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.connM.Lock()
	conn := c.conn
	c.conn = nil
	c.connM.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		c.setState(StateClosed)
		return nil
	}
}

func (c *Client) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := 100 * time.Millisecond << (attempt - 1)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
