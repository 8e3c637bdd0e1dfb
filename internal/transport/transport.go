package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/park285/puzzle-duel/internal/event"
)

// Topics for Broadcast.
const (
	TopicLobby = "lobby"
)

var ErrNotConnected = errors.New("user not connected")

// Transport delivers events to connected players. Delivery is best effort: callers log
// failures and move on.
type Transport interface {
	Send(ctx context.Context, userID string, ev event.Outbound) error
	Broadcast(ctx context.Context, topic string, ev event.Outbound) error
}

// Delivery is one recorded Send.
type Delivery struct {
	UserID string
	Event  event.Outbound
}

// Recorder is an in-memory Transport that keeps every delivery. Useful in tests and
// dry-run wiring.
type Recorder struct {
	mu        sync.Mutex
	sent      []Delivery
	broadcast []event.Outbound
	failFor   map[string]bool
}

func NewRecorder() *Recorder { return &Recorder{failFor: make(map[string]bool)} }

// FailFor makes every Send to userID return ErrNotConnected.
func (r *Recorder) FailFor(userID string) {
	r.mu.Lock()
	r.failFor[userID] = true
	r.mu.Unlock()
}

func (r *Recorder) Send(_ context.Context, userID string, ev event.Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[userID] {
		return ErrNotConnected
	}
	r.sent = append(r.sent, Delivery{UserID: userID, Event: ev})
	return nil
}

func (r *Recorder) Broadcast(_ context.Context, _ string, ev event.Outbound) error {
	r.mu.Lock()
	r.broadcast = append(r.broadcast, ev)
	r.mu.Unlock()
	return nil
}

// Sent returns a copy of all deliveries so far.
func (r *Recorder) Sent() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.sent...)
}

// For returns the events delivered to userID, optionally filtered by kind.
func (r *Recorder) For(userID string, kinds ...event.Kind) []event.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Outbound
	for _, d := range r.sent {
		if d.UserID != userID {
			continue
		}
		if len(kinds) > 0 && !hasKind(kinds, d.Event.Kind()) {
			continue
		}
		out = append(out, d.Event)
	}
	return out
}

// Last returns the most recent event of kind delivered to userID.
func (r *Recorder) Last(userID string, kind event.Kind) (event.Outbound, bool) {
	list := r.For(userID, kind)
	if len(list) == 0 {
		return nil, false
	}
	return list[len(list)-1], true
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.broadcast = nil
	r.mu.Unlock()
}

func hasKind(kinds []event.Kind, k event.Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

type connRefKey struct{}

// WithConnRef tags ctx with the id of the connection a request arrived on.
func WithConnRef(ctx context.Context, ref string) context.Context {
	return context.WithValue(ctx, connRefKey{}, ref)
}

// ConnRefFrom returns the connection id set by WithConnRef, or "".
func ConnRefFrom(ctx context.Context) string {
	ref, _ := ctx.Value(connRefKey{}).(string)
	return ref
}
