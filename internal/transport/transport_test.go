package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/park285/puzzle-duel/internal/event"
)

func TestRecorderFiltersByUserAndKind(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()
	_ = r.Send(ctx, "u1", event.LobbyUpdate{})
	_ = r.Send(ctx, "u2", event.NoOpponentFound{Message: "none"})
	_ = r.Send(ctx, "u1", event.Error{Message: "first"})
	_ = r.Send(ctx, "u1", event.Error{Message: "second"})

	if got := len(r.For("u1")); got != 3 {
		t.Fatalf("u1 deliveries = %d, want 3", got)
	}
	if got := len(r.For("u1", event.KindError)); got != 2 {
		t.Fatalf("u1 errors = %d, want 2", got)
	}
	last, ok := r.Last("u1", event.KindError)
	if !ok || last.(event.Error).Message != "second" {
		t.Fatalf("unexpected last: %#v", last)
	}
	if _, ok := r.Last("u2", event.KindError); ok {
		t.Fatalf("u2 has no errors")
	}

	r.Reset()
	if len(r.Sent()) != 0 {
		t.Fatalf("Reset left deliveries behind")
	}
}

func TestRecorderFailFor(t *testing.T) {
	r := NewRecorder()
	r.FailFor("u1")
	if err := r.Send(context.Background(), "u1", event.LobbyUpdate{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if len(r.Sent()) != 0 {
		t.Fatalf("failed send must not be recorded")
	}
}

func TestConnRef(t *testing.T) {
	if ConnRefFrom(context.Background()) != "" {
		t.Fatalf("empty context should carry no ref")
	}
	if got := ConnRefFrom(WithConnRef(context.Background(), "conn-7")); got != "conn-7" {
		t.Fatalf("ConnRefFrom = %q", got)
	}
}
