package duelclient

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/park285/puzzle-duel/internal/event"
	"github.com/park285/puzzle-duel/internal/httpapi"
	"github.com/park285/puzzle-duel/internal/lobby"
	"github.com/park285/puzzle-duel/internal/msgcat"
	"github.com/park285/puzzle-duel/internal/orchestrator"
	"github.com/park285/puzzle-duel/internal/puzzle"
	"github.com/park285/puzzle-duel/internal/rating"
	"github.com/park285/puzzle-duel/internal/scoring"
	"github.com/park285/puzzle-duel/internal/store"
	"github.com/park285/puzzle-duel/internal/wsgate"
)

type inbox struct {
	mu  sync.Mutex
	evs []event.Outbound
}

func (b *inbox) add(ev event.Outbound) {
	b.mu.Lock()
	b.evs = append(b.evs, ev)
	b.mu.Unlock()
}

func (b *inbox) first(kind event.Kind) (event.Outbound, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range b.evs {
		if ev.Kind() == kind {
			return ev, true
		}
	}
	return nil, false
}

func (b *inbox) wait(t *testing.T, kind event.Kind) event.Outbound {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if ev, ok := b.first(kind); ok {
			return ev
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", kind)
	return nil
}

type server struct {
	hub  *wsgate.Hub
	orch *orchestrator.Orchestrator
	dir  *lobby.Directory
	url  string
}

func newServer(t *testing.T) *server {
	t.Helper()
	msgs, err := msgcat.New("")
	if err != nil { t.Fatalf("msgcat: %v", err) }
	hub := wsgate.NewHub(wsgate.WithMessages(msgs))
	dir := lobby.NewDirectory(hub)
	assessor := scoring.AssessorFunc(func(_ context.Context, code string, _ puzzle.Puzzle) (scoring.Assessment, error) {
		if code == "good" {
			return scoring.Assessment{Correctness: 100, Quality: 100}, nil
		}
		return scoring.Assessment{}, nil
	})
	orch := orchestrator.New(orchestrator.Deps{
		Lobby:     dir,
		Transport: hub,
		Ratings:   store.NewMemoryRatingStore(0),
		Catalog:   puzzle.NewMemoryCatalogFrom([]puzzle.Puzzle{{ID: 7, Name: "p7", Type: puzzle.TypeMultiStep}}),
		Evaluator: scoring.NewEvaluator(assessor),
		Messages:  msgs,
	}, orchestrator.Options{TotalRounds: 1, RoundTimeout: time.Minute, SearchTimeout: time.Minute})
	hub.SetDispatcher(orch)

	srv := httptest.NewServer(httpapi.SetupRoutes(httpapi.Deps{WS: hub.Handler(), Lobby: dir, Duels: orch}))
	t.Cleanup(func() {
		orch.Shutdown()
		hub.CloseAll()
		srv.Close()
	})
	return &server{hub: hub, orch: orch, dir: dir, url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
}

func connect(t *testing.T, s *server, user, name string, opts ...Option) (*Client, *inbox) {
	t.Helper()
	opts = append([]Option{WithRejoin(event.JoinLobby{DisplayName: name})}, opts...)
	c := New(s.url, user, opts...)
	box := &inbox{}
	c.OnEvent(box.add)
	if err := c.Connect(context.Background()); err != nil { t.Fatalf("connect %s: %v", user, err) }
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c, box
}

func waitJoined(t *testing.T, s *server, ids ...string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		n := 0
		for _, id := range ids {
			if _, ok := s.dir.Get(id); ok {
				n++
			}
		}
		if n == len(ids) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("players %v never joined", ids)
}

func TestDuelOverWebsocket(t *testing.T) {
	s := newServer(t)
	alice, aBox := connect(t, s, "u1", "Alice")
	bob, bBox := connect(t, s, "u2", "Bob")
	waitJoined(t, s, "u1", "u2")

	ctx := context.Background()
	if err := alice.Send(ctx, event.FindOpponent{EloRange: 200}); err != nil { t.Fatalf("find: %v", err) }

	started := aBox.wait(t, event.KindGameStarted).(event.GameStarted)
	if started.Opponent.UserID != "u2" || started.Opponent.DisplayName != "Bob" || started.CurrentPuzzleID != 7 {
		t.Fatalf("unexpected GameStarted: %+v", started)
	}
	bBox.wait(t, event.KindGameStarted)

	if err := alice.Send(ctx, event.SubmitSolution{SessionID: started.SessionID, Code: "good"}); err != nil { t.Fatalf("submit: %v", err) }
	if err := bob.Send(ctx, event.SubmitSolution{SessionID: started.SessionID, Code: "bad"}); err != nil { t.Fatalf("submit: %v", err) }

	over := aBox.wait(t, event.KindGameOver).(event.GameOver)
	if over.Result != rating.Win || over.YourTotal <= over.OpponentTotal {
		t.Fatalf("unexpected GameOver for u1: %+v", over)
	}
	if got := bBox.wait(t, event.KindGameOver).(event.GameOver); got.Result != rating.Loss || got.RatingDelta != -over.RatingDelta {
		t.Fatalf("unexpected GameOver for u2: %+v", got)
	}
}

func TestMalformedRequestReportsError(t *testing.T) {
	s := newServer(t)
	alice, box := connect(t, s, "u1", "Alice")
	waitJoined(t, s, "u1")
	if err := alice.Send(context.Background(), event.SubmitSolution{SessionID: "missing", Code: "x"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if ev := box.wait(t, event.KindError).(event.Error); ev.Message == "" {
		t.Fatalf("expected an error message")
	}
}

func TestReconnectRejoinsLobby(t *testing.T) {
	s := newServer(t)
	c, _ := connect(t, s, "u1", "Alice", WithReconnect(5))
	waitJoined(t, s, "u1")

	var mu sync.Mutex
	var states []State
	c.OnStateChange(func(st State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})

	s.hub.CloseAll()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !(s.hub.Connected("u1") && c.State() == StateConnected) {
		time.Sleep(20 * time.Millisecond)
	}
	if !s.hub.Connected("u1") || c.State() != StateConnected {
		t.Fatalf("client did not reconnect, state=%s", c.State())
	}
	if p, ok := s.dir.Get("u1"); !ok || p.DisplayName != "Alice" || p.ConnRef == "" {
		t.Fatalf("unexpected lobby entry after rejoin: %+v %v", p, ok)
	}

	mu.Lock()
	defer mu.Unlock()
	sawReconnecting := false
	for _, st := range states {
		if st == StateReconnecting {
			sawReconnecting = true
		}
	}
	if !sawReconnecting {
		t.Fatalf("expected a reconnecting transition, got %v", states)
	}
}

func TestSendWithoutConnection(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws", "u1", WithReconnect(0))
	if err := c.Send(context.Background(), event.LeaveLobby{}); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestBackoffDuration(t *testing.T) {
	if backoffDuration(1) != 100*time.Millisecond || backoffDuration(3) != 400*time.Millisecond {
		t.Fatalf("unexpected backoff steps")
	}
	if backoffDuration(20) != 5*time.Second {
		t.Fatalf("backoff should cap at 5s")
	}
}
