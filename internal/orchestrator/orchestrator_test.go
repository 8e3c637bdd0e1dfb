package orchestrator

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/park285/puzzle-duel/internal/duelerr"
	"github.com/park285/puzzle-duel/internal/event"
	"github.com/park285/puzzle-duel/internal/lobby"
	"github.com/park285/puzzle-duel/internal/msgcat"
	"github.com/park285/puzzle-duel/internal/puzzle"
	"github.com/park285/puzzle-duel/internal/rating"
	"github.com/park285/puzzle-duel/internal/scoring"
	"github.com/park285/puzzle-duel/internal/store"
	"github.com/park285/puzzle-duel/internal/transport"
)

type harness struct {
	o       *Orchestrator
	rec     *transport.Recorder
	lobby   *lobby.Directory
	ratings *store.MemoryRatingStore
	results *resultSpy
}

type resultSpy struct {
	mu   sync.Mutex
	recs []store.Record
}

func (r *resultSpy) SaveResult(_ context.Context, rec store.Record) error {
	r.mu.Lock()
	r.recs = append(r.recs, rec)
	r.mu.Unlock()
	return nil
}

func (r *resultSpy) all() []store.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.Record(nil), r.recs...)
}

type failingCatalog struct{}

func (failingCatalog) ByType(context.Context, puzzle.Type) ([]puzzle.Puzzle, error) {
	return nil, errors.New("catalog down")
}
func (failingCatalog) Get(context.Context, int) (puzzle.Puzzle, error) {
	return puzzle.Puzzle{}, puzzle.ErrNotFound
}

type failingRatings struct{}

func (failingRatings) Get(context.Context, string) (int, error) { return 0, errors.New("store down") }
func (failingRatings) Adjust(context.Context, string, int, rating.Result) (int, error) {
	return 0, errors.New("store down")
}

// leavingCatalog runs leave once, while the duel's puzzles are being looked up.
type leavingCatalog struct {
	puzzle.Catalog
	leave func()
}

func (c *leavingCatalog) ByType(ctx context.Context, t puzzle.Type) ([]puzzle.Puzzle, error) {
	if c.leave != nil {
		leave := c.leave
		c.leave = nil
		leave()
	}
	return c.Catalog.ByType(ctx, t)
}

// "good" scores 100 and anything else 30 when submitted immediately.
var testAssessor = scoring.AssessorFunc(func(_ context.Context, code string, _ puzzle.Puzzle) (scoring.Assessment, error) {
	if code == "good" {
		return scoring.Assessment{Correctness: 100, Quality: 100}, nil
	}
	return scoring.Assessment{}, nil
})

func newHarness(t *testing.T, mutate func(*Deps, *Options)) *harness {
	t.Helper()
	rec := transport.NewRecorder()
	dir := lobby.NewDirectory(rec)
	ratings := store.NewMemoryRatingStore(0)
	msgs, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	results := &resultSpy{}
	deps := Deps{
		Lobby:     dir,
		Transport: rec,
		Ratings:   ratings,
		Catalog: puzzle.NewMemoryCatalogFrom([]puzzle.Puzzle{
			{ID: 1, Name: "p1", Type: puzzle.TypeMultiStep},
			{ID: 2, Name: "p2", Type: puzzle.TypeMultiStep},
			{ID: 3, Name: "p3", Type: puzzle.TypeMultiStep},
		}),
		Evaluator: scoring.NewEvaluator(testAssessor),
		Results:   results,
		Messages:  msgs,
	}
	opts := Options{RoundTimeout: time.Minute, SearchTimeout: time.Minute}
	if mutate != nil {
		mutate(&deps, &opts)
	}
	o := New(deps, opts)
	t.Cleanup(o.Shutdown)
	return &harness{o: o, rec: rec, lobby: dir, ratings: ratings, results: results}
}

func (h *harness) join(t *testing.T, userID, name string) {
	t.Helper()
	if err := h.o.Handle(context.Background(), userID, event.JoinLobby{DisplayName: name}); err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
}

func (h *harness) startDuel(t *testing.T) string {
	t.Helper()
	h.join(t, "u1", "Alice")
	h.join(t, "u2", "Bob")
	if err := h.o.Handle(context.Background(), "u1", event.FindOpponent{EloRange: 200}); err != nil {
		t.Fatalf("FindOpponent: %v", err)
	}
	ev, ok := h.rec.Last("u1", event.KindGameStarted)
	if !ok {
		t.Fatalf("u1 got no GameStarted")
	}
	return ev.(event.GameStarted).SessionID
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestFindOpponentStartsDuel(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.ratings.Adjust(context.Background(), "u2", 40, rating.Win); err != nil {
		t.Fatalf("seed rating: %v", err)
	}
	id := h.startDuel(t)

	for _, pair := range [][2]string{{"u1", "u2"}, {"u2", "u1"}} {
		ev, ok := h.rec.Last(pair[0], event.KindGameStarted)
		if !ok {
			t.Fatalf("%s got no GameStarted", pair[0])
		}
		gs := ev.(event.GameStarted)
		if gs.SessionID != id || gs.Opponent.UserID != pair[1] || gs.TotalRounds != 3 || gs.CurrentRound != 1 || gs.PerRoundSeconds != 60 {
			t.Fatalf("unexpected GameStarted for %s: %+v", pair[0], gs)
		}
	}
	if gs, _ := h.rec.Last("u1", event.KindGameStarted); gs.(event.GameStarted).Opponent.Rating != 1040 {
		t.Fatalf("opponent rating snapshot = %+v", gs)
	}
	if got, ok := h.o.SessionOf("u2"); !ok || got != id {
		t.Fatalf("SessionOf(u2) = %q %v", got, ok)
	}
	if n := len(h.lobby.Available("")); n != 0 {
		t.Fatalf("players in a duel must not be available, got %d", n)
	}
	if n := len(h.o.ActiveSessions()); n != 1 {
		t.Fatalf("active sessions = %d", n)
	}
}

func TestFullDuelSettlesAndPersists(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.ratings.Adjust(ctx, "u2", 40, rating.Win); err != nil {
		t.Fatalf("seed rating: %v", err)
	}
	id := h.startDuel(t)

	for r := 1; r <= 3; r++ {
		if err := h.o.Handle(ctx, "u1", event.SubmitSolution{SessionID: id, Code: "good"}); err != nil {
			t.Fatalf("round %d u1: %v", r, err)
		}
		if err := h.o.Handle(ctx, "u2", event.SubmitSolution{SessionID: id, Code: "meh"}); err != nil {
			t.Fatalf("round %d u2: %v", r, err)
		}
	}
	sub, _ := h.rec.Last("u1", event.KindSolutionSubmitted)
	if s := sub.(event.SolutionSubmitted); s.Score != 100 || s.Round != 3 || s.Message == "" {
		t.Fatalf("unexpected SolutionSubmitted %+v", s)
	}
	if n := len(h.rec.For("u1", event.KindRoundComplete)); n != 2 {
		t.Fatalf("expected 2 RoundComplete, got %d", n)
	}

	want := rating.Delta(1000, 1040)
	ev, ok := h.rec.Last("u1", event.KindGameOver)
	if !ok {
		t.Fatalf("u1 got no GameOver")
	}
	g1 := ev.(event.GameOver)
	if g1.YourTotal != 300 || g1.OpponentTotal != 90 || g1.Result != rating.Win || g1.RatingDelta != want || g1.Forfeit {
		t.Fatalf("u1 GameOver = %+v", g1)
	}
	ev, _ = h.rec.Last("u2", event.KindGameOver)
	if g2 := ev.(event.GameOver); g2.Result != rating.Loss || g2.RatingDelta != -want {
		t.Fatalf("u2 GameOver = %+v", g2)
	}

	if r, _ := h.ratings.Get(ctx, "u1"); r != 1000+want {
		t.Fatalf("u1 rating = %d", r)
	}
	if r, _ := h.ratings.Get(ctx, "u2"); r != 1040-want {
		t.Fatalf("u2 rating = %d", r)
	}
	recs := h.results.all()
	if len(recs) != 1 || recs[0].SessionID != id || recs[0].TotalA != 300 || recs[0].Rounds != 3 {
		t.Fatalf("archived = %+v", recs)
	}
	if _, ok := h.o.SessionOf("u1"); ok {
		t.Fatalf("session should be removed")
	}
	if n := len(h.lobby.Available("")); n != 2 {
		t.Fatalf("players should be released, available = %d", n)
	}
	if err := h.o.Handle(ctx, "u1", event.SubmitSolution{SessionID: id, Code: "good"}); !errors.Is(err, duelerr.NotFound) {
		t.Fatalf("submit after end: %v", err)
	}
}

func TestConcurrentSubmissionsAdvanceOnce(t *testing.T) {
	h := newHarness(t, nil)
	id := h.startDuel(t)
	var wg sync.WaitGroup
	for _, u := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_ = h.o.Handle(context.Background(), u, event.SubmitSolution{SessionID: id, Code: "good"})
		}(u)
	}
	wg.Wait()
	for _, u := range []string{"u1", "u2"} {
		if n := len(h.rec.For(u, event.KindRoundComplete)); n != 1 {
			t.Fatalf("%s got %d RoundComplete", u, n)
		}
	}
	if err := h.o.Handle(context.Background(), "u1", event.RequestNextRound{SessionID: id}); !errors.Is(err, duelerr.IllegalState) {
		t.Fatalf("round 2 has no submissions yet, got %v", err)
	}
}

func TestRequestNextRound(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	id := h.startDuel(t)
	if err := h.o.Handle(ctx, "u1", event.SubmitSolution{SessionID: id, Code: "good"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	err := h.o.Handle(ctx, "u1", event.RequestNextRound{SessionID: id})
	if !errors.Is(err, duelerr.IllegalState) {
		t.Fatalf("expected IllegalState, got %v", err)
	}
	ev, _ := h.rec.Last("u1", event.KindError)
	if msg := ev.(event.Error).Message; msg != "Round 1 is still in progress." {
		t.Fatalf("error message = %q", msg)
	}

	h.join(t, "u3", "Carol")
	if err := h.o.Handle(ctx, "u3", event.RequestNextRound{SessionID: id}); !errors.Is(err, duelerr.InvalidParticipant) {
		t.Fatalf("outsider: %v", err)
	}
	if err := h.o.Handle(ctx, "u3", event.SubmitSolution{SessionID: id, Code: "x"}); !errors.Is(err, duelerr.InvalidParticipant) {
		t.Fatalf("outsider submit: %v", err)
	}
}

func TestForfeit(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	id := h.startDuel(t)
	if err := h.o.Handle(ctx, "u1", event.SubmitSolution{SessionID: id, Code: "good"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := h.o.Handle(ctx, "u2", event.Forfeit{SessionID: id}); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	ev, _ := h.rec.Last("u2", event.KindGameOver)
	if g := ev.(event.GameOver); g.Result != rating.Loss || g.RatingDelta != -rating.ForfeitPoints || !g.Forfeit {
		t.Fatalf("forfeiter GameOver = %+v", g)
	}
	ev, _ = h.rec.Last("u1", event.KindGameOver)
	if g := ev.(event.GameOver); g.Result != rating.Win || g.RatingDelta != rating.ForfeitPoints || g.YourTotal != 100 {
		t.Fatalf("winner GameOver = %+v", g)
	}
	if r, _ := h.ratings.Get(ctx, "u2"); r != 1000-rating.ForfeitPoints {
		t.Fatalf("u2 rating = %d", r)
	}
	if err := h.o.Handle(ctx, "u1", event.Forfeit{SessionID: id}); !errors.Is(err, duelerr.NotFound) {
		t.Fatalf("second forfeit: %v", err)
	}
}

func TestDisconnectForfeits(t *testing.T) {
	h := newHarness(t, nil)
	h.startDuel(t)
	h.o.Disconnect(context.Background(), "u1")

	ev, ok := h.rec.Last("u2", event.KindGameOver)
	if !ok {
		t.Fatalf("u2 got no GameOver")
	}
	if g := ev.(event.GameOver); g.Result != rating.Win || !g.Forfeit {
		t.Fatalf("GameOver = %+v", g)
	}
	if _, ok := h.lobby.Get("u1"); ok {
		t.Fatalf("u1 should have left the lobby")
	}
	if got := h.lobby.Available(""); len(got) != 1 || got[0].UserID != "u2" {
		t.Fatalf("available = %+v", got)
	}
	// a second disconnect has nothing left to do
	h.o.Disconnect(context.Background(), "u1")
}

func TestRoundTimeoutBackfills(t *testing.T) {
	h := newHarness(t, func(_ *Deps, o *Options) { o.RoundTimeout = 30 * time.Millisecond })
	id := h.startDuel(t)
	if err := h.o.Handle(context.Background(), "u1", event.SubmitSolution{SessionID: id, Code: "good"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "round complete", func() bool {
		_, ok := h.rec.Last("u2", event.KindRoundComplete)
		return ok
	})
	rc := h.rec.For("u2", event.KindRoundComplete)[0].(event.RoundComplete)
	if rc.CurrentRound != 2 || rc.YourTotal != 0 || rc.OpponentTotal != 100 {
		t.Fatalf("RoundComplete = %+v", rc)
	}
	// the remaining rounds time out too and the game ends in a win for u1
	waitFor(t, "game over", func() bool {
		_, ok := h.rec.Last("u1", event.KindGameOver)
		return ok
	})
	ev, _ := h.rec.Last("u1", event.KindGameOver)
	if g := ev.(event.GameOver); g.Result != rating.Win || g.YourTotal != 100 || g.OpponentTotal != 0 {
		t.Fatalf("GameOver = %+v", g)
	}
}

func TestSearchTimeoutSendsNoOpponent(t *testing.T) {
	h := newHarness(t, func(_ *Deps, o *Options) { o.SearchTimeout = 20 * time.Millisecond })
	h.join(t, "u1", "Alice")
	h.join(t, "u2", "Bob")
	if _, err := h.ratings.Adjust(context.Background(), "u3", 900, rating.Win); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := h.o.Handle(context.Background(), "u1", event.LeaveLobby{}); err != nil {
		t.Fatalf("leave: %v", err)
	}
	h.join(t, "u3", "Carol")
	if err := h.o.Handle(context.Background(), "u3", event.FindOpponent{EloRange: 100, Strict: true}); err != nil {
		t.Fatalf("FindOpponent: %v", err)
	}
	if !h.lobby.IsSearching("u3") {
		t.Fatalf("u3 should be searching")
	}
	waitFor(t, "no opponent", func() bool {
		_, ok := h.rec.Last("u3", event.KindNoOpponentFound)
		return ok
	})
	if h.lobby.IsSearching("u3") {
		t.Fatalf("search should be stopped")
	}
	if _, ok := h.rec.Last("u2", event.KindNoOpponentFound); ok {
		t.Fatalf("u2 never searched")
	}
}

func TestSearchCancelledByMatch(t *testing.T) {
	h := newHarness(t, func(_ *Deps, o *Options) { o.SearchTimeout = 30 * time.Millisecond })
	h.join(t, "u1", "Alice")
	if err := h.o.Handle(context.Background(), "u1", event.FindOpponent{}); err != nil {
		t.Fatalf("FindOpponent: %v", err)
	}
	h.join(t, "u2", "Bob")
	if err := h.o.Handle(context.Background(), "u2", event.FindOpponent{}); err != nil {
		t.Fatalf("FindOpponent u2: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if _, ok := h.rec.Last("u1", event.KindNoOpponentFound); ok {
		t.Fatalf("matched player must not get NoOpponentFound")
	}
	if ev, ok := h.rec.Last("u1", event.KindGameStarted); !ok || ev.(event.GameStarted).Opponent.UserID != "u2" {
		t.Fatalf("u1 should be in a duel with u2")
	}
}

func TestChallengeRejectThenAccept(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.join(t, "u1", "Alice")
	h.join(t, "u2", "Bob")

	if err := h.o.Handle(ctx, "u1", event.Challenge{TargetID: "u2"}); err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	if ev, ok := h.rec.Last("u2", event.KindChallengeReceived); !ok || ev.(event.ChallengeReceived).Challenger.UserID != "u1" {
		t.Fatalf("u2 should receive the challenge")
	}
	if ev, ok := h.rec.Last("u1", event.KindChallengeSent); !ok || ev.(event.ChallengeSent).Target.UserID != "u2" {
		t.Fatalf("u1 should get ChallengeSent")
	}
	if err := h.o.Handle(ctx, "u2", event.RejectChallenge{ChallengerID: "u1"}); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	ev, ok := h.rec.Last("u1", event.KindChallengeRejected)
	if !ok || !strings.Contains(ev.(event.ChallengeRejected).Message, "Bob") {
		t.Fatalf("ChallengeRejected = %+v", ev)
	}

	if err := h.o.Handle(ctx, "u1", event.Challenge{TargetID: "u2"}); err != nil {
		t.Fatalf("Challenge again: %v", err)
	}
	if err := h.o.Handle(ctx, "u2", event.AcceptChallenge{ChallengerID: "u1"}); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	ev, ok = h.rec.Last("u2", event.KindGameStarted)
	if !ok || ev.(event.GameStarted).Opponent.UserID != "u1" {
		t.Fatalf("u2 GameStarted = %+v", ev)
	}
	snaps := h.o.ActiveSessions()
	if len(snaps) != 1 || snaps[0].Players[0].ID != "u1" {
		t.Fatalf("challenger must be player A: %+v", snaps)
	}
	if err := h.o.Handle(ctx, "u2", event.AcceptChallenge{ChallengerID: "u1"}); !errors.Is(err, duelerr.NotFound) {
		t.Fatalf("double accept: %v", err)
	}
}

func TestCatalogFailureReleasesPlayers(t *testing.T) {
	h := newHarness(t, func(d *Deps, _ *Options) { d.Catalog = failingCatalog{} })
	h.join(t, "u1", "Alice")
	h.join(t, "u2", "Bob")
	err := h.o.Handle(context.Background(), "u1", event.FindOpponent{})
	if !errors.Is(err, duelerr.CollaboratorFailure) {
		t.Fatalf("expected CollaboratorFailure, got %v", err)
	}
	if _, ok := h.rec.Last("u1", event.KindError); !ok {
		t.Fatalf("u1 should get an Error event")
	}
	if n := len(h.lobby.Available("")); n != 2 {
		t.Fatalf("players should be released, available = %d", n)
	}
}

func TestRatingStoreFailures(t *testing.T) {
	h := newHarness(t, func(d *Deps, _ *Options) { d.Ratings = failingRatings{} })
	id := h.startDuel(t)
	if gs, _ := h.rec.Last("u1", event.KindGameStarted); gs.(event.GameStarted).Opponent.Rating != rating.DefaultRating {
		t.Fatalf("rating lookup failure should fall back to default")
	}
	if err := h.o.Handle(context.Background(), "u1", event.Forfeit{SessionID: id}); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	if _, ok := h.rec.Last("u2", event.KindGameOver); !ok {
		t.Fatalf("GameOver must be sent even when ratings cannot be saved")
	}
	if n := len(h.lobby.Available("")); n != 2 {
		t.Fatalf("players should be released, available = %d", n)
	}
}

func TestUnknownSessionReportsError(t *testing.T) {
	h := newHarness(t, nil)
	h.join(t, "u1", "Alice")
	err := h.o.Handle(context.Background(), "u1", event.SubmitSolution{SessionID: "nope", Code: "x"})
	if !errors.Is(err, duelerr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	ev, ok := h.rec.Last("u1", event.KindError)
	if !ok || ev.(event.Error).Message == "" || strings.Contains(ev.(event.Error).Message, "nope") {
		t.Fatalf("Error event = %+v", ev)
	}
}

func TestShutdownRejectsNewDuels(t *testing.T) {
	h := newHarness(t, nil)
	h.join(t, "u1", "Alice")
	h.join(t, "u2", "Bob")
	h.o.Shutdown()
	if err := h.o.Handle(context.Background(), "u1", event.FindOpponent{}); !errors.Is(err, duelerr.IllegalState) {
		t.Fatalf("expected IllegalState after shutdown, got %v", err)
	}
	if n := len(h.lobby.Available("")); n != 2 {
		t.Fatalf("players should be released, available = %d", n)
	}
}

func TestLeaveDuringDuelSetupForfeits(t *testing.T) {
	cat := &leavingCatalog{}
	h := newHarness(t, func(d *Deps, _ *Options) {
		cat.Catalog = d.Catalog
		d.Catalog = cat
	})
	ctx := context.Background()
	h.join(t, "u1", "Alice")
	h.join(t, "u2", "Bob")
	cat.leave = func() {
		if err := h.lobby.Leave(ctx, "u1"); err != nil {
			t.Errorf("Leave: %v", err)
		}
	}
	if err := h.o.Handle(ctx, "u1", event.FindOpponent{}); err != nil {
		t.Fatalf("FindOpponent: %v", err)
	}

	ev, ok := h.rec.Last("u2", event.KindGameOver)
	if !ok {
		t.Fatalf("u2 got no GameOver")
	}
	if g := ev.(event.GameOver); !g.Forfeit || g.Result != rating.Win || g.RatingDelta != rating.ForfeitPoints {
		t.Fatalf("GameOver = %+v", g)
	}
	if _, ok := h.rec.Last("u2", event.KindGameStarted); ok {
		t.Fatalf("a duel abandoned before its start must not be announced")
	}
	if n := len(h.o.ActiveSessions()); n != 0 {
		t.Fatalf("active sessions = %d", n)
	}
	if _, ok := h.o.SessionOf("u2"); ok {
		t.Fatalf("u2 still mapped to a session")
	}
	if p, ok := h.lobby.Get("u2"); !ok || p.InDuel {
		t.Fatalf("u2 should be back in the lobby: %+v %v", p, ok)
	}
	if r, _ := h.ratings.Get(ctx, "u2"); r != 1000+rating.ForfeitPoints {
		t.Fatalf("u2 rating = %d", r)
	}
}

func TestSubmissionScoredAfterTimeoutGetsRoundClosed(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gated := scoring.AssessorFunc(func(ctx context.Context, code string, p puzzle.Puzzle) (scoring.Assessment, error) {
		if code == "slow" {
			close(entered)
			<-release
		}
		return testAssessor(ctx, code, p)
	})
	h := newHarness(t, func(d *Deps, _ *Options) { d.Evaluator = scoring.NewEvaluator(gated) })
	id := h.startDuel(t)

	errc := make(chan error, 1)
	go func() {
		errc <- h.o.Handle(context.Background(), "u1", event.SubmitSolution{SessionID: id, Code: "slow"})
	}()
	<-entered
	h.o.onRoundTimeout(id, 1)
	close(release)

	if err := <-errc; !errors.Is(err, duelerr.IllegalState) {
		t.Fatalf("expected IllegalState, got %v", err)
	}
	ev, ok := h.rec.Last("u1", event.KindError)
	if !ok {
		t.Fatalf("u1 got no Error")
	}
	if msg := ev.(event.Error).Message; msg != "Round 1 closed before your submission was scored." {
		t.Fatalf("error message = %q", msg)
	}
	if _, ok := h.rec.Last("u1", event.KindSolutionSubmitted); ok {
		t.Fatalf("late submission must not be acknowledged")
	}
	rc, ok := h.rec.Last("u2", event.KindRoundComplete)
	if !ok || rc.(event.RoundComplete).CurrentRound != 2 || rc.(event.RoundComplete).YourTotal != 0 {
		t.Fatalf("RoundComplete = %+v", rc)
	}
}

func TestEmbeddedMessagesCoverMessageKeys(t *testing.T) {
	msgs, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	if missing := msgs.Missing(MessageKeys...); len(missing) != 0 {
		t.Fatalf("missing messages: %v", missing)
	}
	for _, k := range kindKeys {
		if !slices.Contains(MessageKeys, k.key) {
			t.Fatalf("%s is rendered but not listed in MessageKeys", k.key)
		}
	}
}
