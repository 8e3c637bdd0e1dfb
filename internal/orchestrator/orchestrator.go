// Package orchestrator routes player events to the lobby and to duel sessions, and publishes
// what those transitions produce.
package orchestrator

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/puzzle-duel/internal/duel"
	"github.com/park285/puzzle-duel/internal/duelerr"
	"github.com/park285/puzzle-duel/internal/event"
	"github.com/park285/puzzle-duel/internal/lobby"
	"github.com/park285/puzzle-duel/internal/msgcat"
	"github.com/park285/puzzle-duel/internal/obslog"
	"github.com/park285/puzzle-duel/internal/puzzle"
	"github.com/park285/puzzle-duel/internal/rating"
	"github.com/park285/puzzle-duel/internal/scoring"
	"github.com/park285/puzzle-duel/internal/store"
	"github.com/park285/puzzle-duel/internal/transport"
	"go.uber.org/zap"
)

type Deps struct {
	Lobby     *lobby.Directory
	Transport transport.Transport
	Ratings   store.RatingStore
	Catalog   puzzle.Catalog
	Evaluator *scoring.Evaluator
	// Results is optional.
	Results  store.ResultRecorder
	Messages *msgcat.Catalog
}

type Options struct {
	TotalRounds     int
	RoundTimeout    time.Duration
	SearchTimeout   time.Duration
	DefaultEloRange int
	DefaultRating   int
	PuzzleType      puzzle.Type
	// PersistTimeout bounds rating and result writes after a game ends.
	PersistTimeout time.Duration
	Rand           *rand.Rand
	NewID          func() string
}

func (o *Options) withDefaults() {
	if o.TotalRounds <= 0 {
		o.TotalRounds = 3
	}
	if o.RoundTimeout <= 0 {
		o.RoundTimeout = duel.DefaultRoundTimeout
	}
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = 14 * time.Second
	}
	if o.DefaultEloRange <= 0 {
		o.DefaultEloRange = lobby.DefaultEloRange
	}
	if o.DefaultRating <= 0 {
		o.DefaultRating = rating.DefaultRating
	}
	if o.PuzzleType == "" {
		o.PuzzleType = puzzle.TypeMultiStep
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 5 * time.Second
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
}

type Orchestrator struct {
	deps Deps
	opts Options

	mu       sync.Mutex
	sessions map[string]*entry
	byUser   map[string]string
	searches map[string]*searchTimer
	closed   bool
}

type entry struct {
	session   *duel.Session
	infos     [2]event.PlayerInfo
	puzzles   map[int]puzzle.Puzzle
	startedAt time.Time
}

type searchTimer struct{ t *time.Timer }

// New wires the orchestrator and registers it as the lobby's forfeiter.
func New(deps Deps, opts Options) *Orchestrator {
	opts.withDefaults()
	if deps.Evaluator == nil {
		deps.Evaluator = scoring.NewEvaluator(nil)
	}
	o := &Orchestrator{
		deps:     deps,
		opts:     opts,
		sessions: make(map[string]*entry),
		byUser:   make(map[string]string),
		searches: make(map[string]*searchTimer),
	}
	if deps.Lobby != nil {
		deps.Lobby.SetForfeiter(o)
	}
	return o
}

// Handle processes one inbound event from userID. Failures are reported to the user as an
// Error event and returned to the caller.
func (o *Orchestrator) Handle(ctx context.Context, userID string, ev event.Inbound) error {
	var err error
	switch ev := ev.(type) {
	case event.JoinLobby:
		err = o.join(ctx, userID, ev)
	case event.LeaveLobby:
		o.cancelSearch(userID)
		err = o.deps.Lobby.Leave(ctx, userID)
	case event.FindOpponent:
		err = o.findOpponent(ctx, userID, ev)
	case event.Challenge:
		err = o.challenge(ctx, userID, ev)
	case event.AcceptChallenge:
		err = o.acceptChallenge(ctx, userID, ev)
	case event.RejectChallenge:
		err = o.rejectChallenge(ctx, userID, ev)
	case event.SubmitSolution:
		err = o.submit(ctx, userID, ev)
	case event.RequestNextRound:
		err = o.requestNextRound(ctx, userID, ev)
	case event.Forfeit:
		err = o.forfeit(ctx, userID, ev)
	default:
		err = duelerr.IllegalStatef("orchestrator.handle", "unsupported event %T", ev)
	}
	if err != nil {
		o.reportError(ctx, userID, ev, err)
	}
	return err
}

// Disconnect treats a dropped connection as leaving the lobby, which forfeits any running duel.
func (o *Orchestrator) Disconnect(ctx context.Context, userID string) {
	o.cancelSearch(userID)
	if err := o.deps.Lobby.Leave(ctx, userID); err != nil {
		if err := o.ForfeitUser(ctx, userID); err != nil {
			obslog.L().Warn("duel_disconnect_forfeit_error", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

// ForfeitUser forfeits the running duel of userID, if any.
func (o *Orchestrator) ForfeitUser(ctx context.Context, userID string) error {
	o.mu.Lock()
	id, ok := o.byUser[userID]
	e := o.sessions[id]
	o.mu.Unlock()
	if !ok || e == nil {
		return nil
	}
	out, err := e.session.Forfeit(userID)
	if err != nil {
		return err
	}
	o.publish(ctx, e, out)
	return nil
}

// Shutdown stops every timer and drops all sessions. In-progress duels are not settled.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	for _, e := range o.sessions {
		e.session.Stop()
	}
	for _, st := range o.searches {
		st.t.Stop()
	}
	o.sessions = make(map[string]*entry)
	o.byUser = make(map[string]string)
	o.searches = make(map[string]*searchTimer)
	obslog.L().Info("duel_orchestrator_shutdown")
}

// ActiveSessions returns snapshots of running duels ordered by id.
func (o *Orchestrator) ActiveSessions() []duel.Snapshot {
	o.mu.Lock()
	list := make([]*entry, 0, len(o.sessions))
	for _, e := range o.sessions {
		list = append(list, e)
	}
	o.mu.Unlock()
	out := make([]duel.Snapshot, 0, len(list))
	for _, e := range list {
		out = append(out, e.session.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SessionOf returns the id of the duel userID is playing.
func (o *Orchestrator) SessionOf(userID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id, ok := o.byUser[userID]
	return id, ok
}

func (o *Orchestrator) join(ctx context.Context, userID string, ev event.JoinLobby) error {
	r := o.opts.DefaultRating
	if o.deps.Ratings != nil {
		v, err := o.deps.Ratings.Get(ctx, userID)
		if err != nil {
			obslog.L().Warn("rating_lookup_fallback", zap.String("user_id", userID), zap.Error(err))
		} else {
			r = v
		}
	}
	return o.deps.Lobby.Join(ctx, lobby.Player{
		UserID:      userID,
		DisplayName: ev.DisplayName,
		AvatarRef:   ev.AvatarRef,
		Rating:      r,
		ConnRef:     transport.ConnRefFrom(ctx),
	})
}

func (o *Orchestrator) findOpponent(ctx context.Context, userID string, ev event.FindOpponent) error {
	eloRange := ev.EloRange
	if eloRange <= 0 {
		eloRange = o.opts.DefaultEloRange
	}
	m, err := o.deps.Lobby.FindOpponent(ctx, userID, eloRange, ev.Strict)
	if err != nil {
		return err
	}
	if m == nil {
		o.armSearch(userID)
		return nil
	}
	return o.startDuel(ctx, userID, m.UserID)
}

func (o *Orchestrator) challenge(ctx context.Context, userID string, ev event.Challenge) error {
	c, t, err := o.deps.Lobby.Challenge(userID, ev.TargetID)
	if err != nil {
		return err
	}
	o.send(ctx, t.UserID, event.ChallengeReceived{Challenger: c.Info()})
	o.send(ctx, c.UserID, event.ChallengeSent{Target: t.Info()})
	return nil
}

func (o *Orchestrator) acceptChallenge(ctx context.Context, userID string, ev event.AcceptChallenge) error {
	c, a, err := o.deps.Lobby.AcceptChallenge(userID, ev.ChallengerID)
	if err != nil {
		return err
	}
	return o.startDuel(ctx, c.UserID, a.UserID)
}

func (o *Orchestrator) rejectChallenge(ctx context.Context, userID string, ev event.RejectChallenge) error {
	c, r, err := o.deps.Lobby.RejectChallenge(userID, ev.ChallengerID)
	if err != nil {
		return err
	}
	msg := o.text("challenge.rejected", map[string]any{"Name": r.DisplayName}, r.DisplayName+" declined your challenge.")
	o.send(ctx, c.UserID, event.ChallengeRejected{Rejecter: r.Info(), Message: msg})
	return nil
}

func (o *Orchestrator) submit(ctx context.Context, userID string, ev event.SubmitSolution) error {
	e, err := o.lookup("orchestrator.submit", ev.SessionID)
	if err != nil {
		return err
	}
	sub, err := e.session.RecordSubmission(ctx, userID, ev.Code)
	if err != nil {
		var closed *duel.RoundClosedError
		if errors.As(err, &closed) {
			return withNotice(err, "duel.round_closed", map[string]any{"Round": closed.Round})
		}
		return err
	}
	msg := o.text("duel.submitted", map[string]any{"Round": sub.Round, "Score": sub.Score}, "")
	o.send(ctx, userID, event.SolutionSubmitted{SessionID: ev.SessionID, Round: sub.Round, Score: sub.Score, Message: msg})
	if sub.RoundComplete {
		o.publish(ctx, e, e.session.AdvanceIfComplete(sub.Round))
	}
	return nil
}

func (o *Orchestrator) requestNextRound(ctx context.Context, userID string, ev event.RequestNextRound) error {
	e, err := o.lookup("orchestrator.next_round", ev.SessionID)
	if err != nil {
		return err
	}
	if e.session.IndexOf(userID) < 0 {
		return duelerr.InvalidParticipantf("orchestrator.next_round", "user %s not in session %s", userID, ev.SessionID)
	}
	snap := e.session.Snapshot()
	round := snap.CurrentRound
	if len(snap.Scores[0]) < round || len(snap.Scores[1]) < round {
		return withNotice(
			duelerr.IllegalStatef("orchestrator.next_round", "round %d still in progress", round),
			"duel.round_in_progress", map[string]any{"Round": round},
		)
	}
	o.publish(ctx, e, e.session.AdvanceIfComplete(round))
	return nil
}

func (o *Orchestrator) forfeit(ctx context.Context, userID string, ev event.Forfeit) error {
	e, err := o.lookup("orchestrator.forfeit", ev.SessionID)
	if err != nil {
		return err
	}
	out, err := e.session.Forfeit(userID)
	if err != nil {
		return err
	}
	o.publish(ctx, e, out)
	return nil
}

func (o *Orchestrator) lookup(op, sessionID string) (*entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.sessions[sessionID]
	if !ok {
		return nil, duelerr.NotFoundf(op, "session %s", sessionID)
	}
	return e, nil
}

func (o *Orchestrator) send(ctx context.Context, userID string, ev event.Outbound) {
	if o.deps.Transport == nil {
		return
	}
	if err := o.deps.Transport.Send(ctx, userID, ev); err != nil {
		obslog.L().Debug("duel_send_failed", zap.String("user_id", userID), zap.String("event", string(ev.Kind())), zap.Error(err))
	}
}

func (o *Orchestrator) text(key string, data any, fallback string) string {
	return o.deps.Messages.Text(key, data, fallback)
}
