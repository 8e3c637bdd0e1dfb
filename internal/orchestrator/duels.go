package orchestrator

import (
	"context"
	"time"

	"github.com/park285/puzzle-duel/internal/duel"
	"github.com/park285/puzzle-duel/internal/duelerr"
	"github.com/park285/puzzle-duel/internal/event"
	"github.com/park285/puzzle-duel/internal/obslog"
	"github.com/park285/puzzle-duel/internal/puzzle"
	"github.com/park285/puzzle-duel/internal/store"
	"go.uber.org/zap"
)

// startDuel claims a and b, picks puzzles and starts the session. a is player A.
func (o *Orchestrator) startDuel(ctx context.Context, a, b string) error {
	const op = "orchestrator.start_duel"
	if err := o.deps.Lobby.MarkInDuel(a, b); err != nil {
		return err
	}
	pa, okA := o.deps.Lobby.Get(a)
	pb, okB := o.deps.Lobby.Get(b)
	if !okA || !okB {
		o.deps.Lobby.Release(a, b)
		return duelerr.NotFoundf(op, "players %s/%s left", a, b)
	}

	if o.deps.Catalog == nil {
		o.deps.Lobby.Release(a, b)
		return duelerr.Collaborator(op, puzzle.ErrEmpty)
	}
	list, err := o.deps.Catalog.ByType(ctx, o.opts.PuzzleType)
	if err != nil {
		o.deps.Lobby.Release(a, b)
		return duelerr.Collaborator(op, err)
	}
	ids, err := puzzle.Pick(list, o.opts.TotalRounds, o.opts.Rand)
	if err != nil {
		o.deps.Lobby.Release(a, b)
		return duelerr.Collaborator(op, err)
	}
	byID := make(map[int]puzzle.Puzzle, len(list))
	for _, p := range list {
		byID[p.ID] = p
	}

	id := o.opts.NewID()
	s, err := duel.New(id,
		[2]duel.Participant{
			{ID: pa.UserID, Name: pa.DisplayName, Rating: pa.Rating},
			{ID: pb.UserID, Name: pb.DisplayName, Rating: pb.Rating},
		},
		ids,
		duel.WithRoundTimeout(o.opts.RoundTimeout),
		duel.WithScorer(o.scorer(byID)),
		duel.WithTimeoutHandler(o.onRoundTimeout),
	)
	if err != nil {
		o.deps.Lobby.Release(a, b)
		return err
	}
	e := &entry{session: s, infos: [2]event.PlayerInfo{pa.Info(), pb.Info()}, puzzles: byID, startedAt: time.Now()}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.deps.Lobby.Release(a, b)
		return duelerr.IllegalStatef(op, "shutting down")
	}
	o.sessions[id] = e
	o.byUser[a] = id
	o.byUser[b] = id
	o.stopSearchLocked(a)
	o.stopSearchLocked(b)
	o.mu.Unlock()

	// A Leave that ran before registration found no session to forfeit.
	for _, userID := range [2]string{a, b} {
		if _, ok := o.deps.Lobby.Get(userID); ok {
			continue
		}
		if out, err := s.Forfeit(userID); err == nil {
			obslog.L().Info("duel_abandoned_before_start", zap.String("session_id", id), zap.String("user_id", userID))
			o.publish(ctx, e, out)
		}
		return nil
	}

	if err := s.Start(); err != nil {
		if s.State() == duel.StateEnded {
			// forfeited through Leave between registration and Start
			return nil
		}
		o.drop(id, e)
		o.deps.Lobby.Release(a, b)
		return err
	}

	obslog.L().Info("duel_created",
		zap.String("session_id", id),
		zap.String("player_a", a),
		zap.String("player_b", b),
		zap.Ints("puzzles", ids),
	)
	perRound := int(o.opts.RoundTimeout / time.Second)
	for i := 0; i < 2; i++ {
		o.send(ctx, e.infos[i].UserID, event.GameStarted{
			SessionID:       id,
			Opponent:        e.infos[1-i],
			TotalRounds:     len(ids),
			CurrentRound:    1,
			CurrentPuzzleID: ids[0],
			PerRoundSeconds: perRound,
		})
	}
	o.deps.Lobby.Broadcast(ctx)
	return nil
}

func (o *Orchestrator) scorer(byID map[int]puzzle.Puzzle) duel.ScoreFunc {
	return func(ctx context.Context, puzzleID int, code string, elapsed time.Duration) int {
		p, ok := byID[puzzleID]
		if !ok {
			p = puzzle.Puzzle{ID: puzzleID, Type: o.opts.PuzzleType}
		}
		return o.deps.Evaluator.Evaluate(ctx, code, p, elapsed).Total
	}
}

// onRoundTimeout runs on the round timer goroutine.
func (o *Orchestrator) onRoundTimeout(sessionID string, round int) {
	o.mu.Lock()
	e := o.sessions[sessionID]
	o.mu.Unlock()
	if e == nil {
		return
	}
	o.publish(context.Background(), e, e.session.Timeout(round))
}

func (o *Orchestrator) publish(ctx context.Context, e *entry, out duel.Outcome) {
	switch out.Kind {
	case duel.OutcomeNone:
		return
	case duel.OutcomeRoundComplete:
		id := e.session.ID()
		for i := 0; i < 2; i++ {
			o.send(ctx, e.infos[i].UserID, event.RoundComplete{
				SessionID:     id,
				CurrentRound:  out.Round,
				YourTotal:     out.Totals[i],
				OpponentTotal: out.Totals[1-i],
				NextPuzzleID:  out.NextPuzzleID,
			})
		}
	case duel.OutcomeGameOver:
		o.finish(ctx, e, out)
	}
}

// finish removes the session, tells both players, then persists and releases them.
func (o *Orchestrator) finish(ctx context.Context, e *entry, out duel.Outcome) {
	id := e.session.ID()
	o.drop(id, e)
	e.session.Stop()

	for i := 0; i < 2; i++ {
		o.send(ctx, e.infos[i].UserID, event.GameOver{
			SessionID:     id,
			YourTotal:     out.Totals[i],
			OpponentTotal: out.Totals[1-i],
			Result:        out.Results[i],
			RatingDelta:   out.Deltas[i],
			Forfeit:       out.Forfeit,
		})
	}

	o.persist(ctx, e, out)

	o.deps.Lobby.Release(e.infos[0].UserID, e.infos[1].UserID)
	o.deps.Lobby.Broadcast(ctx)
}

func (o *Orchestrator) persist(ctx context.Context, e *entry, out duel.Outcome) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.PersistTimeout)
	defer cancel()
	id := e.session.ID()

	if o.deps.Ratings != nil {
		for i := 0; i < 2; i++ {
			userID := e.infos[i].UserID
			updated, err := o.deps.Ratings.Adjust(pctx, userID, out.Deltas[i], out.Results[i])
			if err != nil {
				obslog.L().Error("rating_persist_failed",
					zap.String("session_id", id),
					zap.String("user_id", userID),
					zap.Int("delta", out.Deltas[i]),
					zap.Error(duelerr.Collaborator("orchestrator.persist", err)),
				)
				continue
			}
			obslog.L().Info("rating_updated", zap.String("user_id", userID), zap.Int("rating", updated), zap.Int("delta", out.Deltas[i]))
		}
	}

	if o.deps.Results != nil {
		rec := store.Record{
			SessionID: id,
			PlayerA:   e.infos[0].UserID,
			PlayerB:   e.infos[1].UserID,
			TotalA:    out.Totals[0],
			TotalB:    out.Totals[1],
			ResultA:   out.Results[0],
			ResultB:   out.Results[1],
			DeltaA:    out.Deltas[0],
			DeltaB:    out.Deltas[1],
			Forfeit:   out.Forfeit,
			Rounds:    out.Round,
			StartedAt: e.startedAt,
			EndedAt:   time.Now(),
		}
		if err := o.deps.Results.SaveResult(pctx, rec); err != nil {
			obslog.L().Error("duel_result_persist_failed", zap.String("session_id", id), zap.Error(err))
		}
	}
}

func (o *Orchestrator) drop(id string, e *entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sessions[id] == e {
		delete(o.sessions, id)
	}
	for _, info := range e.infos {
		if o.byUser[info.UserID] == id {
			delete(o.byUser, info.UserID)
		}
	}
}
