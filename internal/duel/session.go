// Package duel holds the state machine of a single 1v1 puzzle duel.
//
// Every mutation, including round timer fires, goes through the session mutex. The timer never
// touches state itself: it calls the TimeoutHandler, which comes back in through Timeout(round)
// so a stale fire can recognise itself.
package duel

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/park285/puzzle-duel/internal/duelerr"
	"github.com/park285/puzzle-duel/internal/obslog"
	"github.com/park285/puzzle-duel/internal/rating"
	"go.uber.org/zap"
)

type Session struct {
	mu sync.Mutex

	id           string
	players      [2]Participant
	totalRounds  int
	currentRound int
	puzzles      []int
	scores       [2][]int
	code         [2]string
	completed    [2]bool
	state        State
	roundStarted time.Time
	deadline     time.Time

	timer        *time.Timer
	roundTimeout time.Duration
	scorer       ScoreFunc
	onTimeout    TimeoutHandler
	now          func() time.Time
}

type Option func(*Session)

func WithRoundTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.roundTimeout = d
		}
	}
}

func WithScorer(f ScoreFunc) Option {
	return func(s *Session) { s.scorer = f }
}

func WithTimeoutHandler(h TimeoutHandler) Option {
	return func(s *Session) { s.onTimeout = h }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a session in WAITING state. One round is played per puzzle id.
func New(id string, players [2]Participant, puzzleIDs []int, opts ...Option) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, duelerr.IllegalStatef("duel.new", "empty session id")
	}
	a, b := strings.TrimSpace(players[0].ID), strings.TrimSpace(players[1].ID)
	if a == "" || b == "" || a == b {
		return nil, duelerr.InvalidParticipantf("duel.new", "players %q/%q", a, b)
	}
	if len(puzzleIDs) == 0 {
		return nil, duelerr.IllegalStatef("duel.new", "no puzzles")
	}
	s := &Session{
		id:           id,
		players:      players,
		totalRounds:  len(puzzleIDs),
		puzzles:      append([]int(nil), puzzleIDs...),
		state:        StateWaiting,
		roundTimeout: DefaultRoundTimeout,
		now:          time.Now,
	}
	s.players[0].ID, s.players[1].ID = a, b
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Players() [2]Participant { return s.players }

// IndexOf returns 0 or 1 for participants and -1 otherwise.
func (s *Session) IndexOf(userID string) int {
	switch userID {
	case s.players[0].ID:
		return 0
	case s.players[1].ID:
		return 1
	default:
		return -1
	}
}

func (s *Session) RoundTimeout() time.Duration { return s.roundTimeout }

// Start opens round 1 and arms its timer.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateWaiting || s.currentRound != 0 {
		return duelerr.IllegalStatef("duel.start", "session %s already started", s.id)
	}
	s.state = StateInProgress
	s.currentRound = 1
	s.resetRoundLocked()
	s.armLocked()
	obslog.L().Info("duel_start",
		zap.String("session_id", s.id),
		zap.String("player_a", s.players[0].ID),
		zap.String("player_b", s.players[1].ID),
		zap.Ints("puzzles", s.puzzles),
	)
	return nil
}

// RecordSubmission scores code for the current round. Scoring happens without the lock; if the
// round resolved in the meantime the submission is rejected with IllegalState.
func (s *Session) RecordSubmission(ctx context.Context, playerID, code string) (Submission, error) {
	s.mu.Lock()
	idx := s.IndexOf(playerID)
	if idx < 0 {
		s.mu.Unlock()
		return Submission{}, duelerr.InvalidParticipantf("duel.submit", "user %s not in session %s", playerID, s.id)
	}
	if s.state != StateInProgress {
		state := s.state
		s.mu.Unlock()
		return Submission{}, duelerr.IllegalStatef("duel.submit", "session %s is %s", s.id, state)
	}
	round := s.currentRound
	puzzleID := s.puzzles[round-1]
	elapsed := s.now().Sub(s.roundStarted)
	scorer := s.scorer
	s.mu.Unlock()

	score := 0
	if scorer != nil {
		score = scorer(ctx, puzzleID, code, elapsed)
	}
	if score < 0 {
		score = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress || s.currentRound != round {
		return Submission{}, &RoundClosedError{SessionID: s.id, Round: round}
	}
	for len(s.scores[idx]) < round-1 {
		s.scores[idx] = append(s.scores[idx], 0)
	}
	if len(s.scores[idx]) >= round {
		s.scores[idx][round-1] = score
	} else {
		s.scores[idx] = append(s.scores[idx], score)
	}
	s.code[idx] = code
	s.completed[idx] = true

	obslog.L().Info("duel_submission",
		zap.String("session_id", s.id),
		zap.String("user_id", playerID),
		zap.Int("round", round),
		zap.Int("score", score),
		zap.Duration("elapsed", elapsed),
	)
	return Submission{Score: score, Round: round, RoundComplete: s.roundCompleteLocked()}, nil
}

func (s *Session) IsRoundComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roundCompleteLocked()
}

// AdvanceOrEnd resolves the current round once both players have scored it. A second call
// for the same round finds the next, unscored round and returns OutcomeNone.
func (s *Session) AdvanceOrEnd() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress || !s.roundCompleteLocked() {
		return Outcome{Forfeiter: -1}
	}
	return s.advanceLocked()
}

// AdvanceIfComplete advances only if round is still current and both players have scored it.
// Concurrent callers for the same round get exactly one non-None outcome.
func (s *Session) AdvanceIfComplete(round int) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress || s.currentRound != round || !s.roundCompleteLocked() {
		return Outcome{Forfeiter: -1}
	}
	return s.advanceLocked()
}

// Timeout handles a timer fire for round. Stale or already complete rounds are ignored.
func (s *Session) Timeout(round int) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress || s.currentRound != round || s.roundCompleteLocked() {
		return Outcome{Forfeiter: -1}
	}
	obslog.L().Info("duel_round_timeout",
		zap.String("session_id", s.id),
		zap.Int("round", round),
		zap.Bools("completed", s.completed[:]),
	)
	return s.advanceLocked()
}

// Forfeit ends the session with playerID losing the fixed forfeit penalty. A session that
// has not started yet can be forfeited too.
func (s *Session) Forfeit(playerID string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.IndexOf(playerID)
	if idx < 0 {
		return Outcome{Forfeiter: -1}, duelerr.InvalidParticipantf("duel.forfeit", "user %s not in session %s", playerID, s.id)
	}
	if s.state == StateEnded {
		return Outcome{Forfeiter: -1}, duelerr.IllegalStatef("duel.forfeit", "session %s is %s", s.id, s.state)
	}
	s.state = StateEnded
	s.stopTimerLocked()
	results, deltas := rating.ForfeitSettle(idx)
	obslog.L().Info("duel_forfeit",
		zap.String("session_id", s.id),
		zap.String("user_id", playerID),
		zap.Int("round", s.currentRound),
	)
	return Outcome{
		Kind:           OutcomeGameOver,
		CompletedRound: s.currentRound,
		Round:          s.currentRound,
		Totals:         s.totalsLocked(),
		Results:        results,
		Deltas:         deltas,
		Forfeit:        true,
		Forfeiter:      idx,
	}, nil
}

func (s *Session) CurrentRound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentRound
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:           s.id,
		Players:      s.players,
		TotalRounds:  s.totalRounds,
		CurrentRound: s.currentRound,
		PuzzleIDs:    append([]int(nil), s.puzzles...),
		Scores:       [2][]int{append([]int(nil), s.scores[0]...), append([]int(nil), s.scores[1]...)},
		Completed:    s.completed,
		State:        s.state,
		RoundStarted: s.roundStarted,
		Deadline:     s.deadline,
	}
}

// Stop cancels the round timer without changing state.
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.mu.Unlock()
}

// advanceLocked is the only round transition. Callers hold s.mu and have re-checked state,
// round and completeness under it.
func (s *Session) advanceLocked() Outcome {
	if s.state != StateInProgress {
		return Outcome{Forfeiter: -1}
	}
	s.backfillLocked()
	completed := s.currentRound
	if s.currentRound < s.totalRounds {
		s.currentRound++
		s.resetRoundLocked()
		s.armLocked()
		out := Outcome{
			Kind:           OutcomeRoundComplete,
			CompletedRound: completed,
			Round:          s.currentRound,
			Totals:         s.totalsLocked(),
			NextPuzzleID:   s.puzzles[s.currentRound-1],
			Forfeiter:      -1,
		}
		obslog.L().Info("duel_round_complete",
			zap.String("session_id", s.id),
			zap.Int("round", completed),
			zap.Int("total_a", out.Totals[0]),
			zap.Int("total_b", out.Totals[1]),
		)
		return out
	}

	totals := s.totalsLocked()
	results, deltas := rating.Settle(s.players[0].Rating, s.players[1].Rating, totals[0], totals[1])
	s.state = StateEnded
	s.stopTimerLocked()
	obslog.L().Info("duel_game_over",
		zap.String("session_id", s.id),
		zap.Int("total_a", totals[0]),
		zap.Int("total_b", totals[1]),
		zap.String("result_a", string(results[0])),
		zap.Int("delta_a", deltas[0]),
	)
	return Outcome{
		Kind:           OutcomeGameOver,
		CompletedRound: completed,
		Round:          completed,
		Totals:         totals,
		Results:        results,
		Deltas:         deltas,
		Forfeiter:      -1,
	}
}

func (s *Session) roundCompleteLocked() bool {
	if s.currentRound == 0 {
		return false
	}
	return len(s.scores[0]) >= s.currentRound && len(s.scores[1]) >= s.currentRound
}

func (s *Session) backfillLocked() {
	for i := range s.scores {
		for len(s.scores[i]) < s.currentRound {
			s.scores[i] = append(s.scores[i], 0)
		}
	}
}

func (s *Session) totalsLocked() [2]int {
	return [2]int{sum(s.scores[0]), sum(s.scores[1])}
}

func (s *Session) resetRoundLocked() {
	s.code = [2]string{}
	s.completed = [2]bool{}
	s.roundStarted = s.now()
	s.deadline = s.roundStarted.Add(s.roundTimeout)
}

func (s *Session) armLocked() {
	s.stopTimerLocked()
	if s.onTimeout == nil {
		return
	}
	id, round, h := s.id, s.currentRound, s.onTimeout
	s.timer = time.AfterFunc(s.roundTimeout, func() { h(id, round) })
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
