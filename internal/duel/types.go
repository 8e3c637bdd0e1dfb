package duel

import (
	"context"
	"fmt"
	"time"

	"github.com/park285/puzzle-duel/internal/duelerr"
	"github.com/park285/puzzle-duel/internal/rating"
)

// State is the lifecycle of a session.
type State string

const (
	StateWaiting    State = "WAITING"
	StateInProgress State = "IN_PROGRESS"
	StateEnded      State = "ENDED"
)

const DefaultRoundTimeout = 300 * time.Second

// Participant is one side of a duel. Rating is the snapshot used for settlement.
type Participant struct {
	ID     string
	Name   string
	Rating int
}

// ScoreFunc turns a submission into a 0..100 score. It runs outside the session lock.
type ScoreFunc func(ctx context.Context, puzzleID int, code string, elapsed time.Duration) int

// TimeoutHandler is invoked by the round timer. Implementations re-enter the session via Timeout(round).
type TimeoutHandler func(sessionID string, round int)

type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomeRoundComplete
	OutcomeGameOver
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRoundComplete:
		return "round_complete"
	case OutcomeGameOver:
		return "game_over"
	default:
		return "none"
	}
}

// Outcome is what a transition produced. Kind None means nothing happened and there is nothing to publish.
type Outcome struct {
	Kind OutcomeKind
	// CompletedRound is the round that just resolved; Round is the round now in play
	// (equal to CompletedRound once the game is over).
	CompletedRound int
	Round          int
	Totals         [2]int
	NextPuzzleID   int
	Results        [2]rating.Result
	Deltas         [2]int
	Forfeit        bool
	// Forfeiter is the index of the forfeiting player, -1 otherwise.
	Forfeiter int
}

// Submission is the result of RecordSubmission.
type Submission struct {
	Score         int
	Round         int
	RoundComplete bool
}

// Snapshot is a copy of session state for read-only callers.
type Snapshot struct {
	ID           string
	Players      [2]Participant
	TotalRounds  int
	CurrentRound int
	PuzzleIDs    []int
	Scores       [2][]int
	Completed    [2]bool
	State        State
	RoundStarted time.Time
	Deadline     time.Time
}

// Totals sums the per-round scores of both players.
func (s Snapshot) Totals() [2]int {
	return [2]int{sum(s.Scores[0]), sum(s.Scores[1])}
}

func sum(xs []int) int {
	t := 0
	for _, x := range xs {
		t += x
	}
	return t
}

// RoundClosedError rejects a submission whose round resolved while it was being scored,
// usually by the round timer. It matches duelerr.IllegalState.
type RoundClosedError struct {
	SessionID string
	Round     int
}

func (e *RoundClosedError) Error() string {
	return fmt.Sprintf("duel.submit: illegal state: round %d of session %s already resolved", e.Round, e.SessionID)
}

func (e *RoundClosedError) Is(target error) bool { return target == duelerr.IllegalState }
