package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/park285/puzzle-duel/internal/obslog"
	"github.com/park285/puzzle-duel/internal/puzzle"
	"go.uber.org/zap"
)

const (
	DefaultCorrectness = 75
	DefaultQuality     = 70

	// BY_PASS floors and defaults.
	BypassCorrectness = 85
	BypassQuality     = 80

	weightCorrectness = 0.4
	weightQuality     = 0.3
	weightTime        = 0.3

	defaultTimeout = 8 * time.Second
)

// Assessment is what the external code evaluator reports for a submission.
type Assessment struct {
	Correctness int `json:"correctness"`
	Quality     int `json:"quality"`
}

// Assessor grades submitted code for a puzzle. Implementations may fail or hang; the
// evaluator bounds every call.
type Assessor interface {
	Assess(ctx context.Context, code string, p puzzle.Puzzle) (Assessment, error)
}

// AssessorFunc adapts a function to Assessor.
type AssessorFunc func(ctx context.Context, code string, p puzzle.Puzzle) (Assessment, error)

func (f AssessorFunc) Assess(ctx context.Context, code string, p puzzle.Puzzle) (Assessment, error) {
	return f(ctx, code, p)
}

type Result struct {
	Correctness int
	Quality     int
	TimeBonus   int
	Total       int
	// Fallback is set when the assessor failed and neutral defaults were used.
	Fallback bool
}

var errNoAssessor = errors.New("no assessor configured")

type Evaluator struct {
	assessor Assessor
	timeout  time.Duration
}

type Option func(*Evaluator)

func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEvaluator builds an evaluator. A nil assessor makes every submission fall back to defaults.
func NewEvaluator(a Assessor, opts ...Option) *Evaluator {
	e := &Evaluator{assessor: a, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate never fails: assessor errors and timeouts are absorbed into default sub-scores.
func (e *Evaluator) Evaluate(ctx context.Context, code string, p puzzle.Puzzle, elapsed time.Duration) Result {
	res := Result{TimeBonus: TimeBonus(elapsed)}

	if strings.TrimSpace(code) == "" {
		res.Total = Total(0, 0, res.TimeBonus)
		return res
	}

	a, err := e.assess(ctx, code, p)
	if err != nil {
		obslog.L().Warn("score_assess_fallback",
			zap.Int("puzzle_id", p.ID),
			zap.String("puzzle_type", string(p.Type)),
			zap.Error(err),
		)
		a = defaults(p.Type)
		res.Fallback = true
	} else if p.Type == puzzle.TypeBypass {
		a.Correctness = max(a.Correctness, BypassCorrectness)
		a.Quality = max(a.Quality, BypassQuality)
	}

	res.Correctness = Clamp(a.Correctness)
	res.Quality = Clamp(a.Quality)
	res.Total = Total(res.Correctness, res.Quality, res.TimeBonus)
	return res
}

// assess runs the assessor in its own goroutine so the deadline holds even if the
// implementation ignores ctx.
func (e *Evaluator) assess(ctx context.Context, code string, p puzzle.Puzzle) (Assessment, error) {
	if e == nil || e.assessor == nil {
		return Assessment{}, errNoAssessor
	}
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type reply struct {
		a   Assessment
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: fmt.Errorf("assessor panic: %v", r)}
			}
		}()
		a, err := e.assessor.Assess(cctx, code, p)
		ch <- reply{a: a, err: err}
	}()

	select {
	case r := <-ch:
		return r.a, r.err
	case <-cctx.Done():
		return Assessment{}, fmt.Errorf("assess: %w", cctx.Err())
	}
}

func defaults(t puzzle.Type) Assessment {
	if t == puzzle.TypeBypass {
		return Assessment{Correctness: BypassCorrectness, Quality: BypassQuality}
	}
	return Assessment{Correctness: DefaultCorrectness, Quality: DefaultQuality}
}

// Total combines clamped sub-scores into the round score.
func Total(correctness, quality, timeBonus int) int {
	v := float64(Clamp(correctness))*weightCorrectness +
		float64(Clamp(quality))*weightQuality +
		float64(Clamp(timeBonus))*weightTime
	return Clamp(int(math.Round(v)))
}

func Clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
