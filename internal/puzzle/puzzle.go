package puzzle

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
)

type Type string

const (
	TypeBypass    Type = "BY_PASS"
	TypeFaulty    Type = "FAULTY"
	TypeMultiStep Type = "MULTI_STEP"
)

// ParseType accepts the catalog spellings (BY_PASS, Faulty, Multi_Step, ...). Unknown values map to MULTI_STEP.
func ParseType(s string) Type {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BY_PASS", "BYPASS":
		return TypeBypass
	case "FAULTY":
		return TypeFaulty
	default:
		return TypeMultiStep
	}
}

type Difficulty string

const (
	Easy   Difficulty = "EASY"
	Medium Difficulty = "MEDIUM"
	Hard   Difficulty = "HARD"
)

func ParseDifficulty(s string) Difficulty {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EASY":
		return Easy
	case "HARD":
		return Hard
	default:
		return Medium
	}
}

type Puzzle struct {
	ID          int        `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Type        Type       `json:"type" yaml:"type"`
	Difficulty  Difficulty `json:"difficulty" yaml:"difficulty"`
}

var (
	ErrNotFound = errors.New("puzzle not found")
	ErrEmpty    = errors.New("no puzzles of requested type")
)

// Catalog is the read side the duel engine needs from puzzle storage.
type Catalog interface {
	ByType(ctx context.Context, t Type) ([]Puzzle, error)
	Get(ctx context.Context, id int) (Puzzle, error)
}

// Pick chooses n puzzle ids from list in random order. When the list is shorter than n
// it is repeated until n ids are collected.
func Pick(list []Puzzle, n int, rnd *rand.Rand) ([]int, error) {
	if len(list) == 0 {
		return nil, ErrEmpty
	}
	if n <= 0 {
		return []int{}, nil
	}
	ids := make([]int, len(list))
	for i, p := range list {
		ids[i] = p.ID
	}
	shuffle := rand.Shuffle
	if rnd != nil {
		shuffle = rnd.Shuffle
	}
	shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if len(ids) >= n {
		return ids[:n], nil
	}
	out := make([]int, 0, n)
	for len(out) < n {
		for _, id := range ids {
			if len(out) == n {
				break
			}
			out = append(out, id)
		}
	}
	return out, nil
}
