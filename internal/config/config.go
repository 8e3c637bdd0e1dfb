package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/park285/puzzle-duel/internal/puzzle"
)

// Rating backends.
const (
	BackendAuto     = "auto"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type AppConfig struct {
	ListenAddr string

	RedisURL      string
	DatabaseURL   string
	RatingBackend string

	EvaluatorURL       string
	EvaluatorTimeoutMS int
	EvaluatorRetry     int

	TotalRounds      int
	RoundSeconds     int
	SearchTimeoutSec int
	DefaultEloRange  int
	DefaultRating    int
	PuzzleType       puzzle.Type

	PuzzleFile  string
	MessagesDir string

	WSOriginPatterns []string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8080",
		RatingBackend:      BackendAuto,
		EvaluatorTimeoutMS: 8000,
		EvaluatorRetry:     2,
		TotalRounds:        3,
		RoundSeconds:       300,
		SearchTimeoutSec:   14,
		DefaultEloRange:    200,
		DefaultRating:      1000,
		PuzzleType:         puzzle.TypeMultiStep,
	}

	if v := strings.TrimSpace(os.Getenv("DUEL_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("RATING_BACKEND"))); v != "" {
		cfg.RatingBackend = v
	}

	cfg.EvaluatorURL = strings.TrimRight(strings.TrimSpace(os.Getenv("EVALUATOR_URL")), "/")
	positiveInt("EVALUATOR_TIMEOUT_MS", &cfg.EvaluatorTimeoutMS)
	if v := strings.TrimSpace(os.Getenv("EVALUATOR_RETRY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.EvaluatorRetry = n
		}
	}

	positiveInt("DUEL_TOTAL_ROUNDS", &cfg.TotalRounds)
	positiveInt("DUEL_ROUND_SECONDS", &cfg.RoundSeconds)
	positiveInt("DUEL_SEARCH_TIMEOUT_SEC", &cfg.SearchTimeoutSec)
	positiveInt("DUEL_DEFAULT_ELO_RANGE", &cfg.DefaultEloRange)
	positiveInt("DUEL_DEFAULT_RATING", &cfg.DefaultRating)
	if v := strings.TrimSpace(os.Getenv("DUEL_PUZZLE_TYPE")); v != "" {
		cfg.PuzzleType = puzzle.ParseType(v)
	}

	cfg.PuzzleFile = strings.TrimSpace(os.Getenv("PUZZLE_FILE"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if v := strings.TrimSpace(os.Getenv("WS_ORIGIN_PATTERNS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.WSOriginPatterns = append(cfg.WSOriginPatterns, s)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the chosen rating backend has what it needs.
func (c *AppConfig) Validate() error {
	switch c.RatingBackend {
	case BackendAuto, BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for RATING_BACKEND=redis")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for RATING_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown RATING_BACKEND %q", c.RatingBackend)
	}
	if c.ListenAddr == "" {
		return errors.New("DUEL_LISTEN_ADDR is empty")
	}
	return nil
}

// ResolvedBackend turns auto into a concrete backend: redis, then postgres, then memory.
func (c *AppConfig) ResolvedBackend() string {
	if c.RatingBackend != BackendAuto {
		return c.RatingBackend
	}
	switch {
	case c.RedisURL != "":
		return BackendRedis
	case c.DatabaseURL != "":
		return BackendPostgres
	default:
		return BackendMemory
	}
}

func (c *AppConfig) RoundTimeout() time.Duration {
	return time.Duration(c.RoundSeconds) * time.Second
}

func (c *AppConfig) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSec) * time.Second
}

func (c *AppConfig) EvaluatorTimeout() time.Duration {
	return time.Duration(c.EvaluatorTimeoutMS) * time.Millisecond
}

func positiveInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
