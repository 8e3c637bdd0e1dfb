package store

import (
    "context"
    "database/sql"
    "fmt"
    "strings"
    "time"

    "github.com/park285/puzzle-duel/internal/rating"
    _ "github.com/lib/pq"
)

// Schema is applied by EnsureSchema. Both statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS duel_ratings (
    user_id    TEXT PRIMARY KEY,
    rating     INTEGER NOT NULL,
    games      INTEGER NOT NULL DEFAULT 0,
    wins       INTEGER NOT NULL DEFAULT 0,
    losses     INTEGER NOT NULL DEFAULT 0,
    draws      INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS duel_results (
    session_id TEXT PRIMARY KEY,
    player_a   TEXT NOT NULL,
    player_b   TEXT NOT NULL,
    total_a    INTEGER NOT NULL,
    total_b    INTEGER NOT NULL,
    result_a   TEXT NOT NULL,
    result_b   TEXT NOT NULL,
    delta_a    INTEGER NOT NULL,
    delta_b    INTEGER NOT NULL,
    forfeit    BOOLEAN NOT NULL DEFAULT false,
    rounds     INTEGER NOT NULL,
    started_at TIMESTAMPTZ,
    ended_at   TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL DEFAULT 0
);`

// OpenPostgres opens and pings a pool shared by the rating store, result repository and puzzle catalog.
func OpenPostgres(databaseURL string) (*sql.DB, error) {
    if strings.TrimSpace(databaseURL) == "" {
        return nil, fmt.Errorf("DATABASE_URL is required")
    }
    db, err := sql.Open("postgres", databaseURL)
    if err != nil {
        return nil, err
    }
    db.SetMaxOpenConns(16)
    db.SetMaxIdleConns(8)
    db.SetConnMaxLifetime(30 * time.Minute)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := db.PingContext(ctx); err != nil {
        _ = db.Close()
        return nil, err
    }
    return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
    if _, err := db.ExecContext(ctx, Schema); err != nil {
        return fmt.Errorf("ensure schema: %w", err)
    }
    return nil
}

type PostgresRatingStore struct {
    db      *sql.DB
    initial int
}

func NewPostgresRatingStore(db *sql.DB, initial int) *PostgresRatingStore {
    if initial <= 0 { initial = rating.DefaultRating }
    return &PostgresRatingStore{db: db, initial: initial}
}

func (s *PostgresRatingStore) Get(ctx context.Context, userID string) (int, error) {
    userID = strings.TrimSpace(userID)
    if userID == "" { return 0, ErrEmptyUser }
    var r int
    err := s.db.QueryRowContext(ctx, `SELECT rating FROM duel_ratings WHERE user_id = $1`, userID).Scan(&r)
    if err == sql.ErrNoRows { return s.initial, nil }
    if err != nil { return 0, err }
    return r, nil
}

func (s *PostgresRatingStore) Profile(ctx context.Context, userID string) (Profile, error) {
    userID = strings.TrimSpace(userID)
    if userID == "" { return Profile{}, ErrEmptyUser }
    p := Profile{UserID: userID}
    err := s.db.QueryRowContext(ctx,
        `SELECT rating, games, wins, losses, draws, updated_at FROM duel_ratings WHERE user_id = $1`, userID,
    ).Scan(&p.Rating, &p.Games, &p.Wins, &p.Losses, &p.Draws, &p.UpdatedAt)
    if err == sql.ErrNoRows {
        return Profile{UserID: userID, Rating: s.initial}, nil
    }
    if err != nil { return Profile{}, err }
    return p, nil
}

// Adjust applies delta in one statement; a missing row starts from the initial rating.
func (s *PostgresRatingStore) Adjust(ctx context.Context, userID string, delta int, result rating.Result) (int, error) {
    userID = strings.TrimSpace(userID)
    if userID == "" { return 0, ErrEmptyUser }
    win, loss, draw := resultCounters(result)
    q := `INSERT INTO duel_ratings (user_id, rating, games, wins, losses, draws, updated_at)
          VALUES ($1, $2::integer + $3::integer, 1, $4, $5, $6, now())
          ON CONFLICT (user_id) DO UPDATE SET
            rating = duel_ratings.rating + $3::integer,
            games = duel_ratings.games + 1,
            wins = duel_ratings.wins + $4,
            losses = duel_ratings.losses + $5,
            draws = duel_ratings.draws + $6,
            updated_at = now()
          RETURNING rating`
    var r int
    if err := s.db.QueryRowContext(ctx, q, userID, s.initial, delta, win, loss, draw).Scan(&r); err != nil {
        return 0, err
    }
    return r, nil
}

func resultCounters(r rating.Result) (win, loss, draw int) {
    switch r {
    case rating.Win:
        return 1, 0, 0
    case rating.Loss:
        return 0, 1, 0
    case rating.Draw:
        return 0, 0, 1
    }
    return 0, 0, 0
}

// ResultRepository archives finished duels into duel_results.
type ResultRepository struct {
    db *sql.DB
}

func NewResultRepository(db *sql.DB) *ResultRepository { return &ResultRepository{db: db} }

// SaveResult upserts a finished duel.
func (r *ResultRepository) SaveResult(ctx context.Context, rec Record) error {
    if r == nil || r.db == nil {
        return nil
    }
    ended := rec.EndedAt
    if ended.IsZero() { ended = time.Now() }
    var started any
    duration := int64(0)
    if !rec.StartedAt.IsZero() {
        started = rec.StartedAt
        duration = ended.Sub(rec.StartedAt).Milliseconds()
        if duration < 0 { duration = 0 }
    }

    q := `INSERT INTO duel_results (
        session_id, player_a, player_b, total_a, total_b,
        result_a, result_b, delta_a, delta_b, forfeit, rounds,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
      ) ON CONFLICT (session_id) DO UPDATE SET
        total_a=EXCLUDED.total_a,
        total_b=EXCLUDED.total_b,
        result_a=EXCLUDED.result_a,
        result_b=EXCLUDED.result_b,
        delta_a=EXCLUDED.delta_a,
        delta_b=EXCLUDED.delta_b,
        forfeit=EXCLUDED.forfeit,
        rounds=EXCLUDED.rounds,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

    _, err := r.db.ExecContext(ctx, q,
        rec.SessionID, rec.PlayerA, rec.PlayerB, rec.TotalA, rec.TotalB,
        string(rec.ResultA), string(rec.ResultB), rec.DeltaA, rec.DeltaB, rec.Forfeit, rec.Rounds,
        started, ended, duration,
    )
    return err
}
