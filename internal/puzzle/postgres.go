package puzzle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresCatalog reads puzzles from the `puzzles` table shared with the web application.
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(databaseURL string) (*PostgresCatalog, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresCatalog{db: db}, nil
}

// NewPostgresCatalogDB wraps an existing pool.
func NewPostgresCatalogDB(db *sql.DB) *PostgresCatalog { return &PostgresCatalog{db: db} }

func (c *PostgresCatalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Stored enum spellings differ from ours (Multi_Step vs MULTI_STEP), so compare upper-cased.
func (c *PostgresCatalog) ByType(ctx context.Context, t Type) ([]Puzzle, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(description, ''), type, difficulty
		   FROM puzzles
		  WHERE UPPER(type) = $1
		  ORDER BY id`, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Puzzle
	for rows.Next() {
		p, err := scanPuzzle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *PostgresCatalog) Get(ctx context.Context, id int) (Puzzle, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(description, ''), type, difficulty FROM puzzles WHERE id = $1`, id)
	p, err := scanPuzzle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Puzzle{}, ErrNotFound
	}
	return p, err
}

type scanner interface{ Scan(dest ...any) error }

func scanPuzzle(s scanner) (Puzzle, error) {
	var (
		p          Puzzle
		typ, level string
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &typ, &level); err != nil {
		return Puzzle{}, err
	}
	p.Type = ParseType(typ)
	p.Difficulty = ParseDifficulty(level)
	return p, nil
}
