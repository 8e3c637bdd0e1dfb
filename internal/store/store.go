// Package store persists player ratings and finished duel results.
package store

import (
    "context"
    "errors"
    "strings"
    "sync"
    "time"

    "github.com/park285/puzzle-duel/internal/rating"
)

var ErrEmptyUser = errors.New("empty user id")

// RatingStore reads and adjusts player ratings. Unknown players read as the default rating.
type RatingStore interface {
    Get(ctx context.Context, userID string) (int, error)
    Adjust(ctx context.Context, userID string, delta int, result rating.Result) (int, error)
}

// ResultRecorder archives a finished duel.
type ResultRecorder interface {
    SaveResult(ctx context.Context, r Record) error
}

// Profile is the persisted rating view of one player.
type Profile struct {
    UserID    string    `json:"user_id"`
    Rating    int       `json:"rating"`
    Games     int       `json:"games"`
    Wins      int       `json:"wins"`
    Losses    int       `json:"losses"`
    Draws     int       `json:"draws"`
    UpdatedAt time.Time `json:"updated_at"`
}

func (p *Profile) apply(delta int, result rating.Result, now time.Time) {
    p.Rating += delta
    p.Games++
    switch result {
    case rating.Win:
        p.Wins++
    case rating.Loss:
        p.Losses++
    case rating.Draw:
        p.Draws++
    }
    p.UpdatedAt = now
}

// Record is one finished duel, from player A's and B's point of view.
type Record struct {
    SessionID string
    PlayerA   string
    PlayerB   string
    TotalA    int
    TotalB    int
    ResultA   rating.Result
    ResultB   rating.Result
    DeltaA    int
    DeltaB    int
    Forfeit   bool
    Rounds    int
    StartedAt time.Time
    EndedAt   time.Time
}

// MemoryRatingStore keeps profiles in process. Used when no backend is configured and in tests.
type MemoryRatingStore struct {
    mu       sync.RWMutex
    profiles map[string]*Profile
    initial  int
}

func NewMemoryRatingStore(initial int) *MemoryRatingStore {
    if initial <= 0 {
        initial = rating.DefaultRating
    }
    return &MemoryRatingStore{profiles: make(map[string]*Profile), initial: initial}
}

func (s *MemoryRatingStore) Get(_ context.Context, userID string) (int, error) {
    p, err := s.Profile(context.Background(), userID)
    if err != nil { return 0, err }
    return p.Rating, nil
}

func (s *MemoryRatingStore) Profile(_ context.Context, userID string) (Profile, error) {
    userID = strings.TrimSpace(userID)
    if userID == "" { return Profile{}, ErrEmptyUser }
    s.mu.RLock()
    defer s.mu.RUnlock()
    if p, ok := s.profiles[userID]; ok {
        return *p, nil
    }
    return Profile{UserID: userID, Rating: s.initial}, nil
}

func (s *MemoryRatingStore) Adjust(_ context.Context, userID string, delta int, result rating.Result) (int, error) {
    userID = strings.TrimSpace(userID)
    if userID == "" { return 0, ErrEmptyUser }
    s.mu.Lock()
    defer s.mu.Unlock()
    p, ok := s.profiles[userID]
    if !ok {
        p = &Profile{UserID: userID, Rating: s.initial}
        s.profiles[userID] = p
    }
    p.apply(delta, result, time.Now())
    return p.Rating, nil
}
