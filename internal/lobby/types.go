package lobby

import (
    "context"
    "time"

    "github.com/park285/puzzle-duel/internal/event"
)

const (
    DefaultEloRange = 200
    MaxEloRange     = 1000
)

// Player is a lobby entry. Rating is a snapshot taken at join time.
type Player struct {
    UserID      string
    DisplayName string
    AvatarRef   string
    Rating      int
    ConnRef     string
    InDuel      bool
    JoinedAt    time.Time
}

func (p Player) Info() event.PlayerInfo {
    return event.PlayerInfo{UserID: p.UserID, DisplayName: p.DisplayName, AvatarRef: p.AvatarRef, Rating: p.Rating}
}

// Challenge is an open invitation challenger → target.
type Challenge struct {
    ChallengerID string
    TargetID     string
    CreatedAt    time.Time
}

// Forfeiter is told when a player who is in a duel leaves the lobby.
type Forfeiter interface {
    ForfeitUser(ctx context.Context, userID string) error
}
