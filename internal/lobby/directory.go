package lobby

import (
    "context"
    "strings"
    "sync"
    "time"

    "github.com/park285/puzzle-duel/internal/duelerr"
    "github.com/park285/puzzle-duel/internal/event"
    "github.com/park285/puzzle-duel/internal/obslog"
    "github.com/park285/puzzle-duel/internal/transport"
    "go.uber.org/zap"
)

type Directory struct {
    mu sync.RWMutex
    players map[string]*Player
    // insertion order of players; FindOpponent scans in this order
    order     []string
    searching map[string]time.Time
    // targetID -> open challenge (a new challenge overwrites)
    byTarget map[string]*Challenge

    transport    transport.Transport
    forfeiter    Forfeiter
    defaultRange int
    now          func() time.Time
}

type Option func(*Directory)

func WithDefaultRange(n int) Option {
    return func(d *Directory) {
        if n > 0 {
            d.defaultRange = n
        }
    }
}

func WithClock(now func() time.Time) Option {
    return func(d *Directory) {
        if now != nil {
            d.now = now
        }
    }
}

func NewDirectory(t transport.Transport, opts ...Option) *Directory {
    d := &Directory{
        players:      make(map[string]*Player),
        searching:    make(map[string]time.Time),
        byTarget:     make(map[string]*Challenge),
        transport:    t,
        defaultRange: DefaultEloRange,
        now:          time.Now,
    }
    for _, opt := range opts {
        opt(d)
    }
    return d
}

// SetForfeiter wires the duel side. Called once during startup.
func (d *Directory) SetForfeiter(f Forfeiter) {
    d.mu.Lock()
    d.forfeiter = f
    d.mu.Unlock()
}

// Join inserts the player or refreshes the connection of an existing entry, then broadcasts.
func (d *Directory) Join(ctx context.Context, p Player) error {
    p.UserID = strings.TrimSpace(p.UserID)
    if p.UserID == "" {
        return duelerr.IllegalStatef("lobby.join", "empty user id")
    }

    d.mu.Lock()
    if cur, ok := d.players[p.UserID]; ok {
        cur.ConnRef = p.ConnRef
        if p.DisplayName != "" {
            cur.DisplayName = p.DisplayName
        }
        if p.AvatarRef != "" {
            cur.AvatarRef = p.AvatarRef
        }
    } else {
        if p.DisplayName == "" {
            p.DisplayName = p.UserID
        }
        p.InDuel = false
        p.JoinedAt = d.now()
        entry := p
        d.players[p.UserID] = &entry
        d.order = append(d.order, p.UserID)
    }
    d.mu.Unlock()

    obslog.L().Info("lobby_join", zap.String("user_id", p.UserID), zap.Int("rating", p.Rating))
    d.Broadcast(ctx)
    return nil
}

// Leave drops the player with all search and challenge state. A player still in a duel forfeits it.
func (d *Directory) Leave(ctx context.Context, userID string) error {
    userID = strings.TrimSpace(userID)

    d.mu.Lock()
    p, ok := d.players[userID]
    if !ok {
        d.mu.Unlock()
        return duelerr.NotFoundf("lobby.leave", "user %s", userID)
    }
    inDuel := p.InDuel
    delete(d.players, userID)
    d.order = removeID(d.order, userID)
    delete(d.searching, userID)
    d.dropChallengesLocked(userID)
    f := d.forfeiter
    d.mu.Unlock()

    obslog.L().Info("lobby_leave", zap.String("user_id", userID), zap.Bool("in_duel", inDuel))
    d.Broadcast(ctx)

    if inDuel && f != nil {
        if err := f.ForfeitUser(ctx, userID); err != nil {
            obslog.L().Warn("lobby_leave_forfeit_error", zap.String("user_id", userID), zap.Error(err))
        }
    }
    return nil
}

// FindOpponent marks the caller as searching and returns the first available player within range,
// or nil. Outside strict mode the range grows by its initial value while it stays within MaxEloRange.
func (d *Directory) FindOpponent(ctx context.Context, userID string, eloRange int, strict bool) (*Player, error) {
    userID = strings.TrimSpace(userID)
    step := eloRange
    if step <= 0 {
        step = d.defaultRange
    }

    d.mu.Lock()
    defer d.mu.Unlock()
    self, ok := d.players[userID]
    if !ok {
        return nil, duelerr.NotFoundf("lobby.find_opponent", "user %s", userID)
    }
    if self.InDuel {
        return nil, duelerr.IllegalStatef("lobby.find_opponent", "user %s already in a duel", userID)
    }
    d.searching[userID] = d.now()

    r := step
    for {
        if m := d.scanLocked(self, r); m != nil {
            obslog.L().Info("lobby_match",
                zap.String("user_id", userID),
                zap.String("opponent_id", m.UserID),
                zap.Int("range", r),
                zap.Int("rating", self.Rating),
                zap.Int("opponent_rating", m.Rating),
            )
            cp := *m
            return &cp, nil
        }
        if strict || r >= MaxEloRange {
            break
        }
        r += step
        if r > MaxEloRange {
            break
        }
    }
    return nil, nil
}

func (d *Directory) scanLocked(self *Player, r int) *Player {
    for _, id := range d.order {
        if id == self.UserID {
            continue
        }
        p := d.players[id]
        if p == nil || p.InDuel {
            continue
        }
        if abs(p.Rating-self.Rating) <= r {
            return p
        }
    }
    return nil
}

// StopSearching reports whether the user was searching.
func (d *Directory) StopSearching(userID string) bool {
    d.mu.Lock()
    defer d.mu.Unlock()
    _, ok := d.searching[userID]
    delete(d.searching, userID)
    return ok
}

func (d *Directory) IsSearching(userID string) bool {
    d.mu.RLock()
    defer d.mu.RUnlock()
    _, ok := d.searching[userID]
    return ok
}

// MarkInDuel atomically claims both players for a duel.
func (d *Directory) MarkInDuel(a, b string) error {
    d.mu.Lock()
    defer d.mu.Unlock()
    pa, pb := d.players[a], d.players[b]
    if pa == nil || pb == nil {
        return duelerr.NotFoundf("lobby.mark_in_duel", "players %s/%s", a, b)
    }
    if a == b || pa.InDuel || pb.InDuel {
        return duelerr.IllegalStatef("lobby.mark_in_duel", "players %s/%s not available", a, b)
    }
    pa.InDuel, pb.InDuel = true, true
    delete(d.searching, a)
    delete(d.searching, b)
    d.dropChallengesLocked(a)
    d.dropChallengesLocked(b)
    return nil
}

// Release makes players available again after their duel ended. Unknown ids are skipped.
func (d *Directory) Release(ids ...string) {
    d.mu.Lock()
    for _, id := range ids {
        if p := d.players[id]; p != nil {
            p.InDuel = false
        }
    }
    d.mu.Unlock()
}

func (d *Directory) Get(userID string) (Player, bool) {
    d.mu.RLock()
    defer d.mu.RUnlock()
    p, ok := d.players[userID]
    if !ok {
        return Player{}, false
    }
    return *p, true
}

// Available lists players not in a duel, in join order, without excludeID.
func (d *Directory) Available(excludeID string) []event.PlayerInfo {
    d.mu.RLock()
    defer d.mu.RUnlock()
    out := make([]event.PlayerInfo, 0, len(d.order))
    for _, id := range d.order {
        p := d.players[id]
        if p == nil || p.InDuel || id == excludeID {
            continue
        }
        out = append(out, p.Info())
    }
    return out
}

// Broadcast sends each available player the list of the others. The snapshot is taken once;
// a concurrent join is picked up by the broadcast that join triggers.
func (d *Directory) Broadcast(ctx context.Context) {
    if d.transport == nil {
        return
    }
    snapshot := d.Available("")
    for _, member := range snapshot {
        others := make([]event.PlayerInfo, 0, len(snapshot))
        for _, p := range snapshot {
            if p.UserID != member.UserID {
                others = append(others, p)
            }
        }
        if err := d.transport.Send(ctx, member.UserID, event.LobbyUpdate{Players: others}); err != nil {
            obslog.L().Debug("lobby_broadcast_skip", zap.String("user_id", member.UserID), zap.Error(err))
        }
    }
}

func (d *Directory) dropChallengesLocked(userID string) {
    delete(d.byTarget, userID)
    for target, ch := range d.byTarget {
        if ch.ChallengerID == userID {
            delete(d.byTarget, target)
        }
    }
}

func removeID(list []string, id string) []string {
    for i, v := range list {
        if v == id {
            return append(list[:i], list[i+1:]...)
        }
    }
    return list
}

func abs(v int) int {
    if v < 0 {
        return -v
    }
    return v
}
