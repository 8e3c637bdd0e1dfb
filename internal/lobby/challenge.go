package lobby

import (
    "strings"

    "github.com/park285/puzzle-duel/internal/duelerr"
    "github.com/park285/puzzle-duel/internal/obslog"
    "go.uber.org/zap"
)

// Challenge records challenger → target, replacing any open challenge to the same target.
// Both players must be in the lobby and neither in a duel.
func (d *Directory) Challenge(challengerID, targetID string) (challenger, target Player, err error) {
    challengerID, targetID = strings.TrimSpace(challengerID), strings.TrimSpace(targetID)
    if challengerID == targetID {
        return Player{}, Player{}, duelerr.IllegalStatef("lobby.challenge", "cannot challenge yourself")
    }

    d.mu.Lock()
    defer d.mu.Unlock()
    c, ok := d.players[challengerID]
    if !ok {
        return Player{}, Player{}, duelerr.NotFoundf("lobby.challenge", "challenger %s", challengerID)
    }
    t, ok := d.players[targetID]
    if !ok {
        return Player{}, Player{}, duelerr.NotFoundf("lobby.challenge", "target %s", targetID)
    }
    if c.InDuel || t.InDuel {
        return Player{}, Player{}, duelerr.IllegalStatef("lobby.challenge", "%s or %s already in a duel", challengerID, targetID)
    }
    d.byTarget[targetID] = &Challenge{ChallengerID: challengerID, TargetID: targetID, CreatedAt: d.now()}

    obslog.L().Info("lobby_challenge", zap.String("challenger_id", challengerID), zap.String("target_id", targetID))
    return *c, *t, nil
}

// AcceptChallenge consumes the open challenge challengerID → accepterID.
// The caller claims both players with MarkInDuel before starting the duel.
func (d *Directory) AcceptChallenge(accepterID, challengerID string) (challenger, accepter Player, err error) {
    c, a, err := d.takeChallenge("lobby.accept_challenge", accepterID, challengerID)
    if err != nil {
        return Player{}, Player{}, err
    }
    if c.InDuel || a.InDuel {
        return Player{}, Player{}, duelerr.IllegalStatef("lobby.accept_challenge", "%s or %s already in a duel", challengerID, accepterID)
    }
    obslog.L().Info("lobby_challenge_accepted", zap.String("challenger_id", challengerID), zap.String("target_id", accepterID))
    return c, a, nil
}

// RejectChallenge consumes the open challenge challengerID → rejecterID.
func (d *Directory) RejectChallenge(rejecterID, challengerID string) (challenger, rejecter Player, err error) {
    c, r, err := d.takeChallenge("lobby.reject_challenge", rejecterID, challengerID)
    if err != nil {
        return Player{}, Player{}, err
    }
    obslog.L().Info("lobby_challenge_rejected", zap.String("challenger_id", challengerID), zap.String("target_id", rejecterID))
    return c, r, nil
}

// PendingChallenge returns the open challenge addressed to targetID.
func (d *Directory) PendingChallenge(targetID string) (Challenge, bool) {
    d.mu.RLock()
    defer d.mu.RUnlock()
    ch, ok := d.byTarget[targetID]
    if !ok {
        return Challenge{}, false
    }
    return *ch, true
}

func (d *Directory) takeChallenge(op, targetID, challengerID string) (Player, Player, error) {
    targetID, challengerID = strings.TrimSpace(targetID), strings.TrimSpace(challengerID)

    d.mu.Lock()
    defer d.mu.Unlock()
    ch, ok := d.byTarget[targetID]
    if !ok || ch.ChallengerID != challengerID {
        return Player{}, Player{}, duelerr.NotFoundf(op, "no challenge from %s to %s", challengerID, targetID)
    }
    delete(d.byTarget, targetID)

    c, ok := d.players[challengerID]
    if !ok {
        return Player{}, Player{}, duelerr.NotFoundf(op, "challenger %s", challengerID)
    }
    t, ok := d.players[targetID]
    if !ok {
        return Player{}, Player{}, duelerr.NotFoundf(op, "target %s", targetID)
    }
    return *c, *t, nil
}
