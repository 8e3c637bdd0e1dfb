package orchestrator

import (
	"context"
	"time"

	"github.com/park285/puzzle-duel/internal/event"
	"github.com/park285/puzzle-duel/internal/obslog"
	"go.uber.org/zap"
)

// armSearch (re)starts the search timeout for userID.
func (o *Orchestrator) armSearch(userID string) {
	st := &searchTimer{}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.stopSearchLocked(userID)
	st.t = time.AfterFunc(o.opts.SearchTimeout, func() { o.searchExpired(userID, st) })
	o.searches[userID] = st
}

func (o *Orchestrator) cancelSearch(userID string) {
	o.mu.Lock()
	o.stopSearchLocked(userID)
	o.mu.Unlock()
	o.deps.Lobby.StopSearching(userID)
}

func (o *Orchestrator) stopSearchLocked(userID string) {
	if st, ok := o.searches[userID]; ok {
		st.t.Stop()
		delete(o.searches, userID)
	}
}

func (o *Orchestrator) searchExpired(userID string, st *searchTimer) {
	o.mu.Lock()
	if o.searches[userID] != st {
		o.mu.Unlock()
		return
	}
	delete(o.searches, userID)
	_, playing := o.byUser[userID]
	o.mu.Unlock()

	if playing || !o.deps.Lobby.StopSearching(userID) {
		return
	}
	if p, ok := o.deps.Lobby.Get(userID); !ok || p.InDuel {
		return
	}
	obslog.L().Info("lobby_search_timeout", zap.String("user_id", userID))
	msg := o.text("lobby.no_opponent", nil, "No opponent found.")
	o.send(context.Background(), userID, event.NoOpponentFound{Message: msg})
}
