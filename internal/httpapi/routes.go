// Package httpapi mounts the websocket endpoint and a few read-only JSON views.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/park285/puzzle-duel/internal/duel"
	"github.com/park285/puzzle-duel/internal/event"
	"github.com/park285/puzzle-duel/internal/store"
)

type LobbyView interface {
	Available(excludeID string) []event.PlayerInfo
}

type DuelView interface {
	ActiveSessions() []duel.Snapshot
}

type ProfileReader interface {
	Profile(ctx context.Context, userID string) (store.Profile, error)
}

// Check is a named readiness check.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Deps struct {
	WS       http.Handler
	Lobby    LobbyView
	Duels    DuelView
	Profiles ProfileReader
	Checks   []Check
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/readyz", Readyz(d.Checks))
	if d.WS != nil {
		r.Get("/ws", d.WS.ServeHTTP)
	}
	if d.Lobby != nil {
		r.Get("/lobby", ListLobby(d.Lobby))
	}
	if d.Duels != nil {
		r.Get("/duels", ListDuels(d.Duels))
	}
	if d.Profiles != nil {
		r.Get("/players/{userID}", GetProfile(d.Profiles))
	}
	return r
}
