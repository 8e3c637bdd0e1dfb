package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/park285/puzzle-duel/internal/duel"
	"github.com/park285/puzzle-duel/internal/obslog"
	"go.uber.org/zap"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Readyz runs every check with a shared 2s budget and reports each outcome.
func Readyz(checks []Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		out := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Ping(ctx); err != nil {
				obslog.L().Warn("readiness_check_failed", zap.String("check", c.Name), zap.Error(err))
				out[c.Name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			out[c.Name] = "ok"
		}
		writeJSON(w, status, out)
	}
}

func ListLobby(v LobbyView) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			Players any `json:"players"`
		}{Players: v.Available(strings.TrimSpace(r.URL.Query().Get("exclude")))})
	}
}

type duelView struct {
	ID           string    `json:"id"`
	Players      [2]string `json:"players"`
	State        string    `json:"state"`
	CurrentRound int       `json:"currentRound"`
	TotalRounds  int       `json:"totalRounds"`
	Totals       [2]int    `json:"totals"`
	Deadline     time.Time `json:"deadline"`
}

func toDuelView(s duel.Snapshot) duelView {
	return duelView{
		ID:           s.ID,
		Players:      [2]string{s.Players[0].ID, s.Players[1].ID},
		State:        string(s.State),
		CurrentRound: s.CurrentRound,
		TotalRounds:  s.TotalRounds,
		Totals:       s.Totals(),
		Deadline:     s.Deadline,
	}
}

func ListDuels(v DuelView) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snaps := v.ActiveSessions()
		list := make([]duelView, 0, len(snaps))
		for _, s := range snaps {
			list = append(list, toDuelView(s))
		}
		writeJSON(w, http.StatusOK, struct {
			Duels []duelView `json:"duels"`
		}{Duels: list})
	}
}

func GetProfile(p ProfileReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "userID"))
		if id == "" {
			http.Error(w, "missing user", http.StatusBadRequest)
			return
		}
		prof, err := p.Profile(r.Context(), id)
		if err != nil {
			obslog.L().Warn("profile_lookup_failed", zap.String("user_id", id), zap.Error(err))
			http.Error(w, "profile unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, prof)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
