package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/park285/puzzle-duel/internal/duelclient"
	"github.com/park285/puzzle-duel/internal/evalclient"
	"github.com/park285/puzzle-duel/internal/event"
	"github.com/park285/puzzle-duel/internal/puzzle"
)

func main() {
	_ = godotenv.Load()
	evalURL := os.Getenv("EVALUATOR_URL")
	wsURL := os.Getenv("DUEL_WS_URL")
	userID := os.Getenv("DUEL_USER_ID")
	if userID == "" {
		userID = fmt.Sprintf("duelcheck-%d", time.Now().Unix())
	}

	if evalURL != "" {
		client := evalclient.NewClient(evalURL, evalclient.WithTimeout(8*time.Second))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		h, err := client.Health(ctx)
		if err != nil {
			log.Printf("/healthz error: %v", err)
		} else {
			log.Printf("/healthz ok: status=%s", h.Status)
		}
		a, err := client.Assess(ctx, "def solve(x):\n    return x\n", puzzle.Puzzle{ID: 0, Name: "smoke", Type: puzzle.TypeMultiStep, Difficulty: puzzle.Easy})
		cancel()
		if err != nil {
			log.Printf("/evaluate error: %v", err)
		} else {
			log.Printf("/evaluate ok: correctness=%d quality=%d", a.Correctness, a.Quality)
		}
	} else {
		log.Println("EVALUATOR_URL not set; skipping evaluator check")
	}

	if wsURL == "" {
		log.Println("DUEL_WS_URL not set; skipping WS check")
		return
	}

	ws := duelclient.New(wsURL, userID,
		duelclient.WithReconnect(0),
		duelclient.WithRejoin(event.JoinLobby{DisplayName: "duelcheck"}),
	)
	ws.OnStateChange(func(s duelclient.State) {
		log.Printf("WS state: %s", s)
	})
	ws.OnEvent(func(ev event.Outbound) {
		fmt.Printf("WS event %s %+v\n", ev.Kind(), ev)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}

	// Observe for a short window, then leave cleanly
	t := time.NewTimer(5 * time.Second)
	<-t.C
	_ = ws.Send(context.Background(), event.LeaveLobby{})

	closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ws.Close(closeCtx)
}
