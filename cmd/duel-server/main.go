package main

import (
    "context"
    "database/sql"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    appcfg "github.com/park285/puzzle-duel/internal/config"
    "github.com/park285/puzzle-duel/internal/evalclient"
    "github.com/park285/puzzle-duel/internal/httpapi"
    "github.com/park285/puzzle-duel/internal/lobby"
    "github.com/park285/puzzle-duel/internal/msgcat"
    "github.com/park285/puzzle-duel/internal/obslog"
    "github.com/park285/puzzle-duel/internal/orchestrator"
    "github.com/park285/puzzle-duel/internal/puzzle"
    "github.com/park285/puzzle-duel/internal/scoring"
    "github.com/park285/puzzle-duel/internal/store"
    "github.com/park285/puzzle-duel/internal/wsgate"
    "go.uber.org/zap"
)

type ratingBackend interface {
    store.RatingStore
    httpapi.ProfileReader
}

func main() {
    _ = godotenv.Load()
    if err := obslog.InitFromEnv(); err != nil {
        log.Fatalf("logger init error: %v", err)
    }
    defer obslog.Sync()

    cfg, err := appcfg.Load()
    if err != nil {
        log.Fatalf("config error: %v", err)
    }
    logger := obslog.L()

    var checks []httpapi.Check

    // Shared Postgres pool: ratings, results and the puzzle catalog
    var db *sql.DB
    if cfg.DatabaseURL != "" {
        db, err = store.OpenPostgres(cfg.DatabaseURL)
        if err != nil {
            log.Fatalf("postgres init error: %v", err)
        }
        defer db.Close()
        sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        err = store.EnsureSchema(sctx, db)
        cancel()
        if err != nil {
            log.Fatalf("schema error: %v", err)
        }
        checks = append(checks, httpapi.Check{Name: "postgres", Ping: db.PingContext})
    }

    var ratings ratingBackend
    switch backend := cfg.ResolvedBackend(); backend {
    case appcfg.BackendRedis:
        rs, err := store.NewRedisRatingStore(cfg.RedisURL, cfg.DefaultRating)
        if err != nil {
            log.Fatalf("redis init error: %v", err)
        }
        defer rs.Close()
        checks = append(checks, httpapi.Check{Name: "redis", Ping: rs.Ping})
        ratings = rs
    case appcfg.BackendPostgres:
        ratings = store.NewPostgresRatingStore(db, cfg.DefaultRating)
    default:
        ratings = store.NewMemoryRatingStore(cfg.DefaultRating)
    }
    logger.Info("rating_backend", zap.String("backend", cfg.ResolvedBackend()))

    var results store.ResultRecorder
    var catalog puzzle.Catalog
    if db != nil {
        results = store.NewResultRepository(db)
        catalog = puzzle.NewPostgresCatalogDB(db)
    } else {
        mc, err := puzzle.NewMemoryCatalog(cfg.PuzzleFile)
        if err != nil {
            log.Fatalf("puzzle catalog error: %v", err)
        }
        catalog = mc
    }

    // Without an evaluator every submission scores the fixed defaults
    var assessor scoring.Assessor
    if cfg.EvaluatorURL != "" {
        ec := evalclient.NewClient(cfg.EvaluatorURL,
            evalclient.WithTimeout(cfg.EvaluatorTimeout()),
            evalclient.WithRetry(cfg.EvaluatorRetry),
        )
        assessor = ec
        checks = append(checks, httpapi.Check{Name: "evaluator", Ping: func(ctx context.Context) error {
            _, err := ec.Health(ctx)
            return err
        }})
    } else {
        logger.Warn("evaluator_disabled")
    }
    evaluator := scoring.NewEvaluator(assessor, scoring.WithTimeout(cfg.EvaluatorTimeout()))

    msgs, err := msgcat.New(cfg.MessagesDir)
    if err != nil {
        log.Fatalf("messages error: %v", err)
    }
    if missing := msgs.Missing(orchestrator.MessageKeys...); len(missing) > 0 {
        log.Fatalf("messages error: missing keys %s", strings.Join(missing, ", "))
    }

    hub := wsgate.NewHub(
        wsgate.WithOriginPatterns(cfg.WSOriginPatterns),
        wsgate.WithMessages(msgs),
    )
    dir := lobby.NewDirectory(hub, lobby.WithDefaultRange(cfg.DefaultEloRange))
    orch := orchestrator.New(orchestrator.Deps{
        Lobby:     dir,
        Transport: hub,
        Ratings:   ratings,
        Catalog:   catalog,
        Evaluator: evaluator,
        Results:   results,
        Messages:  msgs,
    }, orchestrator.Options{
        TotalRounds:     cfg.TotalRounds,
        RoundTimeout:    cfg.RoundTimeout(),
        SearchTimeout:   cfg.SearchTimeout(),
        DefaultEloRange: cfg.DefaultEloRange,
        DefaultRating:   cfg.DefaultRating,
        PuzzleType:      cfg.PuzzleType,
    })
    hub.SetDispatcher(orch)

    srv := &http.Server{
        Addr: cfg.ListenAddr,
        Handler: httpapi.SetupRoutes(httpapi.Deps{
            WS:       hub.Handler(),
            Lobby:    dir,
            Duels:    orch,
            Profiles: ratings,
            Checks:   checks,
        }),
        ReadHeaderTimeout: 10 * time.Second,
    }

    go func() {
        logger.Info("server_listening", zap.String("addr", cfg.ListenAddr), zap.String("puzzle_type", string(cfg.PuzzleType)))
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            logger.Fatal("server_error", zap.Error(err))
        }
    }()

    // Wait for termination signal
    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
    <-sigCh
    logger.Info("server_shutdown")

    orch.Shutdown()
    hub.CloseAll()
    sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := srv.Shutdown(sctx); err != nil {
        logger.Warn("server_shutdown_error", zap.Error(err))
    }
}
