package store

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/url"
    "strconv"
    "strings"
    "time"

    "github.com/park285/puzzle-duel/internal/obslog"
    "github.com/park285/puzzle-duel/internal/rating"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
)

const (
    ttlProfile  = 90 * 24 * time.Hour
    adjustTries  = 5
)

// RedisRatingStore keeps one JSON profile per player under duel:player:<id>.
// Adjustments use WATCH so concurrent settlements for the same player never lose an update.
type RedisRatingStore struct {
    rdb     *redis.Client
    initial int
}

func NewRedisRatingStore(redisURL string, initial int) (*RedisRatingStore, error) {
    if strings.TrimSpace(redisURL) == "" {
        return nil, fmt.Errorf("REDIS_URL required for redis rating store")
    }
    opts, err := ParseRedisURL(redisURL)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opts)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := rdb.Ping(ctx).Err(); err != nil {
        _ = rdb.Close()
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    return NewRedisRatingStoreClient(rdb, initial), nil
}

// NewRedisRatingStoreClient wraps an existing client.
func NewRedisRatingStoreClient(rdb *redis.Client, initial int) *RedisRatingStore {
    if initial <= 0 { initial = rating.DefaultRating }
    return &RedisRatingStore{rdb: rdb, initial: initial}
}

func (s *RedisRatingStore) Close() error {
    if s == nil || s.rdb == nil { return nil }
    return s.rdb.Close()
}

func (s *RedisRatingStore) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func profileKey(userID string) string { return "duel:player:" + strings.TrimSpace(userID) }

func (s *RedisRatingStore) Get(ctx context.Context, userID string) (int, error) {
    p, err := s.Profile(ctx, userID)
    if err != nil { return 0, err }
    return p.Rating, nil
}

func (s *RedisRatingStore) Profile(ctx context.Context, userID string) (Profile, error) {
    if strings.TrimSpace(userID) == "" { return Profile{}, ErrEmptyUser }
    raw, err := s.rdb.Get(ctx, profileKey(userID)).Bytes()
    if err == redis.Nil {
        return Profile{UserID: strings.TrimSpace(userID), Rating: s.initial}, nil
    }
    if err != nil { return Profile{}, err }
    var p Profile
    if err := json.Unmarshal(raw, &p); err != nil { return Profile{}, fmt.Errorf("decode profile %s: %w", userID, err) }
    return p, nil
}

func (s *RedisRatingStore) Adjust(ctx context.Context, userID string, delta int, result rating.Result) (int, error) {
    userID = strings.TrimSpace(userID)
    if userID == "" { return 0, ErrEmptyUser }
    key := profileKey(userID)

    var updated int
    txf := func(tx *redis.Tx) error {
        p := Profile{UserID: userID, Rating: s.initial}
        raw, err := tx.Get(ctx, key).Bytes()
        if err != nil && err != redis.Nil { return err }
        if err == nil {
            if jerr := json.Unmarshal(raw, &p); jerr != nil { return jerr }
        }
        p.apply(delta, result, time.Now())
        newRaw, err := json.Marshal(&p)
        if err != nil { return err }
        pipe := tx.TxPipeline()
        pipe.Set(ctx, key, newRaw, ttlProfile)
        if _, err := pipe.Exec(ctx); err != nil { return err }
        updated = p.Rating
        return nil
    }

    for i := 0; i < adjustTries; i++ {
        err := s.rdb.Watch(ctx, txf, key)
        if err == nil {
            return updated, nil
        }
        if !errors.Is(err, redis.TxFailedErr) {
            return 0, err
        }
        obslog.L().Debug("rating_adjust_retry", zap.String("user_id", userID), zap.Int("attempt", i+1))
    }
    return 0, fmt.Errorf("adjust rating %s: %w", userID, redis.TxFailedErr)
}

// ParseRedisURL converts redis://[:pass@]host:port/db into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
    u, err := url.Parse(strings.TrimSpace(raw))
    if err != nil { return nil, err }
    if u.Scheme != "redis" && u.Scheme != "rediss" { return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme) }
    db := 0
    if p := strings.TrimPrefix(u.Path, "/"); p != "" { if n, err := strconv.Atoi(p); err == nil { db = n } }
    pass, _ := u.User.Password()
    return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
