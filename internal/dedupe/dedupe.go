// Package dedupe tracks webhook deliveries that are already being processed
// so that redelivery storms do not reach the ledger. The ledger's unique
// constraints stay authoritative; a lost claim only costs extra writes.
package dedupe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces delivery claims in Redis.
const KeyPrefix = "tiergate:delivery:"

// Store claims delivery keys.
type Store interface {
	// Claim reports whether the caller now owns key. false means another
	// delivery with the same key already holds it.
	Claim(ctx context.Context, key string) (bool, error)
	// Release drops a claim so that a later redelivery can retry.
	Release(ctx context.Context, key string) error
}

// redisClient is the subset of goredis.Cmdable used by RedisStore.
type redisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Ping(ctx context.Context) *goredis.StatusCmd
}

var _ Store = (*RedisStore)(nil)

// RedisStore claims keys with SET NX and a TTL.
type RedisStore struct {
	rdb    redisClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb redisClient, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{rdb: rdb, ttl: ttl, logger: logger}
}

// Dial parses redisURL, pings the server and returns a store with its own
// client, along with a close function for shutdown. An unreachable server is
// an error so that a wrong REDIS_URL fails startup.
func Dial(ctx context.Context, redisURL string, ttl time.Duration, logger *slog.Logger) (*RedisStore, func() error, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dedupe: parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("dedupe: ping %s: %w", opts.Addr, err)
	}
	return NewRedisStore(client, ttl, logger), client.Close, nil
}

// Claim sets the delivery key if it is absent. Redis errors are returned to
// the caller, which proceeds as if the claim succeeded.
func (s *RedisStore) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, KeyPrefix+key, time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe: claim %s: %w", key, err)
	}
	return ok, nil
}

// Release deletes the delivery key.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, KeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("dedupe: release %s: %w", key, err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Nop claims every key.
type Nop struct{}

// Claim always succeeds.
func (Nop) Claim(context.Context, string) (bool, error) { return true, nil }

// Release is a no-op.
func (Nop) Release(context.Context, string) error { return nil }
