package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend shares window counters across replicas via INCR + EXPIRE.
type RedisBackend struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisBackend builds a backend over an existing client.
func NewRedisBackend(rdb *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{rdb: rdb, prefix: prefix}
}

// NewRedisBackendURL connects to redis from a URL.
func NewRedisBackendURL(redisURL, prefix string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisBackend(redis.NewClient(opts), prefix), nil
}

// Incr implements Backend. The key embeds the window start, so stale windows
// age out through the TTL without an explicit sweep.
func (r *RedisBackend) Incr(ctx context.Context, key string, windowStart time.Time) (int, error) {
	redisKey := fmt.Sprintf("%s:rl:%s:%d", r.prefix, key, windowStart.Unix())
	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, Window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}
