// Package cache is a keyed TTL cache façade over redis. When redis is
// disabled every operation is a no-op and reads behave as misses, so callers
// never branch on availability.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Key kinds. They name the cached shape, not the caller.
const (
	KindAuth      = "auth"
	KindAuthKey   = "authkey"
	KindHeartRate = "heart_rate"
	KindSummary   = "summary"
)

// Default TTLs per kind.
const (
	TTLDefault = 5 * time.Minute
	TTLSummary = 30 * time.Minute
	TTLAuth    = 10 * time.Minute
)

// Stats is a point-in-time counter snapshot for the status endpoint.
type Stats struct {
	Enabled bool   `json:"enabled"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Errors  uint64 `json:"errors"`
}

// Cache wraps a redis client with key construction and hit/miss accounting.
// A nil client is the disabled mode.
type Cache struct {
	rdb    *redis.Client
	prefix string
	log    zerolog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
	errs   atomic.Uint64
}

// New connects to redis. Call NewDisabled for the no-op mode.
func New(redisURL, prefix string, log zerolog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Cache{rdb: redis.NewClient(opts), prefix: prefix, log: log}, nil
}

// NewDisabled returns a cache whose every read misses and every write is
// dropped.
func NewDisabled() *Cache { return &Cache{} }

// Enabled reports whether a redis backend is attached.
func (c *Cache) Enabled() bool { return c != nil && c.rdb != nil }

// Key builds `{prefix}:{kind}:{user}:{fingerprint16}`. The fingerprint is
// the first 16 hex chars of sha256 over the qualifier.
func (c *Cache) Key(kind, user, qualifier string) string {
	sum := sha256.Sum256([]byte(qualifier))
	fp := hex.EncodeToString(sum[:8])
	return strings.Join([]string{c.prefix, kind, user, fp}, ":")
}

// Get returns the raw value, or ("", false) on miss or any backend error.
// Cache trouble never fails a request; it degrades to a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if !c.Enabled() {
		return "", false
	}
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		c.misses.Add(1)
		return "", false
	}
	if err != nil {
		c.errs.Add(1)
		c.log.Warn().Err(err).Str("key", key).Msg("cache get failed, treating as miss")
		return "", false
	}
	c.hits.Add(1)
	return val, true
}

// Set stores a value with TTL; failures are logged and swallowed.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.errs.Add(1)
		c.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// Delete removes keys; failures are logged and swallowed.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if !c.Enabled() || len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.errs.Add(1)
		c.log.Warn().Err(err).Strs("keys", keys).Msg("cache delete failed")
	}
}

// InvalidateUser drops every cached entry for the user across all kinds.
func (c *Cache) InvalidateUser(ctx context.Context, user string) {
	if !c.Enabled() {
		return
	}
	pattern := strings.Join([]string{c.prefix, "*", user, "*"}, ":")
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.errs.Add(1)
		c.log.Warn().Err(err).Str("user", user).Msg("cache invalidation scan failed")
		return
	}
	c.Delete(ctx, keys...)
}

// Ping checks backend reachability; always nil when disabled.
func (c *Cache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// HealthPing implements the health prober interface.
func (c *Cache) HealthPing(ctx context.Context) error { return c.Ping(ctx) }

// Stats snapshots the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Enabled: c.Enabled(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.errs.Load(),
	}
}
