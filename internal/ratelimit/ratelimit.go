// Package ratelimit implements fixed-window request limiting keyed by
// credential and by client IP.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Window is the fixed accounting window.
const Window = time.Hour

// Decision is the outcome of one Allow call, carrying everything the HTTP
// layer needs for the X-RateLimit-* headers.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// RetryAfter returns the seconds until the window resets, at least 1.
func (d Decision) RetryAfter(now time.Time) int {
	secs := int(d.Reset.Sub(now).Seconds()) + 1
	if secs < 1 {
		secs = 1
	}
	return secs
}

// ExceededError is returned when a request is over its window budget.
type ExceededError struct {
	Scope      string
	RetryAfter int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %ds", e.Scope, e.RetryAfter)
}

// Backend counts requests per key within the current window.
type Backend interface {
	// Incr increments the key's counter for the window containing now and
	// returns the new count.
	Incr(ctx context.Context, key string, windowStart time.Time) (int, error)
}

// Limiter applies per-credential and per-IP budgets over a Backend.
type Limiter struct {
	backend         Backend
	credentialLimit int
	ipLimit         int
	now             func() time.Time
}

// New builds a Limiter with the given default budgets.
func New(backend Backend, credentialLimit, ipLimit int) *Limiter {
	return &Limiter{
		backend:         backend,
		credentialLimit: credentialLimit,
		ipLimit:         ipLimit,
		now:             time.Now,
	}
}

func (l *Limiter) allow(ctx context.Context, key string, limit int) (Decision, error) {
	now := l.now()
	windowStart := now.Truncate(Window)
	count, err := l.backend.Incr(ctx, key, windowStart)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{
		Limit:     limit,
		Remaining: limit - count,
		Reset:     windowStart.Add(Window),
		Allowed:   count <= limit,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	return d, nil
}

// AllowCredential checks the credential budget. A per-credential override
// replaces the default limit when set.
func (l *Limiter) AllowCredential(ctx context.Context, credentialID string, override *int) (Decision, error) {
	limit := l.credentialLimit
	if override != nil && *override > 0 {
		limit = *override
	}
	return l.allow(ctx, "cred:"+credentialID, limit)
}

// AllowIP checks the unauthenticated per-IP budget.
func (l *Limiter) AllowIP(ctx context.Context, ip string) (Decision, error) {
	return l.allow(ctx, "ip:"+ip, l.ipLimit)
}

// --- In-memory backend ---

type windowCounter struct {
	start time.Time
	count int
}

// MemoryBackend is a process-local fixed-window counter map.
type MemoryBackend struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
}

// NewMemoryBackend returns an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{counters: make(map[string]*windowCounter)}
}

// Incr implements Backend.
func (m *MemoryBackend) Incr(_ context.Context, key string, windowStart time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counters[key]
	if c == nil || !c.start.Equal(windowStart) {
		c = &windowCounter{start: windowStart}
		m.counters[key] = c
	}
	c.count++
	return c.count, nil
}

// Sweep drops counters from past windows. Run it periodically so idle keys
// do not accumulate.
func (m *MemoryBackend) Sweep(now time.Time) int {
	windowStart := now.Truncate(Window)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, c := range m.counters {
		if c.start.Before(windowStart) {
			delete(m.counters, key)
			removed++
		}
	}
	return removed
}

// StartSweeper sweeps every interval until ctx is done.
func (m *MemoryBackend) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			m.Sweep(t)
		}
	}
}
