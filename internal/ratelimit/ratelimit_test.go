package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_CredentialBudget(t *testing.T) {
	l := New(NewMemoryBackend(), 3, 100)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.AllowCredential(ctx, "cred-1", nil)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 3, d.Limit)
		assert.Equal(t, 3-(i+1), d.Remaining)
	}

	d, err := l.AllowCredential(ctx, "cred-1", nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)
	assert.GreaterOrEqual(t, d.RetryAfter(time.Now()), 1)

	// Other credentials are unaffected.
	d, err = l.AllowCredential(ctx, "cred-2", nil)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiter_PerCredentialOverride(t *testing.T) {
	l := New(NewMemoryBackend(), 1, 100)
	ctx := context.Background()
	override := 5

	for i := 0; i < 5; i++ {
		d, err := l.AllowCredential(ctx, "cred-1", &override)
		require.NoError(t, err)
		assert.Truef(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 5, d.Limit)
	}
	d, err := l.AllowCredential(ctx, "cred-1", &override)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestLimiter_IPBudgetIsSeparate(t *testing.T) {
	l := New(NewMemoryBackend(), 1, 2)
	ctx := context.Background()

	d, err := l.AllowCredential(ctx, "shared", nil)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// The IP budget uses its own key space, so "shared" does not collide.
	for i := 0; i < 2; i++ {
		d, err = l.AllowIP(ctx, "shared")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err = l.AllowIP(ctx, "shared")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestMemoryBackend_WindowRollover(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	w1 := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	w2 := w1.Add(Window)

	n, err := b.Incr(ctx, "k", w1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, _ = b.Incr(ctx, "k", w1)
	assert.Equal(t, 2, n)

	// New window resets the counter.
	n, _ = b.Incr(ctx, "k", w2)
	assert.Equal(t, 1, n)
}

func TestMemoryBackend_Sweep(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	old := time.Now().Add(-2 * Window).Truncate(Window)
	cur := time.Now().Truncate(Window)

	_, _ = b.Incr(ctx, "stale", old)
	_, _ = b.Incr(ctx, "fresh", cur)

	removed := b.Sweep(time.Now())
	assert.Equal(t, 1, removed)

	// The fresh counter keeps counting in its window.
	n, _ := b.Incr(ctx, "fresh", cur)
	assert.Equal(t, 2, n)
}
