package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledCache_BehavesAsMiss(t *testing.T) {
	c := NewDisabled()
	ctx := context.Background()

	assert.False(t, c.Enabled())

	_, ok := c.Get(ctx, "vitalsd:summary:u1:abc")
	assert.False(t, ok)

	// Writes and invalidation must be safe no-ops.
	c.Set(ctx, "k", "v", time.Minute)
	c.Delete(ctx, "k")
	c.InvalidateUser(ctx, "u1")
	require.NoError(t, c.Ping(ctx))

	stats := c.Stats()
	assert.False(t, stats.Enabled)
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
}

func TestKey_Shape(t *testing.T) {
	c := &Cache{prefix: "vitalsd"}

	key := c.Key(KindHeartRate, "user-1", "from=2025-09-01&to=2025-09-08")
	parts := strings.Split(key, ":")
	require.Len(t, parts, 4)
	assert.Equal(t, "vitalsd", parts[0])
	assert.Equal(t, "heart_rate", parts[1])
	assert.Equal(t, "user-1", parts[2])
	assert.Len(t, parts[3], 16)

	// Same inputs, same key; different qualifier, different fingerprint.
	assert.Equal(t, key, c.Key(KindHeartRate, "user-1", "from=2025-09-01&to=2025-09-08"))
	assert.NotEqual(t, parts[3],
		strings.Split(c.Key(KindHeartRate, "user-1", "from=2025-09-02&to=2025-09-08"), ":")[3])
}
