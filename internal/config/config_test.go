package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsd/vitalsd/internal/model"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vitalsd_test")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, int64(10*1024*1024), cfg.AsyncThresholdBytes)
	assert.Equal(t, 1000, cfg.RateLimitRequestsPerHour)
	assert.Equal(t, 100, cfg.RateLimitIPRequestsPerHour)
	assert.False(t, cfg.RedisEnabled())
	assert.Equal(t, 3, cfg.Batch.MaxRetries)
	assert.True(t, cfg.Batch.EnableParallel)
	assert.Equal(t, int16(15), cfg.Validation.HeartRateMin)
	assert.Equal(t, int16(300), cfg.Validation.HeartRateMax)
}

func TestNew_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vitalsd_test")
	t.Setenv("ASYNC_THRESHOLD_BYTES", "1048576")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("BATCH_HEART_RATE_CHUNK_SIZE", "2000")
	t.Setenv("VALIDATION_HEART_RATE_MAX", "250")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, int64(1048576), cfg.AsyncThresholdBytes)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, 2000, cfg.Batch.HeartRateChunkSize)
	assert.Equal(t, int16(250), cfg.Validation.HeartRateMax)
}

func TestNew_AsyncThresholdAboveMaxPayload(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vitalsd_test")
	t.Setenv("ASYNC_THRESHOLD_BYTES", "200000000")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_PAYLOAD_BYTES")
}

func TestBatchConfig_ChunkSizeClampedToSafeLimit(t *testing.T) {
	b := BatchConfig{
		NutritionChunkSize: 100000,
		DefaultChunkSize:   3000,
	}

	// 52428 / 21 params per nutrition row.
	assert.Equal(t, SafeParamLimit/ParamsPerRow(model.MetricNutrition),
		b.ChunkSize(model.MetricNutrition))
}

func TestBatchConfig_ValidateRejectsOversizedChunks(t *testing.T) {
	b := BatchConfig{
		HeartRateChunkSize:     4000,
		BloodPressureChunkSize: 6000,
		SleepChunkSize:         4000,
		ActivityChunkSize:      2500,
		NutritionChunkSize:     2000,
		WorkoutChunkSize:       4000,
		DefaultChunkSize:       3000,
		MaxRetries:             3,
		InitialBackoffMS:       100,
		MaxBackoffMS:           5000,
		MaxParallel:            4,
	}
	require.NoError(t, b.Validate())

	b.ActivityChunkSize = 3000 // 3000 * 19 = 57000 > 52428
	err := b.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "safe limit")
}

func TestParamsPerRow_CoversEveryVariant(t *testing.T) {
	total := 0
	for _, mt := range model.AllMetricTypes() {
		p := ParamsPerRow(mt)
		assert.Greaterf(t, p, 0, "variant %s has no param cost", mt)
		total += p
	}
	assert.Less(t, total, ParamCeiling)
}
