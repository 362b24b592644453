package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsd/vitalsd/internal/cache"
	"github.com/vitalsd/vitalsd/internal/config"
	"github.com/vitalsd/vitalsd/internal/legacy"
	"github.com/vitalsd/vitalsd/internal/model"
	"github.com/vitalsd/vitalsd/internal/processor"
	"github.com/vitalsd/vitalsd/internal/store/storetest"
	"github.com/vitalsd/vitalsd/internal/validate"
)

func testValidationConfig() config.ValidationConfig {
	return config.ValidationConfig{
		HeartRateMin: 15, HeartRateMax: 300,
		HRVMinMS: 0, HRVMaxMS: 500,
		SystolicMin: 50, SystolicMax: 250,
		DiastolicMin: 30, DiastolicMax: 150,
		SleepDurationMinMinutes: 1, SleepDurationMaxMinutes: 1440,
		SleepEfficiencyMin: 0, SleepEfficiencyMax: 100,
		SleepDurationToleranceMinutes: 60,
		StepsMaxPerDay:                200000,
		ActiveEnergyMaxKcal:           20000,
		DistanceMaxMeters:             500000,
		BodyWeightMinKg:               20, BodyWeightMaxKg: 500,
		BMIMin: 15, BMIMax: 50,
		BodyFatMinPct: 3, BodyFatMaxPct: 50,
		BodyTempMinC: 30, BodyTempMaxC: 45,
		BasalTempMinC: 35, BasalTempMaxC: 39,
		WristTempMinC: 30, WristTempMaxC: 45,
		GlucoseMinMgDl: 20, GlucoseMaxMgDl: 600,
		InsulinMaxUnits: 100,
		RespiratoryRateMin: 5, RespiratoryRateMax: 60,
		SpO2MinPct: 70, SpO2MaxPct: 100,
		AudioMaxDb:                140,
		WorkoutDurationMinMinutes: 1, WorkoutDurationMaxMinutes: 1440,
		CycleDayMin: 1, CycleDayMax: 45,
		LHMin: 0, LHMax: 100,
		FutureSkewSeconds: 300,
	}
}

func newTestCoordinator(t *testing.T, fake *storetest.Fake, cfg Config, queueDepth int) *Coordinator {
	t.Helper()
	batchCfg := &config.BatchConfig{
		HeartRateChunkSize:     4000,
		BloodPressureChunkSize: 6000,
		SleepChunkSize:         4000,
		ActivityChunkSize:      2500,
		NutritionChunkSize:     2000,
		WorkoutChunkSize:       4000,
		DefaultChunkSize:       3000,
		MaxRetries:             1,
		InitialBackoffMS:       1,
		MaxBackoffMS:           2,
		MemoryLimitMB:          500,
		EnableParallel:         true,
		MaxParallel:            2,
	}
	return New(fake,
		processor.New(fake.Metrics(), batchCfg, zerolog.Nop()),
		validate.NewLazy(validate.New(testValidationConfig())),
		legacy.New(zerolog.Nop()),
		cache.NewDisabled(),
		cfg, queueDepth, zerolog.Nop())
}

func defaultCfg() Config {
	return Config{AsyncThresholdBytes: 10 * 1024 * 1024, MaxPayloadBytes: 100 * 1024 * 1024}
}

func heartRateBody(n int) []byte {
	type hr struct {
		Type       string `json:"type"`
		RecordedAt string `json:"recorded_at"`
		HeartRate  int    `json:"heart_rate"`
	}
	ms := make([]hr, n)
	base := time.Now().UTC().Add(-time.Hour)
	for i := range ms {
		ms[i] = hr{
			Type:       "HeartRate",
			RecordedAt: base.Add(time.Duration(i) * time.Second).Format(time.RFC3339),
			HeartRate:  60 + i%40,
		}
	}
	body, _ := json.Marshal(map[string]any{"data": map[string]any{"metrics": ms}})
	return body
}

func TestIngest_SmallValidSync(t *testing.T) {
	fake := storetest.NewFake()
	c := newTestCoordinator(t, fake, defaultCfg(), 4)

	resp, async, err := c.Ingest(context.Background(), "u1", heartRateBody(1), "")
	require.NoError(t, err)
	assert.False(t, async)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.ProcessedCount)
	assert.Zero(t, resp.FailedCount)
	assert.Equal(t, model.StatusProcessed, resp.ProcessingStatus)
	require.NotEmpty(t, resp.RawIngestionID)

	raw, err := fake.RawIngestions().Get(context.Background(), resp.RawIngestionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, raw.ProcessingStatus)
	require.NotNil(t, raw.ProcessingErrors)
	assert.Contains(t, *raw.ProcessingErrors, `"expected":1`)
}

func TestIngest_EmptyPayloadRejectedWithoutRawWrite(t *testing.T) {
	fake := storetest.NewFake()
	c := newTestCoordinator(t, fake, defaultCfg(), 4)

	for _, body := range []string{
		`{"data":{"metrics":[],"workouts":[]}}`,
		`{"data":{"metrics":[]}}`,
		`{"data":{}}`,
	} {
		_, _, err := c.Ingest(context.Background(), "u1", []byte(body), "")
		require.Error(t, err, body)
		assert.ErrorIs(t, err, ErrEmptyPayload, body)
	}

	// Nothing persisted for an empty payload.
	_, err := fake.RawIngestions().FindRecentByHash(context.Background(), "u1", "", time.Hour)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestIngest_DuplicateHashWithinWindow(t *testing.T) {
	fake := storetest.NewFake()
	c := newTestCoordinator(t, fake, defaultCfg(), 4)
	body := heartRateBody(2)

	first, _, err := c.Ingest(context.Background(), "u1", body, "")
	require.NoError(t, err)

	_, _, err = c.Ingest(context.Background(), "u1", body, "")
	var dup *DuplicateError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, first.RawIngestionID, dup.ExistingID)

	// A different user submitting the same bytes is not a duplicate.
	_, _, err = c.Ingest(context.Background(), "u2", body, "")
	require.NoError(t, err)
}

func TestIngest_MixedValidity(t *testing.T) {
	fake := storetest.NewFake()
	c := newTestCoordinator(t, fake, defaultCfg(), 4)
	base := time.Now().UTC().Add(-time.Hour)

	body := []byte(fmt.Sprintf(`{"data":{"metrics":[
		{"type":"HeartRate","recorded_at":%q,"heart_rate":75},
		{"type":"HeartRate","recorded_at":%q,"heart_rate":350},
		{"type":"HeartRate","recorded_at":%q,"heart_rate":80}
	]}}`,
		base.Format(time.RFC3339),
		base.Add(time.Minute).Format(time.RFC3339),
		base.Add(2*time.Minute).Format(time.RFC3339)))

	resp, _, err := c.Ingest(context.Background(), "u1", body, "")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, 2, resp.ProcessedCount)
	assert.Equal(t, 1, resp.FailedCount)
	assert.Equal(t, model.StatusPartialSuccess, resp.ProcessingStatus)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "HeartRate", resp.Errors[0].MetricType)
	require.NotNil(t, resp.Errors[0].Index)
	assert.Equal(t, 1, *resp.Errors[0].Index)
	assert.Contains(t, resp.Errors[0].ErrorMessage, "outside range")
}

func TestIngest_LegacyPayloadNormalized(t *testing.T) {
	fake := storetest.NewFake()
	c := newTestCoordinator(t, fake, defaultCfg(), 4)

	at := time.Now().UTC().Add(-time.Hour).Format("2006-01-02 15:04:05")
	body := []byte(fmt.Sprintf(`{"data":{"metrics":[
		{"name":"heart_rate","units":"bpm","data":[{"date":%q,"qty":72,"source":"Apple Watch"}]}
	]}}`, at))

	resp, _, err := c.Ingest(context.Background(), "u1", body, "")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.ProcessedCount)
}

func TestIngest_AsyncRouting(t *testing.T) {
	fake := storetest.NewFake()
	cfg := defaultCfg()
	body := heartRateBody(50)
	cfg.AsyncThresholdBytes = int64(len(body)) - 1
	c := newTestCoordinator(t, fake, cfg, 4)

	resp, async, err := c.Ingest(context.Background(), "u1", body, "")
	require.NoError(t, err)
	assert.True(t, async)

	// 202 contract: zero counts, explicit not-done status.
	assert.False(t, resp.Success)
	assert.Zero(t, resp.ProcessedCount)
	assert.Zero(t, resp.FailedCount)
	assert.Equal(t, model.StatusAcceptedForProcessing, resp.ProcessingStatus)

	raw, err := fake.RawIngestions().Get(context.Background(), resp.RawIngestionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusParsing, raw.ProcessingStatus)

	// Drain the queue and observe the final state.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { c.Queue().StartWorker(ctx); close(done) }()

	require.Eventually(t, func() bool {
		raw, err := fake.RawIngestions().Get(context.Background(), resp.RawIngestionID)
		return err == nil && raw.ProcessingStatus == model.StatusProcessed
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 50, fake.RowCount())
}

func TestIngest_PayloadAtThresholdStaysSync(t *testing.T) {
	fake := storetest.NewFake()
	cfg := defaultCfg()
	body := heartRateBody(10)
	cfg.AsyncThresholdBytes = int64(len(body))
	c := newTestCoordinator(t, fake, cfg, 4)

	_, async, err := c.Ingest(context.Background(), "u1", body, "")
	require.NoError(t, err)
	assert.False(t, async)
}

func TestIngest_QueueFull(t *testing.T) {
	fake := storetest.NewFake()
	cfg := defaultCfg()
	cfg.AsyncThresholdBytes = 1
	c := newTestCoordinator(t, fake, cfg, 1) // worker never started, one slot

	_, async, err := c.Ingest(context.Background(), "u1", heartRateBody(3), "")
	require.NoError(t, err)
	assert.True(t, async)

	_, _, err = c.Ingest(context.Background(), "u1", heartRateBody(4), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, uint64(1), c.Queue().Stats().Rejected)
}

func TestIngest_PayloadTooLarge(t *testing.T) {
	fake := storetest.NewFake()
	cfg := defaultCfg()
	cfg.MaxPayloadBytes = 64
	c := newTestCoordinator(t, fake, cfg, 4)

	_, _, err := c.Ingest(context.Background(), "u1", heartRateBody(10), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestIngest_MalformedBody(t *testing.T) {
	fake := storetest.NewFake()
	c := newTestCoordinator(t, fake, defaultCfg(), 4)

	_, _, err := c.Ingest(context.Background(), "u1", []byte(`{"nope":true}`), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)
}
