package validate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsd/vitalsd/internal/config"
	"github.com/vitalsd/vitalsd/internal/model"
)

func defaultBounds() config.ValidationConfig {
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

func i16(v int16) *int16       { return &v }
func i32(v int32) *int32       { return &v }
func f64(v float64) *float64   { return &v }

func metric(p model.MetricPayload) model.Metric {
	return model.Metric{Type: p.Kind(), Payload: p}
}

func TestValidator_HeartRateBounds(t *testing.T) {
	v := New(defaultBounds())
	now := time.Now().Add(-time.Minute)

	require.NoError(t, v.Metric(metric(&model.HeartRateMetric{
		RecordedAt: now, HeartRate: i16(72),
	})))

	err := v.Metric(metric(&model.HeartRateMetric{
		RecordedAt: now, HeartRate: i16(500),
	}))
	require.Error(t, err)

	var re *RangeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "heart_rate", re.Field)
	assert.Equal(t, float64(500), re.Value)
	assert.Equal(t, float64(15), re.Min)
	assert.Equal(t, float64(300), re.Max)
}

func TestValidator_OptionalFieldsAbsentPass(t *testing.T) {
	v := New(defaultBounds())

	// Only the timestamp is populated; absent fields must not be checked.
	require.NoError(t, v.Metric(metric(&model.HeartRateMetric{
		RecordedAt: time.Now().Add(-time.Minute),
	})))
}

func TestValidator_FutureTimestampBeyondSkew(t *testing.T) {
	v := New(defaultBounds())

	// Within the 5 minute skew: fine.
	require.NoError(t, v.Metric(metric(&model.HeartRateMetric{
		RecordedAt: time.Now().Add(2 * time.Minute), HeartRate: i16(70),
	})))

	err := v.Metric(metric(&model.HeartRateMetric{
		RecordedAt: time.Now().Add(10 * time.Minute), HeartRate: i16(70),
	}))
	require.Error(t, err)
	var te *TemporalError
	assert.True(t, errors.As(err, &te))
}

func TestValidator_BloodPressureCrossField(t *testing.T) {
	v := New(defaultBounds())
	now := time.Now().Add(-time.Minute)

	require.NoError(t, v.Metric(metric(&model.BloodPressureMetric{
		RecordedAt: now, Systolic: 120, Diastolic: 80,
	})))

	err := v.Metric(metric(&model.BloodPressureMetric{
		RecordedAt: now, Systolic: 80, Diastolic: 120,
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestValidator_SleepSessionInvariants(t *testing.T) {
	v := New(defaultBounds())
	start := time.Now().Add(-9 * time.Hour)
	end := start.Add(8 * time.Hour)

	require.NoError(t, v.Metric(metric(&model.SleepMetric{
		SleepStart: start, SleepEnd: end, DurationMinutes: 480,
		DeepSleepMinutes: i32(90), RemSleepMinutes: i32(120), AwakeMinutes: i32(30),
		EfficiencyPct: f64(94),
	})))

	// end before start
	err := v.Metric(metric(&model.SleepMetric{
		SleepStart: end, SleepEnd: start, DurationMinutes: 480,
	}))
	var te *TemporalError
	require.True(t, errors.As(err, &te))

	// duration disagrees with span beyond tolerance
	err = v.Metric(metric(&model.SleepMetric{
		SleepStart: start, SleepEnd: end, DurationMinutes: 300,
	}))
	require.True(t, errors.As(err, &te))

	// stage sum exceeds duration
	err = v.Metric(metric(&model.SleepMetric{
		SleepStart: start, SleepEnd: end, DurationMinutes: 480,
		DeepSleepMinutes: i32(400), RemSleepMinutes: i32(400),
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestValidator_WorkoutDuration(t *testing.T) {
	v := New(defaultBounds())
	start := time.Now().Add(-2 * time.Hour)

	require.NoError(t, v.Metric(metric(&model.Workout{
		WorkoutType: "running", StartedAt: start, EndedAt: start.Add(45 * time.Minute),
		AvgHeartRate: i16(150),
	})))

	err := v.Metric(metric(&model.Workout{
		WorkoutType: "running", StartedAt: start, EndedAt: start,
	}))
	require.Error(t, err)

	err = v.Metric(metric(&model.Workout{
		StartedAt: start, EndedAt: start.Add(time.Hour),
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestValidator_GlucoseAndSpO2(t *testing.T) {
	v := New(defaultBounds())
	now := time.Now().Add(-time.Minute)

	require.NoError(t, v.Metric(metric(&model.BloodGlucoseMetric{
		RecordedAt: now, GlucoseMgDl: 95,
	})))
	require.Error(t, v.Metric(metric(&model.BloodGlucoseMetric{
		RecordedAt: now, GlucoseMgDl: 5,
	})))

	require.Error(t, v.Metric(metric(&model.RespiratoryMetric{
		RecordedAt: now, OxygenSaturation: f64(55),
	})))
}

func TestLazyValidator_MemoizesOutcome(t *testing.T) {
	inner := New(defaultBounds())
	lazy := NewLazy(inner)
	now := time.Now().Add(-time.Minute).Truncate(time.Second)

	good := metric(&model.HeartRateMetric{RecordedAt: now, HeartRate: i16(72)})
	bad := metric(&model.HeartRateMetric{RecordedAt: now, HeartRate: i16(999)})

	require.NoError(t, lazy.Metric(good, ContextDefault))
	require.NoError(t, lazy.Metric(good, ContextDefault)) // cache hit

	require.Error(t, lazy.Metric(bad, ContextDefault))
	require.Error(t, lazy.Metric(bad, ContextDefault)) // cached failure stays a failure
}

func TestLazyValidator_BypassForBulkContexts(t *testing.T) {
	lazy := NewLazy(New(defaultBounds()))
	now := time.Now().Add(-time.Minute)
	m := metric(&model.HeartRateMetric{RecordedAt: now, HeartRate: i16(72)})

	require.NoError(t, lazy.Metric(m, ContextMigration))
	require.NoError(t, lazy.Metric(m, ContextBulkImport))
}
