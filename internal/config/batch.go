package config

import (
	"fmt"

	"github.com/vitalsd/vitalsd/internal/model"
)

// Postgres caps bind parameters per statement at 65535 (u16). We plan chunks
// against 80% of that so drift in column counts cannot silently push a
// statement over the wire-protocol limit.
const (
	ParamCeiling   = 65535
	SafeParamLimit = ParamCeiling * 80 / 100 // 52428
)

// paramsPerRow is the number of bind parameters one row of each variant
// contributes to its multi-row INSERT. Must track the insert descriptors in
// store/postgres.
var paramsPerRow = map[model.MetricType]int{
	model.MetricHeartRate:       7,
	model.MetricBloodPressure:   6,
	model.MetricSleep:           9,
	model.MetricActivity:        19,
	model.MetricBodyMeasurement: 14,
	model.MetricTemperature:     7,
	model.MetricBloodGlucose:    8,
	model.MetricMetabolic:       6,
	model.MetricRespiratory:     8,
	model.MetricNutrition:       21,
	model.MetricWorkout:         12,
	model.MetricEnvironmental:   12,
	model.MetricAudioExposure:   7,
	model.MetricSafetyEvent:     8,
	model.MetricMindfulness:     9,
	model.MetricMentalHealth:    10,
	model.MetricMenstrual:       9,
	model.MetricFertility:       12,
	model.MetricSymptom:         9,
	model.MetricHygiene:         8,
}

// ParamsPerRow returns the bind-parameter cost of one row of the variant.
func ParamsPerRow(t model.MetricType) int { return paramsPerRow[t] }

// BatchConfig controls chunking, retries and parallelism of the batch
// processor. Chunk sizes are per high-traffic variant; everything else uses
// DefaultChunkSize.
type BatchConfig struct {
	HeartRateChunkSize     int `envconfig:"BATCH_HEART_RATE_CHUNK_SIZE" default:"4000"`
	BloodPressureChunkSize int `envconfig:"BATCH_BLOOD_PRESSURE_CHUNK_SIZE" default:"6000"`
	SleepChunkSize         int `envconfig:"BATCH_SLEEP_CHUNK_SIZE" default:"4000"`
	ActivityChunkSize      int `envconfig:"BATCH_ACTIVITY_CHUNK_SIZE" default:"2500"`
	NutritionChunkSize     int `envconfig:"BATCH_NUTRITION_CHUNK_SIZE" default:"2000"`
	WorkoutChunkSize       int `envconfig:"BATCH_WORKOUT_CHUNK_SIZE" default:"4000"`
	DefaultChunkSize       int `envconfig:"BATCH_DEFAULT_CHUNK_SIZE" default:"3000"`

	MaxRetries       int   `envconfig:"BATCH_MAX_RETRIES" default:"3"`
	InitialBackoffMS int   `envconfig:"BATCH_INITIAL_BACKOFF_MS" default:"100"`
	MaxBackoffMS     int   `envconfig:"BATCH_MAX_BACKOFF_MS" default:"5000"`
	MemoryLimitMB    int64 `envconfig:"BATCH_MEMORY_LIMIT_MB" default:"500"`
	EnableParallel   bool  `envconfig:"BATCH_ENABLE_PARALLEL" default:"true"`
	MaxParallel      int   `envconfig:"BATCH_MAX_PARALLEL" default:"4"`
}

// configuredChunkSize returns the operator-set chunk size for a variant
// before the safe-limit clamp.
func (b *BatchConfig) configuredChunkSize(t model.MetricType) int {
	switch t {
	case model.MetricHeartRate:
		return b.HeartRateChunkSize
	case model.MetricBloodPressure:
		return b.BloodPressureChunkSize
	case model.MetricSleep:
		return b.SleepChunkSize
	case model.MetricActivity:
		return b.ActivityChunkSize
	case model.MetricNutrition:
		return b.NutritionChunkSize
	case model.MetricWorkout:
		return b.WorkoutChunkSize
	default:
		return b.DefaultChunkSize
	}
}

// ChunkSize returns the effective chunk size for a variant: the configured
// size clamped so that rows*params stays within SafeParamLimit.
func (b *BatchConfig) ChunkSize(t model.MetricType) int {
	size := b.configuredChunkSize(t)
	if size < 1 {
		size = 1
	}
	if max := SafeParamLimit / paramsPerRow[t]; size > max {
		return max
	}
	return size
}

// Validate rejects configurations whose chunk sizes would exceed the safe
// parameter limit. Startup maps this to its own exit code so operators can
// tell a bad chunk size from a generic config error.
func (b *BatchConfig) Validate() error {
	if b.MaxRetries < 0 {
		return fmt.Errorf("BATCH_MAX_RETRIES must be >= 0, got %d", b.MaxRetries)
	}
	if b.InitialBackoffMS <= 0 || b.MaxBackoffMS < b.InitialBackoffMS {
		return fmt.Errorf("invalid backoff bounds: initial=%dms max=%dms",
			b.InitialBackoffMS, b.MaxBackoffMS)
	}
	if b.MaxParallel < 1 {
		return fmt.Errorf("BATCH_MAX_PARALLEL must be >= 1, got %d", b.MaxParallel)
	}
	for _, t := range model.AllMetricTypes() {
		size := b.configuredChunkSize(t)
		if size < 1 {
			return fmt.Errorf("chunk size for %s must be >= 1, got %d", t, size)
		}
		if params := size * paramsPerRow[t]; params > SafeParamLimit {
			return fmt.Errorf("chunk size %d for %s needs %d bind params, exceeding the safe limit %d",
				size, t, params, SafeParamLimit)
		}
	}
	return nil
}
