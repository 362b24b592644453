package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the service-level configuration. Variables use the canonical
// un-prefixed names from the deployment contract (DATABASE_URL, REDIS_URL,
// BATCH_*, VALIDATION_*) so existing exporter deployments keep working.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Storage
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`

	// Cache / remote rate-limit backend. "disabled" turns both into no-ops.
	RedisURL    string `envconfig:"REDIS_URL" default:"disabled"`
	CachePrefix string `envconfig:"CACHE_PREFIX" default:"vitalsd"`

	// Ingest routing
	AsyncThresholdBytes int64 `envconfig:"ASYNC_THRESHOLD_BYTES" default:"10485760"`
	MaxPayloadBytes     int64 `envconfig:"MAX_PAYLOAD_BYTES" default:"104857600"`
	AsyncQueueDepth     int   `envconfig:"ASYNC_QUEUE_DEPTH" default:"64"`

	// Rate limiting (fixed window, one hour)
	RateLimitRequestsPerHour   int `envconfig:"RATE_LIMIT_REQUESTS_PER_HOUR" default:"1000"`
	RateLimitIPRequestsPerHour int `envconfig:"RATE_LIMIT_IP_REQUESTS_PER_HOUR" default:"100"`

	// Health probing
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"15"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogJSON  bool   `envconfig:"LOG_JSON" default:"true"`

	Batch      BatchConfig
	Validation ValidationConfig
}

// RedisEnabled reports whether a real redis backend is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != "" && c.RedisURL != "disabled"
}

// Validate checks the parts envconfig defaults cannot guarantee.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.AsyncThresholdBytes <= 0 {
		return fmt.Errorf("ASYNC_THRESHOLD_BYTES must be positive, got %d", c.AsyncThresholdBytes)
	}
	if c.AsyncThresholdBytes > c.MaxPayloadBytes {
		return fmt.Errorf("ASYNC_THRESHOLD_BYTES %d exceeds MAX_PAYLOAD_BYTES %d",
			c.AsyncThresholdBytes, c.MaxPayloadBytes)
	}
	if c.AsyncQueueDepth <= 0 {
		return fmt.Errorf("ASYNC_QUEUE_DEPTH must be positive, got %d", c.AsyncQueueDepth)
	}
	return nil
}

// New parses the full configuration from environment variables.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := envconfig.Process("", &cfg.Batch); err != nil {
		return nil, fmt.Errorf("failed to process batch environment variables: %w", err)
	}
	if err := envconfig.Process("", &cfg.Validation); err != nil {
		return nil, fmt.Errorf("failed to process validation environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Bool("redis_enabled", cfg.RedisEnabled()).
		Int64("async_threshold_bytes", cfg.AsyncThresholdBytes).
		Bool("batch_parallel", cfg.Batch.EnableParallel).
		Msg("configuration loaded")

	return &cfg, nil
}
