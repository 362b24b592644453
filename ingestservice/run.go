// Package ingestservice assembles and runs the telemetry ingestion HTTP
// service.
package ingestservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalsd/vitalsd/internal/api"
	"github.com/vitalsd/vitalsd/internal/auth"
	"github.com/vitalsd/vitalsd/internal/cache"
	"github.com/vitalsd/vitalsd/internal/config"
	"github.com/vitalsd/vitalsd/internal/health"
	"github.com/vitalsd/vitalsd/internal/ingest"
	"github.com/vitalsd/vitalsd/internal/legacy"
	"github.com/vitalsd/vitalsd/internal/logger"
	"github.com/vitalsd/vitalsd/internal/processor"
	"github.com/vitalsd/vitalsd/internal/query"
	"github.com/vitalsd/vitalsd/internal/ratelimit"
	"github.com/vitalsd/vitalsd/internal/store"
	"github.com/vitalsd/vitalsd/internal/store/postgres"
	"github.com/vitalsd/vitalsd/internal/validate"
)

// Process exit codes, mapped by cmd/vitalsd from the returned ExitError.
const (
	ExitOK          = 0
	ExitConfig      = 1
	ExitDatabase    = 2
	ExitBatchConfig = 3
)

// ExitError carries a process exit code alongside the cause.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// Run starts the ingestion service HTTP server and blocks until shutdown or
// error.
func Run() error {
	cfg, err := config.New()
	if err != nil {
		return &ExitError{Code: ExitConfig, Err: err}
	}

	log := logger.New("vitalsd")
	if !cfg.LogJSON {
		log = logger.NewConsole("vitalsd")
	}
	levels, err := logger.NewLevelHandle(cfg.LogLevel)
	if err != nil {
		return &ExitError{Code: ExitConfig, Err: err}
	}

	if err := cfg.Batch.Validate(); err != nil {
		log.Error().Err(err).Msg("batch configuration exceeds the parameter budget")
		return &ExitError{Code: ExitBatchConfig, Err: err}
	}

	log.Info().
		Int("http_port", cfg.HTTPPort).
		Bool("redis_enabled", cfg.RedisEnabled()).
		Int64("async_threshold_bytes", cfg.AsyncThresholdBytes).
		Int("queue_depth", cfg.AsyncQueueDepth).
		Msg("ingestion service starting")

	ctx, stop := newServerContext()
	defer stop()

	st, c, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}

	limiter := buildLimiter(ctx, cfg, log)
	authn := auth.New(st, limiter, c, log)

	coord := ingest.New(st,
		processor.New(st.Metrics(), &cfg.Batch, log),
		validate.NewLazy(validate.New(cfg.Validation)),
		legacy.New(log),
		c,
		ingest.Config{
			AsyncThresholdBytes: cfg.AsyncThresholdBytes,
			MaxPayloadBytes:     cfg.MaxPayloadBytes,
		},
		cfg.AsyncQueueDepth, log)
	go coord.Queue().StartWorker(ctx)

	svcHealth := startHealthCheckers(ctx, cfg, log, st, c)

	router := api.NewRouter(api.Deps{
		Auth:            authn,
		Coordinator:     coord,
		Query:           query.New(st.Queries(), c, log),
		Cache:           c,
		Levels:          levels,
		IsReady:         svcHealth.IsHealthy,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		Log:             log,
	})

	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return &ExitError{Code: ExitDatabase, Err: err}
	}

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("server forced to shutdown")
			return err
		}
		log.Info().Msg("server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// initDependencies opens the database and the cache, failing fast when the
// database is unreachable.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, *cache.Cache, error) {
	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error().Stack().Err(err).Msg("database unavailable")
		return nil, nil, &ExitError{Code: ExitDatabase, Err: err}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Error().Stack().Err(err).Msg("database unreachable")
		return nil, nil, &ExitError{Code: ExitDatabase, Err: err}
	}
	st := postgres.NewWithDB(db)

	c := cache.NewDisabled()
	if cfg.RedisEnabled() {
		c, err = cache.New(cfg.RedisURL, cfg.CachePrefix, log)
		if err != nil {
			// Cache trouble degrades the service, it does not stop it.
			log.Warn().Err(err).Msg("cache unavailable, running without it")
			c = cache.NewDisabled()
		}
	}
	return st, c, nil
}

// buildLimiter picks the redis backend when configured, the in-process map
// otherwise.
func buildLimiter(ctx context.Context, cfg *config.Config, log zerolog.Logger) *ratelimit.Limiter {
	if cfg.RedisEnabled() {
		backend, err := ratelimit.NewRedisBackendURL(cfg.RedisURL, cfg.CachePrefix)
		if err == nil {
			return ratelimit.New(backend, cfg.RateLimitRequestsPerHour, cfg.RateLimitIPRequestsPerHour)
		}
		log.Warn().Err(err).Msg("redis rate-limit backend unavailable, using in-memory counters")
	}
	backend := ratelimit.NewMemoryBackend()
	go backend.StartSweeper(ctx, 10*time.Minute)
	return ratelimit.New(backend, cfg.RateLimitRequestsPerHour, cfg.RateLimitIPRequestsPerHour)
}

// startHealthCheckers starts component checkers and the service-level
// aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, c *cache.Cache) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	var checkers []health.Checker

	storeChecker := store.NewStoreHealthChecker(st, log, probeTimeout)
	go storeChecker.Start(ctx, interval)
	checkers = append(checkers, storeChecker)

	if c.Enabled() {
		cacheChecker := health.NewPingChecker("cache", c, log, probeTimeout)
		go cacheChecker.Start(ctx, interval)
		checkers = append(checkers, cacheChecker)
	}

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in
// seconds, interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup
// window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a context cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
