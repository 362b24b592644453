package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// PingChecker adapts any HealthPinger into a periodic Checker.
// Used for dependencies that expose a single connectivity probe (redis).
type PingChecker struct {
	name         string
	pinger       HealthPinger
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

// NewPingChecker creates a checker around a pinger.
func NewPingChecker(name string, pinger HealthPinger, log zerolog.Logger, probeTimeout time.Duration) *PingChecker {
	pc := &PingChecker{name: name, pinger: pinger, log: log, probeTimeout: probeTimeout}
	pc.healthy.Store(0)
	return pc
}

// Name returns the checker name.
func (pc *PingChecker) Name() string { return pc.name }

// IsHealthy returns the cached health status (non-blocking).
func (pc *PingChecker) IsHealthy() bool { return pc.healthy.Load() == 1 }

// Start begins periodic health checking.
func (pc *PingChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	check := func() {
		to := pc.probeTimeout
		if to <= 0 {
			to = 2 * time.Second
		}
		checkCtx, cancel := context.WithTimeout(ctx, to)
		defer cancel()

		if err := pc.pinger.HealthPing(checkCtx); err != nil {
			pc.log.Error().Stack().
				Str("checker", pc.name).
				Err(err).
				Msg("dependency health check failed")
			pc.healthy.Store(0)
			return
		}
		pc.healthy.Store(1)
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
