package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Checker is one monitored dependency: the postgres store, the redis cache.
type Checker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// ServiceHealthChecker folds the dependency checkers into the single flag
// served on /health/ready. It starts unhealthy; the service only reports
// ready once every dependency has probed healthy at least once.
type ServiceHealthChecker struct {
	healthy atomic.Bool
	deps    []Checker
	log     zerolog.Logger
}

func NewServiceHealthChecker(log zerolog.Logger, deps ...Checker) *ServiceHealthChecker {
	return &ServiceHealthChecker{deps: deps, log: log}
}

// IsHealthy returns the cached service-wide flag without touching a backend.
func (h *ServiceHealthChecker) IsHealthy() bool { return h.healthy.Load() }

// Start re-evaluates dependency health on the interval until ctx is done.
func (h *ServiceHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.evaluate()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.evaluate()
		}
	}
}

// evaluate recomputes the aggregate and logs only on transitions.
func (h *ServiceHealthChecker) evaluate() {
	all := true
	var down []string
	for _, dep := range h.deps {
		if !dep.IsHealthy() {
			all = false
			down = append(down, dep.Name())
		}
	}
	if h.healthy.Swap(all) == all {
		return
	}
	if all {
		h.log.Info().Msg("all dependencies healthy, readiness restored")
	} else {
		h.log.Error().Strs("unhealthy", down).Msg("dependency unhealthy, failing readiness")
	}
}
