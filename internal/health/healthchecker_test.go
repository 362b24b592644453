package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type stubChecker struct {
	name    string
	healthy atomic.Bool
}

func (s *stubChecker) Name() string                               { return s.name }
func (s *stubChecker) IsHealthy() bool                            { return s.healthy.Load() }
func (s *stubChecker) Start(ctx context.Context, _ time.Duration) {}

func TestServiceHealthChecker_Transitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := &stubChecker{name: "store"}
	rd := &stubChecker{name: "cache"}
	db.healthy.Store(true)
	rd.healthy.Store(true)

	svc := NewServiceHealthChecker(zerolog.Nop(), db, rd)

	// Not ready until the first evaluation has run.
	if svc.IsHealthy() {
		t.Fatal("ready before any evaluation")
	}

	go svc.Start(ctx, 10*time.Millisecond)
	waitTrue(t, func() bool { return svc.IsHealthy() })

	// One dependency down takes the whole service down.
	rd.healthy.Store(false)
	waitTrue(t, func() bool { return !svc.IsHealthy() })

	rd.healthy.Store(true)
	waitTrue(t, func() bool { return svc.IsHealthy() })
}

func waitTrue(t *testing.T, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout")
}
