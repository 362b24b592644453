package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type flakyPinger struct {
	fail atomic.Bool
}

func (p *flakyPinger) HealthPing(context.Context) error {
	if p.fail.Load() {
		return errors.New("unreachable")
	}
	return nil
}

func TestPingChecker_FollowsProbeResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &flakyPinger{}
	pc := NewPingChecker("cache", p, zerolog.Nop(), time.Second)
	if pc.IsHealthy() {
		t.Fatalf("checker must start unhealthy")
	}
	go pc.Start(ctx, 10*time.Millisecond)

	waitTrue(t, func() bool { return pc.IsHealthy() })

	p.fail.Store(true)
	waitTrue(t, func() bool { return !pc.IsHealthy() })

	p.fail.Store(false)
	waitTrue(t, func() bool { return pc.IsHealthy() })
}
