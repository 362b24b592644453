package processor

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Transient postgres error classes: serialization failure, deadlock,
// insufficient resources (53xxx), connection exceptions (08xxx).
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return true
		}
		return strings.HasPrefix(pgErr.Code, "53") || strings.HasPrefix(pgErr.Code, "08")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"i/o timeout",
		"pool timeout",
		"unexpected EOF",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// backoff returns the delay before retry number attempt (0-based), doubling
// from initial up to max, with ±20% jitter so retrying chunks do not stampede.
func backoff(attempt int, initial, max time.Duration, rng *rand.Rand) time.Duration {
	d := initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	if d > max {
		d = max
	}
	jitter := 0.8 + 0.4*rng.Float64()
	return time.Duration(float64(d) * jitter)
}
