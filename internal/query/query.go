// Package query serves the read side: heart-rate series and health summaries,
// with a read-through cache in front of the store.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalsd/vitalsd/internal/cache"
	"github.com/vitalsd/vitalsd/internal/model"
	"github.com/vitalsd/vitalsd/internal/store"
)

// DefaultSeriesLimit caps a series response when the caller gives no limit.
const DefaultSeriesLimit = 1000

// MaxSeriesLimit is the hard ceiling on a single series response.
const MaxSeriesLimit = 10000

// Service answers read queries, consulting the cache first.
type Service struct {
	queries store.Queries
	cache   *cache.Cache
	log     zerolog.Logger
}

// New wires a Service. A nil cache degrades to the disabled mode.
func New(queries store.Queries, c *cache.Cache, log zerolog.Logger) *Service {
	if c == nil {
		c = cache.NewDisabled()
	}
	return &Service{queries: queries, cache: c, log: log}
}

// HeartRateResult is the series envelope returned to handlers.
type HeartRateResult struct {
	Points []*model.HeartRateMetric `json:"points"`
	Count  int                      `json:"count"`
	From   time.Time                `json:"from"`
	To     time.Time                `json:"to"`
	Cached bool                     `json:"cached"`
}

// HeartRateSeries returns heart-rate points for the window, newest first.
// Limit 0 means DefaultSeriesLimit; anything above MaxSeriesLimit is clamped.
func (s *Service) HeartRateSeries(ctx context.Context, userID string, from, to time.Time, limit int) (*HeartRateResult, error) {
	if limit <= 0 {
		limit = DefaultSeriesLimit
	}
	if limit > MaxSeriesLimit {
		limit = MaxSeriesLimit
	}
	if !to.After(from) {
		return nil, fmt.Errorf("%w: `to` must be after `from`", model.ErrValidation)
	}

	key := s.cache.Key(cache.KindHeartRate, userID, qualifier(from, to, limit))
	if raw, ok := s.cache.Get(ctx, key); ok {
		var res HeartRateResult
		if err := json.Unmarshal([]byte(raw), &res); err == nil {
			res.Cached = true
			return &res, nil
		}
		s.cache.Delete(ctx, key)
	}

	points, err := s.queries.HeartRateSeries(ctx, userID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("heart rate series: %w", err)
	}
	res := &HeartRateResult{Points: points, Count: len(points), From: from, To: to}

	if raw, err := json.Marshal(res); err == nil {
		s.cache.Set(ctx, key, string(raw), cache.TTLDefault)
	}
	return res, nil
}

// SummaryResult wraps the summary with cache provenance.
type SummaryResult struct {
	Summary *model.HealthSummary `json:"summary"`
	From    time.Time            `json:"from"`
	To      time.Time            `json:"to"`
	Cached  bool                 `json:"cached"`
}

// Summary aggregates activity, sleep, heart-rate and workout stats over the
// window.
func (s *Service) Summary(ctx context.Context, userID string, from, to time.Time) (*SummaryResult, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: `to` must be after `from`", model.ErrValidation)
	}

	key := s.cache.Key(cache.KindSummary, userID, qualifier(from, to, 0))
	if raw, ok := s.cache.Get(ctx, key); ok {
		var res SummaryResult
		if err := json.Unmarshal([]byte(raw), &res); err == nil {
			res.Cached = true
			return &res, nil
		}
		s.cache.Delete(ctx, key)
	}

	sum, err := s.queries.Summary(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	res := &SummaryResult{Summary: sum, From: from, To: to}

	if raw, err := json.Marshal(res); err == nil {
		s.cache.Set(ctx, key, string(raw), cache.TTLSummary)
	}
	return res, nil
}

func qualifier(from, to time.Time, limit int) string {
	return fmt.Sprintf("%d:%d:%d", from.UnixMilli(), to.UnixMilli(), limit)
}

// ParseWindow resolves optional `from`/`to` query params against a default
// lookback. Timestamps are RFC 3339.
func ParseWindow(fromStr, toStr string, defaultLookback time.Duration, now time.Time) (time.Time, time.Time, error) {
	to := now
	if toStr != "" {
		var err error
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid `to` timestamp", model.ErrValidation)
		}
	}
	from := to.Add(-defaultLookback)
	if fromStr != "" {
		var err error
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid `from` timestamp", model.ErrValidation)
		}
	}
	return from, to, nil
}
