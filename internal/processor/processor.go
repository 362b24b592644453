// Package processor turns validated ingest payloads into chunked, retried,
// conflict-safe store writes, and decides the final processing status.
package processor

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/vitalsd/vitalsd/internal/config"
	"github.com/vitalsd/vitalsd/internal/model"
	"github.com/vitalsd/vitalsd/internal/store"
)

// estimatedRowBytes is a conservative in-memory upper bound per metric row,
// used only for the parallel-vs-sequential decision.
const estimatedRowBytes = 512

// Result aggregates one batch run. It is always returned, never replaced by
// an error; catastrophic chunk failures become entries in Errors.
type Result struct {
	ProcessedCount int                        `json:"processed_count"`
	FailedCount    int                        `json:"failed_count"`
	Errors         []model.ProcessingError    `json:"errors,omitempty"`
	ElapsedMS      int64                      `json:"elapsed_ms"`
	RetryAttempts  int                        `json:"retry_attempts"`
	PeakMemoryMB   float64                    `json:"peak_memory_mb"`
	DedupStats     map[model.MetricFamily]int `json:"dedup_stats,omitempty"`
}

// BatchProcessor owns chunk planning, dispatch and retries.
type BatchProcessor struct {
	metrics store.Metrics
	cfg     *config.BatchConfig
	log     zerolog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a BatchProcessor over the metrics writer.
func New(metrics store.Metrics, cfg *config.BatchConfig, log zerolog.Logger) *BatchProcessor {
	return &BatchProcessor{
		metrics: metrics,
		cfg:     cfg,
		log:     log,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// variantBatch is one variant's deduplicated input in submission order.
type variantBatch struct {
	variant model.MetricType
	rows    []model.MetricPayload
}

// Process writes the batch and aggregates the outcome. Cancellation stops
// scheduling new chunks; in-flight chunks run to completion so partial
// writes are never abandoned mid-statement.
func (p *BatchProcessor) Process(ctx context.Context, userID string, data model.IngestData) *Result {
	start := time.Now()
	res := &Result{DedupStats: make(map[model.MetricFamily]int)}

	batches, totalRows := p.groupAndDedup(data, res)
	res.PeakMemoryMB = float64(totalRows*estimatedRowBytes) / (1024 * 1024)

	if totalRows == 0 {
		res.ElapsedMS = time.Since(start).Milliseconds()
		return res
	}

	parallel := p.cfg.EnableParallel && len(batches) > 1 &&
		res.PeakMemoryMB <= float64(p.cfg.MemoryLimitMB)

	if parallel {
		p.dispatchParallel(ctx, userID, batches, res)
	} else {
		var mu sync.Mutex
		for _, b := range batches {
			p.processVariant(ctx, userID, b, res, &mu)
		}
	}

	res.ElapsedMS = time.Since(start).Milliseconds()
	p.log.Debug().
		Str("user_id", userID).
		Int("processed", res.ProcessedCount).
		Int("failed", res.FailedCount).
		Int("retries", res.RetryAttempts).
		Bool("parallel", parallel).
		Int64("elapsed_ms", res.ElapsedMS).
		Msg("batch processed")
	return res
}

// groupAndDedup buckets the union by variant in declaration order and drops
// in-batch duplicate (user, timestamp) keys, keeping the first occurrence.
func (p *BatchProcessor) groupAndDedup(data model.IngestData, res *Result) ([]variantBatch, int) {
	grouped := make(map[model.MetricType][]model.MetricPayload)
	for _, m := range data.Metrics {
		if m.Payload == nil {
			continue
		}
		grouped[m.Type] = append(grouped[m.Type], m.Payload)
	}
	for i := range data.Workouts {
		grouped[model.MetricWorkout] = append(grouped[model.MetricWorkout], &data.Workouts[i])
	}

	var batches []variantBatch
	total := 0
	for _, t := range model.AllMetricTypes() {
		rows := grouped[t]
		if len(rows) == 0 {
			continue
		}
		seen := make(map[int64]struct{}, len(rows))
		kept := rows[:0]
		for _, r := range rows {
			key := r.Timestamp().UnixNano()
			if _, dup := seen[key]; dup {
				res.DedupStats[t.Family()]++
				continue
			}
			seen[key] = struct{}{}
			kept = append(kept, r)
		}
		batches = append(batches, variantBatch{variant: t, rows: kept})
		total += len(kept)
	}
	return batches, total
}

func (p *BatchProcessor) dispatchParallel(ctx context.Context, userID string, batches []variantBatch, res *Result) {
	workers := p.cfg.MaxParallel
	if n := runtime.GOMAXPROCS(0); n < workers {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, b := range batches {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancelled before dispatch: the variant's rows count as failed.
			mu.Lock()
			res.FailedCount += len(b.rows)
			res.Errors = append(res.Errors, model.ProcessingError{
				MetricType:   string(b.variant),
				ErrorMessage: fmt.Sprintf("batch cancelled before dispatch: %v", err),
			})
			mu.Unlock()
			continue
		}
		wg.Add(1)
		b := b
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			p.processVariant(ctx, userID, b, res, &mu)
		}()
	}
	wg.Wait()
}

// processVariant runs a variant's chunks sequentially, preserving
// deterministic conflict behavior within the variant.
func (p *BatchProcessor) processVariant(ctx context.Context, userID string, b variantBatch, res *Result, mu *sync.Mutex) {
	chunkSize := p.cfg.ChunkSize(b.variant)
	for off := 0; off < len(b.rows); off += chunkSize {
		end := off + chunkSize
		if end > len(b.rows) {
			end = len(b.rows)
		}
		chunk := b.rows[off:end]

		if ctx.Err() != nil {
			mu.Lock()
			res.FailedCount += len(b.rows) - off
			res.Errors = append(res.Errors, model.ProcessingError{
				MetricType:   string(b.variant),
				ErrorMessage: fmt.Sprintf("batch cancelled: %v", ctx.Err()),
			})
			mu.Unlock()
			return
		}

		n, retries, err := p.insertChunkWithRetry(ctx, userID, b.variant, chunk)
		mu.Lock()
		res.RetryAttempts += retries
		if err != nil {
			res.FailedCount += len(chunk)
			res.Errors = append(res.Errors, model.ProcessingError{
				MetricType:   string(b.variant),
				ErrorMessage: err.Error(),
			})
		} else {
			// Upserts can report more affected rows than input rows on
			// conflict updates; the chunk length is the honest count.
			if n > int64(len(chunk)) {
				n = int64(len(chunk))
			}
			res.ProcessedCount += int(n)
			if short := len(chunk) - int(n); short > 0 {
				res.FailedCount += short
			}
		}
		mu.Unlock()
	}
}

func (p *BatchProcessor) insertChunkWithRetry(ctx context.Context, userID string, variant model.MetricType, chunk []model.MetricPayload) (int64, int, error) {
	var lastErr error
	retries := 0
	for attempt := 0; ; attempt++ {
		n, err := p.metrics.InsertBatch(ctx, userID, variant, chunk)
		if err == nil {
			return n, retries, nil
		}
		lastErr = err
		if !isTransient(err) || attempt >= p.cfg.MaxRetries {
			break
		}
		retries++
		delay := p.nextBackoff(attempt)
		p.log.Warn().
			Str("variant", string(variant)).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Err(err).
			Msg("transient chunk failure, retrying")
		if err := p.sleep(ctx, delay); err != nil {
			lastErr = fmt.Errorf("retry interrupted: %w", err)
			break
		}
	}
	return 0, retries, fmt.Errorf("chunk insert failed after %d retries: %w", retries, lastErr)
}

func (p *BatchProcessor) nextBackoff(attempt int) time.Duration {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return backoff(attempt,
		time.Duration(p.cfg.InitialBackoffMS)*time.Millisecond,
		time.Duration(p.cfg.MaxBackoffMS)*time.Millisecond,
		p.rng)
}
