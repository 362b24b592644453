// Package ingest coordinates payload intake: parsing, raw-payload
// persistence, size-based sync/async routing, and final status reconciliation.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalsd/vitalsd/internal/cache"
	"github.com/vitalsd/vitalsd/internal/legacy"
	"github.com/vitalsd/vitalsd/internal/model"
	"github.com/vitalsd/vitalsd/internal/processor"
	"github.com/vitalsd/vitalsd/internal/store"
	"github.com/vitalsd/vitalsd/internal/validate"
)

// DuplicateWindow bounds content-hash duplicate detection.
const DuplicateWindow = 24 * time.Hour

// DuplicateError reports a byte-identical payload already accepted inside
// the window.
type DuplicateError struct {
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return "duplicate payload, existing raw_ingestion_id " + e.ExistingID
}

// ErrQueueFull is returned when the async queue cannot take another payload.
var ErrQueueFull = errors.New("ingest queue full")

// ErrPayloadTooLarge is returned when the body exceeds the hard cap.
var ErrPayloadTooLarge = errors.New("payload too large")

// ErrEmptyPayload is returned when the body carries no metrics or workouts.
var ErrEmptyPayload = fmt.Errorf("%w: empty payload", model.ErrValidation)

// Config carries the coordinator's routing knobs.
type Config struct {
	AsyncThresholdBytes int64
	MaxPayloadBytes     int64
}

// Coordinator drives one ingest end to end.
type Coordinator struct {
	store      store.Store
	proc       *processor.BatchProcessor
	validator  *validate.LazyValidator
	normalizer *legacy.Normalizer
	cache      *cache.Cache
	cfg        Config
	queue      *Queue
	log        zerolog.Logger
}

// New wires a Coordinator. Call StartWorker on the returned queue (via
// Queue()) before serving traffic.
func New(st store.Store, proc *processor.BatchProcessor, validator *validate.LazyValidator,
	normalizer *legacy.Normalizer, c *cache.Cache, cfg Config, queueDepth int, log zerolog.Logger) *Coordinator {
	if c == nil {
		c = cache.NewDisabled()
	}
	co := &Coordinator{
		store:      st,
		proc:       proc,
		validator:  validator,
		normalizer: normalizer,
		cache:      c,
		cfg:        cfg,
		log:        log,
	}
	co.queue = newQueue(co, queueDepth, log)
	return co
}

// Queue exposes the async queue for lifecycle management and stats.
func (c *Coordinator) Queue() *Queue { return c.queue }

// Ingest handles one request body for the given user. The boolean reports
// whether the payload was queued for asynchronous processing.
func (c *Coordinator) Ingest(ctx context.Context, userID string, body []byte, ingestContext string) (*model.IngestResponse, bool, error) {
	if int64(len(body)) > c.cfg.MaxPayloadBytes {
		return nil, false, fmt.Errorf("%w: %d bytes over cap %d", ErrPayloadTooLarge, len(body), c.cfg.MaxPayloadBytes)
	}

	sum := sha256.Sum256(body)
	payloadHash := hex.EncodeToString(sum[:])

	if existing, err := c.store.RawIngestions().FindRecentByHash(ctx, userID, payloadHash, DuplicateWindow); err == nil {
		return nil, false, &DuplicateError{ExistingID: existing.ID}
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, false, fmt.Errorf("duplicate check: %w", err)
	}

	data, err := c.parse(body)
	if err != nil {
		return nil, false, err
	}
	if data.Empty() {
		return nil, false, ErrEmptyPayload
	}

	if int64(len(body)) > c.cfg.AsyncThresholdBytes {
		return c.ingestAsync(ctx, userID, body, payloadHash, data, ingestContext)
	}
	return c.ingestSync(ctx, userID, body, payloadHash, data, ingestContext)
}

// parse accepts the canonical schema first, then the legacy exporter shapes.
// A body carrying an explicit data object is canonical even when that object
// is empty, so empty submissions surface as empty rather than unrecognized.
func (c *Coordinator) parse(body []byte) (*model.IngestData, error) {
	var canonical struct {
		Data *model.IngestData `json:"data"`
	}
	if err := json.Unmarshal(body, &canonical); err == nil && canonical.Data != nil {
		return canonical.Data, nil
	}

	res, err := c.normalizer.Normalize(body)
	if err != nil {
		return nil, err
	}
	if res.Dropped > 0 {
		c.log.Info().Int("dropped", res.Dropped).Msg("legacy payload points without a mapping were dropped")
	}
	return &res.Payload.Data, nil
}

func (c *Coordinator) ingestSync(ctx context.Context, userID string, body []byte, payloadHash string, data *model.IngestData, ingestContext string) (*model.IngestResponse, bool, error) {
	started := time.Now()

	raw, err := c.store.RawIngestions().Create(ctx, &model.RawIngestion{
		UserID:           userID,
		PayloadHash:      payloadHash,
		PayloadSizeBytes: int64(len(body)),
		RawPayload:       body,
	})
	if err != nil {
		return nil, false, fmt.Errorf("persist raw payload: %w", err)
	}
	if err := c.store.RawIngestions().UpdateStatus(ctx, raw.ID, model.StatusProcessing, nil); err != nil {
		c.log.Warn().Err(err).Str("raw_ingestion_id", raw.ID).Msg("status transition to processing failed")
	}

	resp := c.processParsed(ctx, raw.ID, userID, data, ingestContext)
	resp.ProcessingTimeMS = time.Since(started).Milliseconds()
	return resp, false, nil
}

func (c *Coordinator) ingestAsync(ctx context.Context, userID string, body []byte, payloadHash string, data *model.IngestData, ingestContext string) (*model.IngestResponse, bool, error) {
	raw, err := c.store.RawIngestions().Create(ctx, &model.RawIngestion{
		UserID:           userID,
		PayloadHash:      payloadHash,
		PayloadSizeBytes: int64(len(body)),
		RawPayload:       body,
		ProcessingStatus: model.StatusReceived,
	})
	if err != nil {
		return nil, false, fmt.Errorf("persist raw payload: %w", err)
	}
	if err := c.store.RawIngestions().UpdateStatus(ctx, raw.ID, model.StatusParsing, nil); err != nil {
		c.log.Warn().Err(err).Str("raw_ingestion_id", raw.ID).Msg("status transition to parsing failed")
	}

	if !c.queue.enqueue(task{rawID: raw.ID, userID: userID, data: data, ingestContext: ingestContext}) {
		msg := "ingest queue full"
		if err := c.store.RawIngestions().UpdateStatus(ctx, raw.ID, model.StatusError, &msg); err != nil {
			c.log.Warn().Err(err).Str("raw_ingestion_id", raw.ID).Msg("status transition to error failed")
		}
		return nil, false, ErrQueueFull
	}

	// 202 contract: counts stay zero, success stays false, and the message
	// must say processing has not happened yet.
	return &model.IngestResponse{
		Success:          false,
		ProcessedCount:   0,
		FailedCount:      0,
		ProcessingStatus: model.StatusAcceptedForProcessing,
		RawIngestionID:   raw.ID,
	}, true, nil
}

// processParsed validates, writes, reconciles and persists the final status.
// Shared between the sync path and the async worker.
func (c *Coordinator) processParsed(ctx context.Context, rawID, userID string, data *model.IngestData, ingestContext string) *model.IngestResponse {
	valid := model.IngestData{}
	var validationErrs []model.ProcessingError
	perVariant := make(map[string]processor.VariantCounts)

	for i, m := range data.Metrics {
		vc := perVariant[string(m.Type)]
		vc.Submitted++
		perVariant[string(m.Type)] = vc
		if err := c.validator.Metric(m, ingestContext); err != nil {
			idx := i
			validationErrs = append(validationErrs, model.ProcessingError{
				MetricType:   string(m.Type),
				ErrorMessage: err.Error(),
				Index:        &idx,
			})
			continue
		}
		valid.Metrics = append(valid.Metrics, m)
	}
	for i := range data.Workouts {
		vc := perVariant[string(model.MetricWorkout)]
		vc.Submitted++
		perVariant[string(model.MetricWorkout)] = vc
		w := data.Workouts[i]
		if err := c.validator.Metric(model.Metric{Type: model.MetricWorkout, Payload: &w}, ingestContext); err != nil {
			idx := i
			validationErrs = append(validationErrs, model.ProcessingError{
				MetricType:   string(model.MetricWorkout),
				ErrorMessage: err.Error(),
				Index:        &idx,
			})
			continue
		}
		valid.Workouts = append(valid.Workouts, w)
	}

	res := c.proc.Process(ctx, userID, valid)

	dedupDropped := 0
	for _, n := range res.DedupStats {
		dedupDropped += n
	}
	expected := valid.MetricCount() - dedupDropped
	rec := processor.Reconcile(expected, perVariant, res)

	// Validation rejects happen before the processor, so the reconciler
	// cannot see them; fold them into the final status here.
	if len(validationErrs) > 0 {
		switch {
		case res.ProcessedCount == 0:
			rec.Status = model.StatusError
		case rec.Status == model.StatusProcessed:
			rec.Status = model.StatusPartialSuccess
		}
	}

	report := rec.ReportJSON()
	if err := c.store.RawIngestions().UpdateStatus(ctx, rawID, rec.Status, &report); err != nil {
		c.log.Error().Err(err).Str("raw_ingestion_id", rawID).Msg("final status update failed")
	}

	if res.ProcessedCount > 0 {
		c.cache.InvalidateUser(ctx, userID)
	}

	allErrs := append(validationErrs, res.Errors...)
	failed := res.FailedCount + len(validationErrs)
	return &model.IngestResponse{
		Success:          res.ProcessedCount > 0 && failed == 0 && len(allErrs) == 0,
		ProcessedCount:   res.ProcessedCount,
		FailedCount:      failed,
		Errors:           allErrs,
		ProcessingStatus: rec.Status,
		RawIngestionID:   rawID,
	}
}
