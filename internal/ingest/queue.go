package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalsd/vitalsd/internal/model"
)

// task is one queued async ingestion. The payload is already parsed; the raw
// body is on disk in raw_ingestions if reprocessing is ever needed.
type task struct {
	rawID         string
	userID        string
	data          *model.IngestData
	ingestContext string
}

// Queue is the bounded in-process async pipeline. Durability across restarts
// is explicitly not a goal for this tier; back-pressure is.
type Queue struct {
	coord *Coordinator
	tasks chan task
	log   zerolog.Logger

	depth     atomic.Int64
	processed atomic.Uint64
	rejected  atomic.Uint64
}

func newQueue(coord *Coordinator, capacity int, log zerolog.Logger) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		coord: coord,
		tasks: make(chan task, capacity),
		log:   log,
	}
}

// enqueue attempts a non-blocking put; false means the queue is full.
func (q *Queue) enqueue(t task) bool {
	select {
	case q.tasks <- t:
		q.depth.Add(1)
		return true
	default:
		q.rejected.Add(1)
		return false
	}
}

// StartWorker drains the queue until ctx is cancelled. On shutdown the
// in-flight task finishes; queued tasks are marked as errored so their raw
// ingestions do not stay in `parsing` forever.
func (q *Queue) StartWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.drainOnShutdown()
			return
		case t := <-q.tasks:
			q.depth.Add(-1)
			q.run(t)
		}
	}
}

func (q *Queue) run(t task) {
	// Detach from the request context: the client already has its 202.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	started := time.Now()
	resp := q.coord.processParsed(ctx, t.rawID, t.userID, t.data, t.ingestContext)
	q.processed.Add(1)
	q.log.Info().
		Str("raw_ingestion_id", t.rawID).
		Str("user_id", t.userID).
		Int("processed", resp.ProcessedCount).
		Int("failed", resp.FailedCount).
		Str("status", resp.ProcessingStatus).
		Dur("elapsed", time.Since(started)).
		Msg("async ingestion completed")
}

func (q *Queue) drainOnShutdown() {
	for {
		select {
		case t := <-q.tasks:
			q.depth.Add(-1)
			msg := "service shut down before processing"
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := q.coord.store.RawIngestions().UpdateStatus(ctx, t.rawID, model.StatusError, &msg); err != nil {
				q.log.Warn().Err(err).Str("raw_ingestion_id", t.rawID).Msg("shutdown status update failed")
			}
			cancel()
		default:
			return
		}
	}
}

// Stats is the queue snapshot for the status endpoint.
type Stats struct {
	Depth     int64  `json:"depth"`
	Capacity  int    `json:"capacity"`
	Processed uint64 `json:"processed"`
	Rejected  uint64 `json:"rejected"`
}

// Stats snapshots queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Depth:     q.depth.Load(),
		Capacity:  cap(q.tasks),
		Processed: q.processed.Load(),
		Rejected:  q.rejected.Load(),
	}
}
