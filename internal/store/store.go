package store

import (
	"context"
	"time"

	"github.com/vitalsd/vitalsd/internal/model"
)

// Store exposes persistence operations required by the ingest pipeline.
// Implementations live under internal/store/<driver>/ (e.g., postgres).
type Store interface {
	Users() Users
	Credentials() Credentials
	RawIngestions() RawIngestions
	Metrics() Metrics
	Queries() Queries
}

type Users interface {
	Create(ctx context.Context, u *model.User) (*model.User, error)
	Get(ctx context.Context, userID string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

type Credentials interface {
	Create(ctx context.Context, c *model.Credential) (*model.Credential, error)
	GetByID(ctx context.Context, credentialID string) (*model.Credential, error)
	// ListActive returns non-expired active credentials for hash verification.
	ListActive(ctx context.Context) ([]*model.Credential, error)
	TouchLastUsed(ctx context.Context, credentialID string, at time.Time) error
	Deactivate(ctx context.Context, credentialID string) error
}

type RawIngestions interface {
	Create(ctx context.Context, r *model.RawIngestion) (*model.RawIngestion, error)
	Get(ctx context.Context, id string) (*model.RawIngestion, error)
	// FindRecentByHash returns the newest ingestion with the same payload
	// hash for the user inside the window, or ErrNotFound.
	FindRecentByHash(ctx context.Context, userID, payloadHash string, window time.Duration) (*model.RawIngestion, error)
	// UpdateStatus applies a forward-only status transition; regressions
	// return ErrConflict.
	UpdateStatus(ctx context.Context, id, status string, processingErrors *string) error
}

// Metrics persists metric rows. Chunking to the bind-parameter budget is the
// caller's responsibility; InsertBatch issues exactly one statement.
type Metrics interface {
	// InsertBatch upserts one pre-chunked slice of a single variant and
	// returns the number of rows the statement affected.
	InsertBatch(ctx context.Context, userID string, variant model.MetricType, rows []model.MetricPayload) (int64, error)
}

// Queries serves the cached read path.
type Queries interface {
	HeartRateSeries(ctx context.Context, userID string, from, to time.Time, limit int) ([]*model.HeartRateMetric, error)
	Summary(ctx context.Context, userID string, from, to time.Time) (*model.HealthSummary, error)
}
