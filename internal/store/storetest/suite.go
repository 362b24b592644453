package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vitalsd/vitalsd/internal/model"
	"github.com/vitalsd/vitalsd/internal/store"
)

// Run exercises a minimal compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store and return it from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	// Unique test identifiers
	email := "u-" + uuid.New().String() + "@example.test"

	// Users
	u, err := s.Users().Create(ctx, &model.User{Email: email})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if got, err := s.Users().Get(ctx, u.ID); err != nil || got == nil || got.Email != email {
		t.Fatalf("GetUser: got=%v err=%v", got, err)
	}
	if got, err := s.Users().GetByEmail(ctx, email); err != nil || got.ID != u.ID {
		t.Fatalf("GetUserByEmail: got=%v err=%v", got, err)
	}
	if _, err := s.Users().Get(ctx, uuid.New().String()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetUser missing: want ErrNotFound, got %v", err)
	}

	// Credentials
	cred, err := s.Credentials().Create(ctx, &model.Credential{
		UserID:  u.ID,
		KeyHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		Scopes:  []string{"write:health_data"},
	})
	if err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}
	if got, err := s.Credentials().GetByID(ctx, cred.ID); err != nil || got.UserID != u.ID {
		t.Fatalf("GetCredential: got=%v err=%v", got, err)
	}
	if lst, err := s.Credentials().ListActive(ctx); err != nil || len(lst) == 0 {
		t.Fatalf("ListActiveCredentials: n=%d err=%v", len(lst), err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.Credentials().TouchLastUsed(ctx, cred.ID, now); err != nil {
		t.Fatalf("TouchLastUsed: %v", err)
	}

	// Raw ingestions with duplicate window
	raw, err := s.RawIngestions().Create(ctx, &model.RawIngestion{
		UserID:           u.ID,
		PayloadHash:      "deadbeef" + uuid.New().String()[:8],
		PayloadSizeBytes: 128,
		RawPayload:       []byte(`{"data":{"metrics":[]}}`),
	})
	if err != nil {
		t.Fatalf("CreateRawIngestion: %v", err)
	}
	if raw.ProcessingStatus != model.StatusReceived {
		t.Fatalf("CreateRawIngestion status: got %s", raw.ProcessingStatus)
	}
	if got, err := s.RawIngestions().FindRecentByHash(ctx, u.ID, raw.PayloadHash, 24*time.Hour); err != nil || got.ID != raw.ID {
		t.Fatalf("FindRecentByHash: got=%v err=%v", got, err)
	}
	if _, err := s.RawIngestions().FindRecentByHash(ctx, u.ID, "unknown-hash", 24*time.Hour); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("FindRecentByHash miss: want ErrNotFound, got %v", err)
	}

	// Status transitions are forward-only
	if err := s.RawIngestions().UpdateStatus(ctx, raw.ID, model.StatusProcessing, nil); err != nil {
		t.Fatalf("UpdateStatus processing: %v", err)
	}
	if err := s.RawIngestions().UpdateStatus(ctx, raw.ID, model.StatusProcessed, nil); err != nil {
		t.Fatalf("UpdateStatus processed: %v", err)
	}
	if err := s.RawIngestions().UpdateStatus(ctx, raw.ID, model.StatusReceived, nil); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("UpdateStatus regression: want ErrConflict, got %v", err)
	}
	if got, err := s.RawIngestions().Get(ctx, raw.ID); err != nil || got.ProcessedAt == nil {
		t.Fatalf("Get after processed: got=%v err=%v", got, err)
	}

	// Metric batches: insert, then re-insert the same keys
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	hr := func(offset int, bpm int16) model.MetricPayload {
		return &model.HeartRateMetric{RecordedAt: base.Add(time.Duration(offset) * time.Minute), HeartRate: &bpm}
	}
	rows := []model.MetricPayload{hr(0, 70), hr(1, 72), hr(2, 74)}
	if n, err := s.Metrics().InsertBatch(ctx, u.ID, model.MetricHeartRate, rows); err != nil || n != 3 {
		t.Fatalf("InsertBatch: n=%d err=%v", n, err)
	}
	// Conflicting timestamps must not error; coalescing keeps the batch idempotent.
	if _, err := s.Metrics().InsertBatch(ctx, u.ID, model.MetricHeartRate, rows); err != nil {
		t.Fatalf("InsertBatch conflict: %v", err)
	}

	wk := &model.Workout{
		WorkoutType: "running",
		StartedAt:   base,
		EndedAt:     base.Add(40 * time.Minute),
	}
	if n, err := s.Metrics().InsertBatch(ctx, u.ID, model.MetricWorkout, []model.MetricPayload{wk}); err != nil || n != 1 {
		t.Fatalf("InsertBatch workout: n=%d err=%v", n, err)
	}

	// Queries
	series, err := s.Queries().HeartRateSeries(ctx, u.ID, base.Add(-time.Minute), base.Add(time.Hour), 10)
	if err != nil || len(series) != 3 {
		t.Fatalf("HeartRateSeries: n=%d err=%v", len(series), err)
	}
	sum, err := s.Queries().Summary(ctx, u.ID, base.Add(-time.Minute), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.HeartRateCount != 3 || sum.WorkoutCount != 1 || sum.TotalWorkoutMinutes != 40 {
		t.Fatalf("Summary counts: %+v", sum)
	}

	// Deactivation removes the credential from the active set
	if err := s.Credentials().Deactivate(ctx, cred.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if got, err := s.Credentials().GetByID(ctx, cred.ID); err != nil || got.IsActive {
		t.Fatalf("GetCredential after deactivate: got=%v err=%v", got, err)
	}
}
