// Package storetest provides an in-memory store.Store for unit tests and a
// compliance suite real drivers can run against.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vitalsd/vitalsd/internal/model"
	"github.com/vitalsd/vitalsd/internal/store"
)

// InsertedChunk records one InsertBatch call against the fake.
type InsertedChunk struct {
	UserID  string
	Variant model.MetricType
	Rows    []model.MetricPayload
}

// Fake is an in-memory store.Store. Safe for concurrent use.
type Fake struct {
	mu    sync.Mutex
	users map[string]*model.User
	creds map[string]*model.Credential
	raws  map[string]*model.RawIngestion

	chunks []InsertedChunk

	// InsertErr, when set, is consulted before every InsertBatch. Returning
	// a non-nil error fails the call; tests use it to script transient
	// failures.
	InsertErr func(variant model.MetricType, attempt int) error

	attempts map[model.MetricType]int
}

// NewFake returns an empty in-memory store.
func NewFake() *Fake {
	return &Fake{
		users:    make(map[string]*model.User),
		creds:    make(map[string]*model.Credential),
		raws:     make(map[string]*model.RawIngestion),
		attempts: make(map[model.MetricType]int),
	}
}

func (f *Fake) Users() store.Users                 { return (*fakeUsers)(f) }
func (f *Fake) Credentials() store.Credentials     { return (*fakeCreds)(f) }
func (f *Fake) RawIngestions() store.RawIngestions { return (*fakeRaws)(f) }
func (f *Fake) Metrics() store.Metrics             { return (*fakeMetrics)(f) }
func (f *Fake) Queries() store.Queries             { return (*fakeQueries)(f) }

// Chunks returns a copy of every recorded InsertBatch call.
func (f *Fake) Chunks() []InsertedChunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]InsertedChunk, len(f.chunks))
	copy(out, f.chunks)
	return out
}

// RowCount returns the total rows inserted across all chunks.
func (f *Fake) RowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.chunks {
		n += len(c.Rows)
	}
	return n
}

// --- Users ---
type fakeUsers Fake

func (f *fakeUsers) Create(_ context.Context, u *model.User) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := *u
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	out.IsActive = true
	out.CreatedAt = time.Now().UTC()
	out.UpdatedAt = out.CreatedAt
	f.users[out.ID] = &out
	return &out, nil
}

func (f *fakeUsers) Get(_ context.Context, userID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

// SetUserActive flips a user's active flag; test helper.
func (f *Fake) SetUserActive(userID string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		u.IsActive = active
	}
}

// --- Credentials ---
type fakeCreds Fake

func (f *fakeCreds) Create(_ context.Context, c *model.Credential) (*model.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := *c
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	out.IsActive = true
	out.CreatedAt = time.Now().UTC()
	f.creds[out.ID] = &out
	return &out, nil
}

func (f *fakeCreds) GetByID(_ context.Context, id string) (*model.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCreds) ListActive(_ context.Context) ([]*model.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var out []*model.Credential
	for _, c := range f.creds {
		if c.IsActive && !c.Expired(now) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeCreds) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[id]
	if !ok {
		return model.ErrNotFound
	}
	c.LastUsedAt = &at
	return nil
}

func (f *fakeCreds) Deactivate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[id]
	if !ok {
		return model.ErrNotFound
	}
	c.IsActive = false
	return nil
}

// --- Raw ingestions ---
type fakeRaws Fake

func (f *fakeRaws) Create(_ context.Context, r *model.RawIngestion) (*model.RawIngestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := *r
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.ProcessingStatus == "" {
		out.ProcessingStatus = model.StatusReceived
	}
	out.ReceivedAt = time.Now().UTC()
	f.raws[out.ID] = &out
	return &out, nil
}

func (f *fakeRaws) Get(_ context.Context, id string) (*model.RawIngestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.raws[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRaws) FindRecentByHash(_ context.Context, userID, hash string, window time.Duration) (*model.RawIngestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var newest *model.RawIngestion
	cutoff := time.Now().Add(-window)
	for _, r := range f.raws {
		if r.UserID == userID && r.PayloadHash == hash && r.ReceivedAt.After(cutoff) {
			if newest == nil || r.ReceivedAt.After(newest.ReceivedAt) {
				newest = r
			}
		}
	}
	if newest == nil {
		return nil, model.ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (f *fakeRaws) UpdateStatus(_ context.Context, id, status string, processingErrors *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.raws[id]
	if !ok {
		return model.ErrNotFound
	}
	if !model.StatusAdvances(r.ProcessingStatus, status) {
		return model.ErrConflict
	}
	r.ProcessingStatus = status
	if processingErrors != nil {
		r.ProcessingErrors = processingErrors
	}
	if status == model.StatusProcessed || status == model.StatusPartialSuccess || status == model.StatusError {
		now := time.Now().UTC()
		r.ProcessedAt = &now
	}
	return nil
}

// --- Metrics ---
type fakeMetrics Fake

func (f *fakeMetrics) InsertBatch(_ context.Context, userID string, variant model.MetricType, rows []model.MetricPayload) (int64, error) {
	f.mu.Lock()
	f.attempts[variant]++
	attempt := f.attempts[variant]
	hook := f.InsertErr
	f.mu.Unlock()

	if hook != nil {
		if err := hook(variant, attempt); err != nil {
			return 0, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, InsertedChunk{UserID: userID, Variant: variant, Rows: rows})
	return int64(len(rows)), nil
}

// --- Queries ---
type fakeQueries Fake

func (f *fakeQueries) HeartRateSeries(_ context.Context, userID string, from, to time.Time, limit int) ([]*model.HeartRateMetric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.HeartRateMetric
	for _, c := range f.chunks {
		if c.UserID != userID || c.Variant != model.MetricHeartRate {
			continue
		}
		for _, r := range c.Rows {
			hr := r.(*model.HeartRateMetric)
			if !hr.RecordedAt.Before(from) && hr.RecordedAt.Before(to) {
				cp := *hr
				out = append(out, &cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeQueries) Summary(_ context.Context, userID string, from, to time.Time) (*model.HealthSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &model.HealthSummary{UserID: userID, From: from, To: to}
	for _, c := range f.chunks {
		if c.UserID != userID {
			continue
		}
		for _, r := range c.Rows {
			ts := r.Timestamp()
			if ts.Before(from) || !ts.Before(to) {
				continue
			}
			switch m := r.(type) {
			case *model.HeartRateMetric:
				out.HeartRateCount++
			case *model.SleepMetric:
				out.SleepSessionCount++
				out.TotalSleepMinutes += int64(m.DurationMinutes)
			case *model.ActivityMetric:
				out.ActivityDayCount++
				if m.StepCount != nil {
					out.TotalSteps += int64(*m.StepCount)
				}
			case *model.Workout:
				out.WorkoutCount++
				out.TotalWorkoutMinutes += m.DurationMinutes()
			}
		}
	}
	return out, nil
}
