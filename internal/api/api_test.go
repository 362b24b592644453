package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsd/vitalsd/internal/auth"
	"github.com/vitalsd/vitalsd/internal/cache"
	"github.com/vitalsd/vitalsd/internal/config"
	"github.com/vitalsd/vitalsd/internal/ingest"
	"github.com/vitalsd/vitalsd/internal/legacy"
	"github.com/vitalsd/vitalsd/internal/logger"
	"github.com/vitalsd/vitalsd/internal/model"
	"github.com/vitalsd/vitalsd/internal/processor"
	"github.com/vitalsd/vitalsd/internal/query"
	"github.com/vitalsd/vitalsd/internal/ratelimit"
	"github.com/vitalsd/vitalsd/internal/store/storetest"
	"github.com/vitalsd/vitalsd/internal/validate"
)

type testEnv struct {
	fake   *storetest.Fake
	router http.Handler
	ready  bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := storetest.NewFake()
	limiter := ratelimit.New(ratelimit.NewMemoryBackend(), 1000, 100)
	a := auth.New(fake, limiter, nil, zerolog.Nop())

	vcfg := config.ValidationConfig{
		HeartRateMin: 15, HeartRateMax: 300,
		SystolicMin: 50, SystolicMax: 250,
		DiastolicMin: 30, DiastolicMax: 150,
		SleepDurationMinMinutes: 1, SleepDurationMaxMinutes: 1440,
		SleepEfficiencyMax: 100, SleepDurationToleranceMinutes: 60,
		StepsMaxPerDay: 200000, ActiveEnergyMaxKcal: 20000, DistanceMaxMeters: 500000,
		BodyWeightMinKg: 20, BodyWeightMaxKg: 500,
		BMIMin: 15, BMIMax: 50, BodyFatMinPct: 3, BodyFatMaxPct: 50,
		BodyTempMinC: 30, BodyTempMaxC: 45,
		BasalTempMinC: 35, BasalTempMaxC: 39,
		WristTempMinC: 30, WristTempMaxC: 45,
		GlucoseMinMgDl: 20, GlucoseMaxMgDl: 600, InsulinMaxUnits: 100,
		RespiratoryRateMin: 5, RespiratoryRateMax: 60,
		SpO2MinPct: 70, SpO2MaxPct: 100, AudioMaxDb: 140,
		WorkoutDurationMinMinutes: 1, WorkoutDurationMaxMinutes: 1440,
		CycleDayMin: 1, CycleDayMax: 45, LHMax: 100,
		FutureSkewSeconds: 300,
	}
	batchCfg := &config.BatchConfig{
		HeartRateChunkSize: 4000, BloodPressureChunkSize: 6000,
		SleepChunkSize: 4000, ActivityChunkSize: 2500,
		NutritionChunkSize: 2000, WorkoutChunkSize: 4000, DefaultChunkSize: 3000,
		MaxRetries: 1, InitialBackoffMS: 1, MaxBackoffMS: 2,
		MemoryLimitMB: 500, EnableParallel: false, MaxParallel: 1,
	}

	coord := ingest.New(fake,
		processor.New(fake.Metrics(), batchCfg, zerolog.Nop()),
		validate.NewLazy(validate.New(vcfg)),
		legacy.New(zerolog.Nop()),
		cache.NewDisabled(),
		ingest.Config{AsyncThresholdBytes: 10 << 20, MaxPayloadBytes: 100 << 20},
		4, zerolog.Nop())

	levels, err := logger.NewLevelHandle("info")
	require.NoError(t, err)

	env := &testEnv{fake: fake, ready: true}
	env.router = NewRouter(Deps{
		Auth:            a,
		Coordinator:     coord,
		Query:           query.New(fake.Queries(), nil, zerolog.Nop()),
		Cache:           cache.NewDisabled(),
		Levels:          levels,
		IsReady:         func() bool { return env.ready },
		MaxPayloadBytes: 100 << 20,
		Log:             zerolog.Nop(),
	})
	return env
}

// seedCredential creates a user plus credential and returns the credential id,
// which doubles as a legacy-format bearer token.
func (e *testEnv) seedCredential(t *testing.T, scopes ...string) (userID, token string) {
	t.Helper()
	u, err := e.fake.Users().Create(context.Background(), &model.User{Email: "u@example.com"})
	require.NoError(t, err)
	c, err := e.fake.Credentials().Create(context.Background(), &model.Credential{
		UserID: u.ID,
		Scopes: scopes,
	})
	require.NoError(t, err)
	return u.ID, c.ID
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func ingestBody(n int) string {
	base := time.Now().UTC().Add(-time.Hour)
	var sb strings.Builder
	sb.WriteString(`{"data":{"metrics":[`)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"type":"HeartRate","recorded_at":%q,"heart_rate":%d}`,
			base.Add(time.Duration(i)*time.Second).Format(time.RFC3339), 60+i%40)
	}
	sb.WriteString(`]}}`)
	return sb.String()
}

func TestRouter_IngestRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/v1/ingest", "", ingestBody(1))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Unauthorized")
}

func TestRouter_IngestSuccess(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedCredential(t, auth.ScopeWriteHealth)

	rr := env.do(t, http.MethodPost, "/v1/ingest", token, ingestBody(3))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp model.IngestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.ProcessedCount)
	assert.Equal(t, model.StatusProcessed, resp.ProcessingStatus)

	// Rate headers ride on authenticated responses.
	assert.Equal(t, "1000", rr.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Reset"))
}

func TestRouter_IngestScopeEnforced(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedCredential(t, auth.ScopeReadHealth)

	rr := env.do(t, http.MethodPost, "/v1/ingest", token, ingestBody(1))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "Forbidden")
}

func TestRouter_IngestEmptyPayload(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedCredential(t, auth.ScopeWriteHealth)

	rr := env.do(t, http.MethodPost, "/v1/ingest", token, `{"data":{"metrics":[]}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "EmptyPayload")
}

func TestRouter_IngestDuplicate(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedCredential(t, auth.ScopeWriteHealth)
	body := ingestBody(2)

	first := env.do(t, http.MethodPost, "/v1/ingest", token, body)
	require.Equal(t, http.StatusOK, first.Code)
	var resp model.IngestResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &resp))

	second := env.do(t, http.MethodPost, "/v1/ingest", token, body)
	assert.Equal(t, http.StatusBadRequest, second.Code)
	assert.Contains(t, second.Body.String(), "Duplicate")
	assert.Contains(t, second.Body.String(), resp.RawIngestionID)
}

func TestRouter_RateLimitOverride(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.fake.Users().Create(context.Background(), &model.User{Email: "rl@example.com"})
	require.NoError(t, err)
	limit := 2
	c, err := env.fake.Credentials().Create(context.Background(), &model.Credential{
		UserID:         u.ID,
		Scopes:         []string{auth.ScopeWriteHealth},
		RateLimitPerHr: &limit,
	})
	require.NoError(t, err)

	env.do(t, http.MethodPost, "/v1/ingest", c.ID, ingestBody(1))
	env.do(t, http.MethodPost, "/v1/ingest", c.ID, `{"data":{"metrics":[]}}`)

	rr := env.do(t, http.MethodPost, "/v1/ingest", c.ID, ingestBody(2))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestRouter_HealthEndpointsOpen(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/live", "", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/ready", "", "").Code)

	env.ready = false
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/health/ready", "", "").Code)
	// Liveness is about the process, not its dependencies.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/live", "", "").Code)
}

func TestRouter_StatusEndpointOpen(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/v1/status", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ingest_queue")
	assert.Contains(t, rr.Body.String(), "cache")
}

func TestRouter_QueryHeartRate(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedCredential(t, auth.ScopeWriteHealth, auth.ScopeReadHealth)

	rr := env.do(t, http.MethodPost, "/v1/ingest", token, ingestBody(5))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/query/heart-rate", token, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var env2 struct {
		Success bool `json:"success"`
		Data    struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env2))
	assert.True(t, env2.Success)
	assert.Equal(t, 5, env2.Data.Count)
}

func TestRouter_QueryRejectsBadWindow(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedCredential(t, auth.ScopeReadHealth)

	rr := env.do(t, http.MethodGet, "/api/v1/query/summary?from=garbage", token, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_AdminLogLevel(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.seedCredential(t, auth.ScopeAdmin)
	_, plainToken := env.seedCredential(t, auth.ScopeWriteHealth)

	rr := env.do(t, http.MethodPut, "/api/v1/admin/logging/level", plainToken, `{"level":"debug"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodPut, "/api/v1/admin/logging/level", adminToken, `{"level":"debug"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "debug")

	rr = env.do(t, http.MethodPut, "/api/v1/admin/logging/level", adminToken, `{"level":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_WildcardScope(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedCredential(t, "*")

	rr := env.do(t, http.MethodPost, "/v1/ingest", token, ingestBody(1))
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}
