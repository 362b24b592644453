package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsd/vitalsd/internal/model"
)

func TestIngest_SyncResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ingest", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(model.IngestResponse{
			Success:          true,
			ProcessedCount:   3,
			ProcessingStatus: model.StatusProcessed,
			RawIngestionID:   "raw-1",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	bpm := int16(70)
	res, err := c.Ingest(context.Background(), &model.IngestPayload{
		Data: model.IngestData{Metrics: []model.Metric{{
			Type:    model.MetricHeartRate,
			Payload: &model.HeartRateMetric{RecordedAt: time.Now().UTC(), HeartRate: &bpm},
		}}},
	})
	require.NoError(t, err)
	assert.False(t, res.Async)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.ProcessedCount)
	assert.Equal(t, "raw-1", res.RawIngestionID)
}

func TestIngest_AsyncAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(model.IngestResponse{
			ProcessingStatus: model.StatusAcceptedForProcessing,
			RawIngestionID:   "raw-2",
		})
	}))
	defer srv.Close()

	res, err := New(srv.URL, "tok").IngestRaw(context.Background(), []byte(`{"data":{"metrics":[]}}`))
	require.NoError(t, err)
	assert.True(t, res.Async)
	assert.False(t, res.Success)
	assert.Zero(t, res.ProcessedCount)
	assert.Equal(t, model.StatusAcceptedForProcessing, res.ProcessingStatus)
}

func TestIngest_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(model.APIResponse{
			Success: false, Error: "RateLimited", Message: "rate limit exceeded",
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok").IngestRaw(context.Background(), []byte(`{}`))
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.True(t, apiErr.IsRateLimited())
	assert.Equal(t, "RateLimited", apiErr.Code)
	assert.Equal(t, "42", apiErr.RetryAfter)
}

func TestHeartRateSeries_UnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/query/heart-rate", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(model.OK(map[string]int{"count": 5}))
	}))
	defer srv.Close()

	data, err := New(srv.URL, "tok").HeartRateSeries(context.Background(), time.Time{}, time.Time{}, 5)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":5}`, string(data))
}

func TestHealthy(t *testing.T) {
	ready := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health/ready", r.URL.Path)
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	assert.True(t, c.Healthy(context.Background()))
	ready = false
	assert.False(t, c.Healthy(context.Background()))
}
