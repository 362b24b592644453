// Blackbox invariant checks against a running service. These use only the
// customer-facing API and must hold for every deployment; never weaken one to
// make an incremental change pass.
package invariants

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsd/vitalsd/internal/model"
)

// InvariantChecker tests system invariants using customer-facing APIs.
// This is a blackbox test that treats the service as an external system.
type InvariantChecker struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewInvariantChecker creates a new invariant checker.
func NewInvariantChecker(baseURL, token string) *InvariantChecker {
	return &InvariantChecker{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RunAll executes every invariant check in order.
func (ic *InvariantChecker) RunAll(t *testing.T) {
	t.Run("NoFalseSuccess", ic.TestNoFalseSuccessInvariant)
	t.Run("AsyncAcceptanceContract", ic.TestAsyncAcceptanceInvariant)
	t.Run("DuplicateRejection", ic.TestDuplicateRejectionInvariant)
	t.Run("EmptyPayloadRejection", ic.TestEmptyPayloadInvariant)
	t.Run("RateHeadersPresent", ic.TestRateHeaderInvariant)
}

// INVARIANT: success==true implies processed_count > 0, failed_count == 0,
// and an empty errors list.
func (ic *InvariantChecker) TestNoFalseSuccessInvariant(t *testing.T) {
	body := ic.heartRatePayload(3, 75)
	resp, raw := ic.ingest(t, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out model.IngestResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	if out.Success {
		assert.Greater(t, out.ProcessedCount, 0, "success must mean rows were written")
		assert.Zero(t, out.FailedCount, "success must mean no failures")
		assert.Empty(t, out.Errors, "success must mean no error entries")
	}
}

// INVARIANT: a 202 acceptance reports zero counts and the
// accepted_for_processing status; counts are never anticipated.
func (ic *InvariantChecker) TestAsyncAcceptanceInvariant(t *testing.T) {
	// Large enough to cross any sane async threshold.
	body := ic.heartRatePayload(200000, 70)
	resp, raw := ic.ingest(t, body)
	if resp.StatusCode != http.StatusAccepted {
		t.Skipf("payload not routed async (status %d), raise the size or lower ASYNC_THRESHOLD_BYTES", resp.StatusCode)
	}

	var out model.IngestResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.False(t, out.Success)
	assert.Zero(t, out.ProcessedCount)
	assert.Zero(t, out.FailedCount)
	assert.Equal(t, model.StatusAcceptedForProcessing, out.ProcessingStatus)
	assert.NotEmpty(t, out.RawIngestionID)
}

// INVARIANT: resubmitting identical bytes within the window returns 400 with
// the original raw_ingestion_id.
func (ic *InvariantChecker) TestDuplicateRejectionInvariant(t *testing.T) {
	body := ic.heartRatePayload(1, 80)

	first, raw := ic.ingest(t, body)
	require.Equal(t, http.StatusOK, first.StatusCode)
	var out model.IngestResponse
	require.NoError(t, json.Unmarshal(raw, &out))

	second, raw2 := ic.ingest(t, body)
	require.Equal(t, http.StatusBadRequest, second.StatusCode)
	var env model.APIResponse
	require.NoError(t, json.Unmarshal(raw2, &env))
	assert.Equal(t, "Duplicate", env.Error)
	assert.Contains(t, env.Message, out.RawIngestionID, "duplicate must reference the original ingestion")
}

// INVARIANT: empty payloads never create a raw ingestion.
func (ic *InvariantChecker) TestEmptyPayloadInvariant(t *testing.T) {
	resp, raw := ic.ingest(t, []byte(`{"data":{"metrics":[],"workouts":[]}}`))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var env model.APIResponse
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "EmptyPayload", env.Error)
}

// INVARIANT: every authenticated response carries the X-RateLimit headers.
func (ic *InvariantChecker) TestRateHeaderInvariant(t *testing.T) {
	resp, _ := ic.ingest(t, ic.heartRatePayload(1, 72))
	for _, h := range []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"} {
		assert.NotEmpty(t, resp.Header.Get(h), "missing %s", h)
	}
}

func (ic *InvariantChecker) heartRatePayload(n, bpm int) []byte {
	base := time.Now().UTC()
	var buf bytes.Buffer
	buf.WriteString(`{"data":{"metrics":[`)
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, `{"type":"HeartRate","recorded_at":%q,"heart_rate":%d}`,
			base.Add(time.Duration(i)*time.Millisecond).Format(time.RFC3339Nano), bpm)
	}
	buf.WriteString(`]}}`)
	return buf.Bytes()
}

func (ic *InvariantChecker) ingest(t *testing.T, body []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ic.baseURL+"/v1/ingest", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ic.token)

	resp, err := ic.client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}
