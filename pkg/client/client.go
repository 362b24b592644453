// Package client is the Go client for the vitalsd HTTP API, written for
// exporters that push metric batches and poll their results.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vitalsd/vitalsd/internal/model"
)

// Client talks to one vitalsd deployment with one credential.
type Client struct {
	http *resty.Client
}

// Option mutates the underlying resty client during New.
type Option func(*resty.Client)

// WithTimeout overrides the default 2 minute request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// New creates a client. The token may be an opaque vsd_ token or a legacy
// credential id.
func New(baseURL, token string, opts ...Option) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(token).
		SetTimeout(2 * time.Minute)
	for _, opt := range opts {
		opt(c)
	}
	return &Client{http: c}
}

// APIError is a non-2xx response decoded from the service envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vitalsd: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsRateLimited reports whether the request should be retried after a delay.
func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

func apiError(resp *resty.Response) error {
	var env model.APIResponse
	_ = json.Unmarshal(resp.Body(), &env)
	return &APIError{
		StatusCode: resp.StatusCode(),
		Code:       env.Error,
		Message:    env.Message,
		RetryAfter: resp.Header().Get("Retry-After"),
	}
}

// IngestResult is the ingest response plus whether it was queued.
type IngestResult struct {
	model.IngestResponse
	Async bool
}

// Ingest submits a payload. Both the canonical and legacy body shapes are
// accepted by the server; the client sends whatever bytes it is given when
// raw is used, or marshals the typed payload otherwise.
func (c *Client) Ingest(ctx context.Context, payload *model.IngestPayload) (*IngestResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return c.IngestRaw(ctx, body)
}

// IngestRaw submits pre-serialized payload bytes.
func (c *Client) IngestRaw(ctx context.Context, body []byte) (*IngestResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/v1/ingest")
	if err != nil {
		return nil, fmt.Errorf("ingest request: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusAccepted:
	default:
		return nil, apiError(resp)
	}

	var out IngestResult
	if err := json.Unmarshal(resp.Body(), &out.IngestResponse); err != nil {
		return nil, fmt.Errorf("decode ingest response: %w", err)
	}
	out.Async = resp.StatusCode() == http.StatusAccepted
	return &out, nil
}

// HeartRateSeries fetches heart-rate points for the window. Zero times use
// the server default lookback; limit 0 uses the server default.
func (c *Client) HeartRateSeries(ctx context.Context, from, to time.Time, limit int) (json.RawMessage, error) {
	req := c.http.R().SetContext(ctx)
	if !from.IsZero() {
		req.SetQueryParam("from", from.Format(time.RFC3339))
	}
	if !to.IsZero() {
		req.SetQueryParam("to", to.Format(time.RFC3339))
	}
	if limit > 0 {
		req.SetQueryParam("limit", fmt.Sprintf("%d", limit))
	}
	return c.getData(req, "/api/v1/query/heart-rate")
}

// Summary fetches the aggregate summary for the window.
func (c *Client) Summary(ctx context.Context, from, to time.Time) (json.RawMessage, error) {
	req := c.http.R().SetContext(ctx)
	if !from.IsZero() {
		req.SetQueryParam("from", from.Format(time.RFC3339))
	}
	if !to.IsZero() {
		req.SetQueryParam("to", to.Format(time.RFC3339))
	}
	return c.getData(req, "/api/v1/query/summary")
}

// ServiceStatus fetches the unauthenticated runtime status.
func (c *Client) ServiceStatus(ctx context.Context) (json.RawMessage, error) {
	return c.getData(c.http.R().SetContext(ctx), "/api/v1/status")
}

// Healthy reports whether the readiness endpoint answers 200.
func (c *Client) Healthy(ctx context.Context) bool {
	resp, err := c.http.R().SetContext(ctx).Get("/health/ready")
	return err == nil && resp.StatusCode() == http.StatusOK
}

func (c *Client) getData(req *resty.Request, path string) (json.RawMessage, error) {
	resp, err := req.Get(path)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError(resp)
	}
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	if !env.Success {
		return nil, &APIError{StatusCode: resp.StatusCode(), Code: env.Error, Message: env.Message}
	}
	return env.Data, nil
}
