package api

import (
	"net/http"
	"time"

	"github.com/vitalsd/vitalsd/internal/api/respond"
)

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	isReady func() bool
}

// NewHealthHandler creates a health handler backed by the service health
// aggregate; a nil function reports always-ready.
func NewHealthHandler(isReady func() bool) *HealthHandler {
	if isReady == nil {
		isReady = func() bool { return true }
	}
	return &HealthHandler{isReady: isReady}
}

// CheckHealth handles GET /health.
// Always returns 200; body reports healthy/unhealthy. 500 indicates handler failure only.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "unhealthy"
	if h.isReady() {
		status = "healthy"
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// CheckLive handles GET /health/live. The process answering is the check.
func (h *HealthHandler) CheckLive(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, map[string]any{"status": "alive"})
}

// CheckReady handles GET /health/ready; 503 until every dependency probe
// passes.
func (h *HealthHandler) CheckReady(w http.ResponseWriter, r *http.Request) {
	if !h.isReady() {
		respond.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready"})
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
