package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalsd/vitalsd/internal/api/respond"
	"github.com/vitalsd/vitalsd/internal/cache"
	"github.com/vitalsd/vitalsd/internal/ingest"
	"github.com/vitalsd/vitalsd/internal/logger"
)

// StatusHandler serves GET /api/v1/status with runtime counters.
type StatusHandler struct {
	cache   *cache.Cache
	queue   *ingest.Queue
	started time.Time
}

// NewStatusHandler creates the status handler.
func NewStatusHandler(c *cache.Cache, q *ingest.Queue) *StatusHandler {
	return &StatusHandler{cache: c, queue: q, started: time.Now()}
}

// Status handles GET /api/v1/status.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	respond.WriteOK(w, map[string]any{
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"cache":          h.cache.Stats(),
		"ingest_queue":   h.queue.Stats(),
	})
}

// AdminHandler serves the admin surface. Every route requires the admin scope.
type AdminHandler struct {
	levels *logger.LevelHandle
	log    zerolog.Logger
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(levels *logger.LevelHandle, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{levels: levels, log: log}
}

type logLevelRequest struct {
	Level string `json:"level"`
}

// SetLogLevel handles PUT /api/v1/admin/logging/level.
func (h *AdminHandler) SetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req logLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Level == "" {
		respond.WriteError(w, http.StatusBadRequest, respond.ErrMalformed, "body must be {\"level\":\"<zerolog level>\"}")
		return
	}
	if err := h.levels.Set(req.Level); err != nil {
		respond.WriteError(w, http.StatusBadRequest, respond.ErrValidation, err.Error())
		return
	}
	h.log.Info().Str("level", h.levels.Current()).Msg("log level changed")
	respond.WriteOK(w, map[string]string{"level": h.levels.Current()})
}
