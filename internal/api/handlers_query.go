package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalsd/vitalsd/internal/api/respond"
	"github.com/vitalsd/vitalsd/internal/auth"
	"github.com/vitalsd/vitalsd/internal/model"
	"github.com/vitalsd/vitalsd/internal/query"
)

// Default lookbacks when the caller gives no window.
const (
	heartRateLookback = 24 * time.Hour
	summaryLookback   = 7 * 24 * time.Hour
)

// QueryHandler serves the per-user read endpoints.
type QueryHandler struct {
	svc *query.Service
	log zerolog.Logger
}

// NewQueryHandler creates the query handler.
func NewQueryHandler(svc *query.Service, log zerolog.Logger) *QueryHandler {
	return &QueryHandler{svc: svc, log: log}
}

// HeartRateSeries handles GET /api/v1/query/heart-rate.
func (h *QueryHandler) HeartRateSeries(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		respond.WriteError(w, http.StatusUnauthorized, respond.ErrUnauthorized, "authentication required")
		return
	}

	q := r.URL.Query()
	from, to, err := query.ParseWindow(q.Get("from"), q.Get("to"), heartRateLookback, time.Now().UTC())
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, respond.ErrValidation, err.Error())
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respond.WriteError(w, http.StatusBadRequest, respond.ErrValidation, "invalid `limit`")
			return
		}
	}

	res, err := h.svc.HeartRateSeries(r.Context(), p.UserID, from, to, limit)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			respond.WriteError(w, http.StatusBadRequest, respond.ErrValidation, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("heart rate query failed")
		respond.WriteInternalError(w)
		return
	}
	respond.WriteOK(w, res)
}

// Summary handles GET /api/v1/query/summary.
func (h *QueryHandler) Summary(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		respond.WriteError(w, http.StatusUnauthorized, respond.ErrUnauthorized, "authentication required")
		return
	}

	q := r.URL.Query()
	from, to, err := query.ParseWindow(q.Get("from"), q.Get("to"), summaryLookback, time.Now().UTC())
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, respond.ErrValidation, err.Error())
		return
	}

	res, err := h.svc.Summary(r.Context(), p.UserID, from, to)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			respond.WriteError(w, http.StatusBadRequest, respond.ErrValidation, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("summary query failed")
		respond.WriteInternalError(w)
		return
	}
	respond.WriteOK(w, res)
}
