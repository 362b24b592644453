package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/vitalsd/vitalsd/internal/api/respond"
	"github.com/vitalsd/vitalsd/internal/auth"
	"github.com/vitalsd/vitalsd/internal/ingest"
	"github.com/vitalsd/vitalsd/internal/model"
)

// IngestHandler serves POST /v1/ingest.
type IngestHandler struct {
	coord           *ingest.Coordinator
	maxPayloadBytes int64
	log             zerolog.Logger
}

// NewIngestHandler creates the ingest handler.
func NewIngestHandler(coord *ingest.Coordinator, maxPayloadBytes int64, log zerolog.Logger) *IngestHandler {
	return &IngestHandler{coord: coord, maxPayloadBytes: maxPayloadBytes, log: log}
}

type asyncBody struct {
	model.IngestResponse
	Message string `json:"message"`
}

// Ingest handles POST /v1/ingest.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		respond.WriteError(w, http.StatusUnauthorized, respond.ErrUnauthorized, "authentication required")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.WriteError(w, http.StatusRequestEntityTooLarge, respond.ErrPayloadTooLarge, "payload exceeds size cap")
			return
		}
		respond.WriteError(w, http.StatusBadRequest, respond.ErrMalformed, "could not read request body")
		return
	}

	resp, async, err := h.coord.Ingest(r.Context(), p.UserID, body, r.Header.Get("X-Ingest-Context"))
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	if async {
		respond.WriteJSON(w, http.StatusAccepted, asyncBody{
			IngestResponse: *resp,
			Message:        "payload accepted, processing is not yet complete",
		})
		return
	}
	respond.WriteJSON(w, http.StatusOK, resp)
}

func (h *IngestHandler) writeIngestError(w http.ResponseWriter, err error) {
	var dup *ingest.DuplicateError
	switch {
	case errors.As(err, &dup):
		respond.WriteError(w, http.StatusBadRequest, respond.ErrDuplicate,
			"duplicate payload, existing raw_ingestion_id "+dup.ExistingID)
	case errors.Is(err, ingest.ErrEmptyPayload):
		respond.WriteError(w, http.StatusBadRequest, respond.ErrEmptyPayload, "payload carries no metrics or workouts")
	case errors.Is(err, ingest.ErrPayloadTooLarge):
		respond.WriteError(w, http.StatusRequestEntityTooLarge, respond.ErrPayloadTooLarge, "payload exceeds size cap")
	case errors.Is(err, ingest.ErrQueueFull):
		w.Header().Set("Retry-After", "30")
		respond.WriteError(w, http.StatusServiceUnavailable, respond.ErrQueueFull, "ingest queue is full, retry later")
	case errors.Is(err, model.ErrValidation):
		respond.WriteError(w, http.StatusBadRequest, respond.ErrMalformed, err.Error())
	default:
		h.log.Error().Err(err).Msg("ingest failed")
		respond.WriteInternalError(w)
	}
}
