// Package respond writes the service's JSON envelope.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vitalsd/vitalsd/internal/model"
)

// Error discriminants surfaced in the `error` field. Machine-readable;
// the free-text message rides alongside.
const (
	ErrEmptyPayload    = "EmptyPayload"
	ErrDuplicate       = "Duplicate"
	ErrMalformed       = "Malformed"
	ErrUnauthorized    = "Unauthorized"
	ErrForbidden       = "Forbidden"
	ErrPayloadTooLarge = "PayloadTooLarge"
	ErrRateLimited     = "RateLimited"
	ErrQueueFull       = "QueueFull"
	ErrValidation      = "Validation"
	ErrInternal        = "Internal"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteOK wraps data in a success envelope with status 200.
func WriteOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, model.OK(data))
}

// WriteError writes a failed envelope with a discriminant and message.
func WriteError(w http.ResponseWriter, statusCode int, errCode, message string) {
	WriteJSON(w, statusCode, model.APIResponse{
		Success: false,
		Error:   errCode,
		Message: message,
	})
}

// WriteInternalError writes a 500 without leaking internals.
func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, ErrInternal, "internal server error")
}
