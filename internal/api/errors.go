package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// apperror carries the HTTP status and the stable `detail` string the
// client-facing error contract promises — either a machine code
// (EMAIL_INVALID, UPLOAD_TOO_LARGE, ...) or, where the reference system
// behaves this way, a freeform human-readable message.
type apperror struct {
	status int
	detail string
}

func (e *apperror) Error() string { return e.detail }

func newAppError(status int, detail string) *apperror {
	return &apperror{status: status, detail: detail}
}

var (
	errAuthRequired    = newAppError(http.StatusUnauthorized, "AUTH_REQUIRED")
	errProjectNotFound = newAppError(http.StatusNotFound, "Project not found")
	errOverloaded      = newAppError(http.StatusServiceUnavailable, "OVERLOADED")
)

type errorBody struct {
	Detail string `json:"detail"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("api: failed to encode response body")
	}
}

func respondError(w http.ResponseWriter, err error) {
	if ae, ok := err.(*apperror); ok {
		respondJSON(w, ae.status, errorBody{Detail: ae.detail})
		return
	}
	log.Error().Err(err).Msg("api: unhandled error")
	respondJSON(w, http.StatusInternalServerError, errorBody{Detail: "internal error"})
}
