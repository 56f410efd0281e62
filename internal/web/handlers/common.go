package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/faceauth/internal/constants"
	"github.com/kozaktomas/faceauth/internal/database"
	"github.com/kozaktomas/faceauth/internal/facematch"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// errStorageUnavailable is shown for persistence failures, distinct from an
// Unknown match.
const errStorageUnavailable = "storage unavailable"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondFailure maps domain errors to status codes. Caller mistakes get
// their message back; storage failures are logged and reported generically.
func respondFailure(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, facematch.ErrEmptyQuery),
		errors.Is(err, facematch.ErrInvalidQuery),
		errors.Is(err, facematch.ErrDimensionMismatch),
		errors.Is(err, facematch.ErrInvalidIdentity):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrIdentityNotFound):
		respondError(w, http.StatusNotFound, "identity not found")
	case errors.Is(err, database.ErrStorageUnavailable):
		logger.Error("storage failure", "error", err)
		respondError(w, http.StatusServiceUnavailable, errStorageUnavailable)
	default:
		logger.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// embeddingRequest is the body shared by the embedding endpoints.
type embeddingRequest struct {
	Embedding []float32 `json:"embedding"`
	K         int       `json:"k,omitempty"`
	Threshold *float64  `json:"threshold,omitempty"`
}

func decodeEmbeddingRequest(w http.ResponseWriter, r *http.Request) (embeddingRequest, bool) {
	var req embeddingRequest
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return req, false
	}
	return req, true
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
