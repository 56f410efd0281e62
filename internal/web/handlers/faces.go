package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/faceauth/internal/facematch"
	"github.com/kozaktomas/faceauth/internal/recognizer"
)

// FacesHandler serves login, match and suggestion requests.
type FacesHandler struct {
	rec    *recognizer.Recognizer
	logger *slog.Logger
}

// NewFacesHandler creates a new faces handler
func NewFacesHandler(rec *recognizer.Recognizer, logger *slog.Logger) *FacesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FacesHandler{rec: rec, logger: logger}
}

// Login authenticates a face embedding and, on success, considers it for
// enrollment. Unknown faces get suggestions.
func (h *FacesHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEmbeddingRequest(w, r)
	if !ok {
		return
	}

	res, err := h.rec.Login(r.Context(), facematch.Embedding(req.Embedding))
	if err != nil {
		respondFailure(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Match returns the best identity or Unknown.
func (h *FacesHandler) Match(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEmbeddingRequest(w, r)
	if !ok {
		return
	}

	threshold := h.rec.Threshold()
	if req.Threshold != nil {
		if *req.Threshold <= 0 {
			respondError(w, http.StatusBadRequest, "threshold must be positive")
			return
		}
		threshold = *req.Threshold
	}

	res, err := h.rec.MatchWithThreshold(facematch.Embedding(req.Embedding), threshold)
	if err != nil {
		respondFailure(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Suggestions ranks the closest identities for manual disambiguation.
func (h *FacesHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEmbeddingRequest(w, r)
	if !ok {
		return
	}
	if req.K < 0 {
		respondError(w, http.StatusBadRequest, "k must not be negative")
		return
	}

	ids, err := h.rec.RankSuggestions(facematch.Embedding(req.Embedding), req.K)
	if err != nil {
		respondFailure(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"suggestions": ids})
}
