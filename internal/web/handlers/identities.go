package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/faceauth/internal/database"
	"github.com/kozaktomas/faceauth/internal/facematch"
	"github.com/kozaktomas/faceauth/internal/recognizer"
)

// IdentitiesHandler serves enrollment administration.
type IdentitiesHandler struct {
	rec    *recognizer.Recognizer
	logger *slog.Logger
}

// NewIdentitiesHandler creates a new identities handler
func NewIdentitiesHandler(rec *recognizer.Recognizer, logger *slog.Logger) *IdentitiesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentitiesHandler{rec: rec, logger: logger}
}

// identityParam resolves the {identity} URL parameter against the store.
func (h *IdentitiesHandler) identityParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := h.rec.ResolveIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// List returns identities with their reference counts.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	identities := h.rec.Identities()
	total := 0
	for _, s := range identities {
		total += s.References
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"identities": identities,
		"count":      len(identities),
		"references": total,
	})
}

// AddEmbedding stores a captured embedding, creating the identity when new.
func (h *IdentitiesHandler) AddEmbedding(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identityParam(w, r)
	if !ok {
		return
	}
	req, ok := decodeEmbeddingRequest(w, r)
	if !ok {
		return
	}

	location, err := h.rec.Append(r.Context(), id, facematch.Embedding(req.Embedding))
	if err != nil {
		respondFailure(w, h.logger, err)
		return
	}
	h.logger.Info("embedding captured", "identity", sanitizeForLog(id))
	respondJSON(w, http.StatusCreated, map[string]any{
		"identity":   id,
		"location":   location,
		"references": h.rec.Store().Snapshot().Count(id),
	})
}

// Enrollment runs the enrollment policy for an already matched identity.
func (h *IdentitiesHandler) Enrollment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identityParam(w, r)
	if !ok {
		return
	}
	req, ok := decodeEmbeddingRequest(w, r)
	if !ok {
		return
	}
	if !h.rec.Has(id) {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}

	d, err := h.rec.ConsiderEnrollment(r.Context(), id, facematch.Embedding(req.Embedding))
	if err != nil {
		respondFailure(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// Remove deletes an identity and all of its references.
func (h *IdentitiesHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identityParam(w, r)
	if !ok {
		return
	}

	if err := h.rec.Remove(r.Context(), id); err != nil {
		respondFailure(w, h.logger, err)
		return
	}
	h.logger.Info("identity removed", "identity", sanitizeForLog(id))
	w.WriteHeader(http.StatusNoContent)
}

// Reload re-reads the store after out-of-band changes.
func (h *IdentitiesHandler) Reload(w http.ResponseWriter, r *http.Request) {
	g, issues, err := h.rec.Reload(r.Context())
	if err != nil {
		respondFailure(w, h.logger, err)
		return
	}
	if issues == nil {
		issues = []database.LoadIssue{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"identities": g.Len(),
		"references": g.Total(),
		"issues":     issues,
	})
}
