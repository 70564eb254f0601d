package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"storefront-checkout/internal/model"
)

// handlePurgeRegions drops the region cache so the next lookup refetches.
// Requires "Authorization: Bearer <admin token>"; 404 when no token is configured.
// POST /admin/regions/purge
func (h *Handler) handlePurgeRegions(w http.ResponseWriter, r *http.Request) {
	if h.cfg.AdminToken == "" || h.regions == nil {
		h.writeError(w, model.NewNotFoundError("route"))
		return
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.AdminToken)) != 1 {
		h.writeError(w, model.NewUnauthorizedError("invalid admin token"))
		return
	}

	h.regions.Purge()
	h.logger.InfoContext(r.Context(), "region cache purged")

	h.writeJSON(w, http.StatusOK, statusResponse{Status: "purged"})
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

type statusResponse struct {
	Status string `json:"status"`
}
