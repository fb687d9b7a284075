package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/telhawk-systems/flowhawk/common/httputil"
)

type syntheticRequest struct {
	Enabled    bool `json:"enabled"`
	RatePerMin int  `json:"rate_per_min"`
}

// SyntheticStatus handles GET /api/v1/synthetic
func (h *Handler) SyntheticStatus(w http.ResponseWriter, r *http.Request) {
	if h.synthetic == nil {
		httputil.WriteError(w, http.StatusNotFound, "synthetic generator not configured")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.synthetic.Status())
}

// ToggleSynthetic handles PUT /api/v1/synthetic
func (h *Handler) ToggleSynthetic(w http.ResponseWriter, r *http.Request) {
	if h.synthetic == nil {
		httputil.WriteError(w, http.StatusNotFound, "synthetic generator not configured")
		return
	}
	var req syntheticRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, err := h.synthetic.SetEnabled(r.Context(), req.Enabled, req.RatePerMin)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// DLQStats handles GET /api/v1/dlq
func (h *Handler) DLQStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.dlq.Stats())
}

// ListDLQ handles GET /api/v1/dlq/entries?limit=
func (h *Handler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	if h.dlq == nil {
		httputil.WriteError(w, http.StatusNotFound, "dead-letter queue not enabled")
		return
	}
	entries, err := h.dlq.List(r.Context(), parseInt(r.URL.Query().Get("limit"), 100))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// PurgeDLQ handles DELETE /api/v1/dlq
func (h *Handler) PurgeDLQ(w http.ResponseWriter, r *http.Request) {
	if h.dlq == nil {
		httputil.WriteError(w, http.StatusNotFound, "dead-letter queue not enabled")
		return
	}
	if err := h.dlq.Purge(r.Context()); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
