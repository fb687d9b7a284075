package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/telhawk-systems/flowhawk/common/httputil"
	"github.com/telhawk-systems/flowhawk/internal/service"
)

// multipartMemory is the part of an upload buffered in memory; the rest
// spills to temporary files.
const multipartMemory = 32 << 20

// UploadDataset handles POST /api/v1/datasets (multipart field "file").
func (h *Handler) UploadDataset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeServiceError(w, r, service.ErrUploadTooLarge)
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "expected a multipart form with a file field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	res, err := h.datasets.Upload(r.Context(), header.Filename, file)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// ListDatasets handles GET /api/v1/datasets
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	list, err := h.datasets.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"datasets": list,
		"total":    len(list),
	})
}

// PreviewDataset handles GET /api/v1/datasets/preview?dataset_id=&use_default=
func (h *Handler) PreviewDataset(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.datasets.Preview(r.Context(), q.Get("dataset_id"), parseBool(q.Get("use_default")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// SimulateDataset handles POST /api/v1/datasets/simulate
func (h *Handler) SimulateDataset(w http.ResponseWriter, r *http.Request) {
	var req service.SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.datasets.Simulate(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// DeleteDataset handles DELETE /api/v1/datasets/{id}
func (h *Handler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.datasets.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
