package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/dashboard"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Dashboard returns every dashboard dataset keyed by name.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if h.dashboard == nil {
		writeError(w, http.StatusServiceUnavailable, "dashboard not available")
		return
	}

	overview, err := h.dashboard.Overview(r.Context())
	if err != nil {
		slog.Error("failed to build dashboard", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// DashboardDataset returns one dashboard dataset.
func (h *Handler) DashboardDataset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "dataset")
	if h.dashboard == nil {
		writeError(w, http.StatusServiceUnavailable, "dashboard not available")
		return
	}

	data, err := h.dashboard.Dataset(r.Context(), name)
	if errors.Is(err, dashboard.ErrUnknownDataset) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":     "unknown dataset: " + name,
			"available": h.dashboard.Names(),
		})
		return
	}
	if err != nil {
		slog.Error("failed to build dashboard dataset", "dataset", name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build dataset")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// ListDatasets returns the training datasets.
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	datasets, err := h.repo.ListDatasets(r.Context())
	if err != nil {
		slog.Error("failed to list datasets", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list datasets")
		return
	}
	if datasets == nil {
		datasets = []*domain.Dataset{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"datasets": datasets,
	})
}

type preprocessRequest struct {
	Dataset string `json:"dataset" validate:"required"`
}

// PreprocessDataset queues a dataset for cleaning.
func (h *Handler) PreprocessDataset(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil || h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "preprocessing not available")
		return
	}

	var req preprocessRequest
	if err := h.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ds, err := worker.RequestPreprocess(r.Context(), h.repo, h.bus, req.Dataset)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "dataset not found")
		return
	case err != nil:
		slog.Error("failed to request preprocessing", "dataset", req.Dataset, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start preprocessing")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"message": "Preprocessing started for " + ds.Name,
		"dataset": ds,
	})
}
