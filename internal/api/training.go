package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// ListTrainingJobs returns all training jobs, newest first.
func (h *Handler) ListTrainingJobs(w http.ResponseWriter, r *http.Request) {
	jobs, ok := h.trainingJobs(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs": jobs,
	})
}

// statusTimeout bounds the wait for a worker to answer a status request.
const statusTimeout = 2 * time.Second

// TrainingStatus summarizes the training jobs. The running worker answers
// over the bus; without one the summary is built from the repository.
func (h *Handler) TrainingStatus(w http.ResponseWriter, r *http.Request) {
	if h.bus != nil {
		ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
		st, err := worker.RequestStatus(ctx, h.bus)
		cancel()
		if err == nil {
			writeJSON(w, http.StatusOK, st)
			return
		}
		slog.Warn("training status request unanswered, reading repository", "error", err)
	}

	jobs, ok := h.trainingJobs(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, worker.Summarize(jobs))
}

func (h *Handler) trainingJobs(w http.ResponseWriter, r *http.Request) ([]*domain.TrainingJob, bool) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return nil, false
	}
	jobs, err := h.repo.ListTrainingJobs(r.Context())
	if err != nil {
		slog.Error("failed to list training jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list training jobs")
		return nil, false
	}
	if jobs == nil {
		jobs = []*domain.TrainingJob{}
	}
	return jobs, true
}

// StartTraining queues a simulated training job.
func (h *Handler) StartTraining(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil || h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "training not available")
		return
	}

	var spec worker.TrainingSpec
	if err := h.decodeValid(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := worker.QueueTraining(r.Context(), h.repo, h.bus, spec)
	if err != nil {
		slog.Error("failed to queue training job", "model", spec.ModelName, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start training")
		return
	}

	slog.Info("training job queued", "job_id", job.ID, "model", job.ModelName)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"jobId":   job.ID,
		"message": "Training started for " + job.ModelName,
		"job":     job,
	})
}

// GetTrainingJob returns one training job.
func (h *Handler) GetTrainingJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.trainingJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GetTrainingMetrics returns the per-epoch metrics of a job.
func (h *Handler) GetTrainingMetrics(w http.ResponseWriter, r *http.Request) {
	job, ok := h.trainingJob(w, r)
	if !ok {
		return
	}

	metrics, err := h.repo.GetTrainingMetrics(r.Context(), job.ID)
	if err != nil {
		slog.Error("failed to get training metrics", "job_id", job.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get training metrics")
		return
	}
	if metrics == nil {
		metrics = []domain.EpochMetric{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":   job.ID,
		"status":  job.Status,
		"metrics": metrics,
	})
}

func (h *Handler) trainingJob(w http.ResponseWriter, r *http.Request) (*domain.TrainingJob, bool) {
	id := chi.URLParam(r, "id")
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return nil, false
	}

	job, err := h.repo.GetTrainingJob(r.Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "training job not found")
		return nil, false
	case err != nil:
		slog.Error("failed to get training job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get training job")
		return nil, false
	}
	return job, true
}
