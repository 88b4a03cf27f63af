package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/predict"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = repository.MaxListLimit
)

// Predict returns the handler scoring requests for d. The body must be a
// JSON object of named fields; missing or malformed fields are defaulted
// and reported in the response, never rejected.
func (h *Handler) Predict(d domain.ScoringDomain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.predict == nil {
			writeError(w, http.StatusServiceUnavailable, "prediction service not available")
			return
		}

		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		var body any
		if err := dec.Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON request body")
			return
		}
		fields, ok := body.(map[string]any)
		if !ok {
			writeError(w, http.StatusBadRequest, "request body must be a JSON object")
			return
		}

		out, err := h.predict.Predict(r.Context(), d, domain.ScoringRequest(fields))
		if err != nil {
			if errors.Is(err, rules.ErrUnknownDomain) {
				writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("no rule table loaded for %s", d))
				return
			}
			slog.Error("prediction failed",
				"domain", d,
				"request_id", GetRequestID(r.Context()),
				"error", err,
			)
			writeError(w, http.StatusInternalServerError, "prediction failed")
			return
		}

		writeJSON(w, http.StatusOK, out)
	}
}

// ListPredictions returns stored predictions, newest first.
func (h *Handler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	if h.predict == nil {
		writeError(w, http.StatusServiceUnavailable, "prediction service not available")
		return
	}

	filter := domain.PredictionFilter{
		Domain: domain.ScoringDomain(r.URL.Query().Get("domain")),
		Limit:  defaultHistoryLimit,
	}
	if filter.Domain != "" && !filter.Domain.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown domain %q", filter.Domain))
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, maxHistoryLimit)
	}

	preds, err := h.predict.History(r.Context(), filter)
	if err != nil {
		if errors.Is(err, predict.ErrNoHistory) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		slog.Error("failed to list predictions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list predictions")
		return
	}
	if preds == nil {
		preds = []*domain.Prediction{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"predictions": preds,
		"count":       len(preds),
	})
}

// GetPrediction returns one stored prediction.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.predict == nil {
		writeError(w, http.StatusServiceUnavailable, "prediction service not available")
		return
	}

	p, err := h.predict.Get(r.Context(), id)
	switch {
	case errors.Is(err, predict.ErrNoHistory):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "prediction not found")
		return
	case err != nil:
		slog.Error("failed to get prediction", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get prediction")
		return
	}

	writeJSON(w, http.StatusOK, p)
}
