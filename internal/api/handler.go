package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/opensource-finance/kestrel/internal/bulk"
	"github.com/opensource-finance/kestrel/internal/dashboard"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/observability"
	"github.com/opensource-finance/kestrel/internal/predict"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Dependencies are the services behind the API. Any of them may be nil;
// routes that need a missing one answer 503.
type Dependencies struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Engine    *rules.Engine
	Predict   *predict.Service
	Bulk      *bulk.Processor
	Dashboard *dashboard.Service
	Metrics   *observability.Metrics
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	predict   *predict.Service
	bulk      *bulk.Processor
	dashboard *dashboard.Service
	validate  *validator.Validate
	version   string
	maxUpload int64
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies, version string, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handler{
		repo:      deps.Repo,
		cache:     deps.Cache,
		bus:       deps.Bus,
		engine:    deps.Engine,
		predict:   deps.Predict,
		bulk:      deps.Bulk,
		dashboard: deps.Dashboard,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		version:   version,
		maxUpload: maxUpload,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	if h.repo != nil {
		checks["repository"] = "ok"
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
			checks["repository"] = err.Error()
		}
	}
	if h.cache != nil {
		checks["cache"] = "ok"
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
			checks["cache"] = err.Error()
		}
	}
	if h.bus != nil {
		checks["eventBus"] = "ok"
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
			checks["eventBus"] = err.Error()
		}
	}

	tables := 0
	if h.engine != nil {
		tables = h.engine.TablesCount()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    h.version,
		"ruleTables": tables,
		"checks":     checks,
	})
}

// Ready reports ready once every scoring domain has a rule table.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
		return
	}
	for _, d := range domain.Domains() {
		if _, ok := h.engine.GetTable(d); !ok {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready":  "false",
				"reason": fmt.Sprintf("no rule table loaded for %s", d),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}

// decodeValid decodes a JSON body into dest and validates it.
func (h *Handler) decodeValid(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return errors.New("invalid JSON request body")
	}
	if err := h.validate.StructCtx(r.Context(), dest); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: failed %s validation", fe.Namespace(), fe.Tag())
		}
		return err
	}
	return nil
}
