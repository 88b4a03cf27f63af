package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// ListRuleTables returns the loaded rule tables.
func (h *Handler) ListRuleTables(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "rule engine not available")
		return
	}

	tables := h.engine.GetLoadedTables()
	writeJSON(w, http.StatusOK, map[string]any{
		"tables": tables,
		"count":  len(tables),
	})
}

// GetRuleTable returns the loaded table for a domain, or the stored one
// when it has not been loaded yet.
func (h *Handler) GetRuleTable(w http.ResponseWriter, r *http.Request) {
	d := domain.ScoringDomain(chi.URLParam(r, "domain"))

	if h.engine != nil {
		if table, ok := h.engine.GetTable(d); ok {
			writeJSON(w, http.StatusOK, map[string]any{
				"table":  table,
				"loaded": true,
			})
			return
		}
	}

	if h.repo != nil {
		table, err := h.repo.GetRuleTable(r.Context(), d)
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"table":  table,
				"loaded": false,
			})
			return
		}
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get rule table", "domain", d, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get rule table")
			return
		}
	}

	writeError(w, http.StatusNotFound, fmt.Sprintf("rule table not found for %s", d))
}

// PutRuleTable validates and stores a rule table. The change takes effect
// on the next reload.
func (h *Handler) PutRuleTable(w http.ResponseWriter, r *http.Request) {
	d := domain.ScoringDomain(chi.URLParam(r, "domain"))

	if h.repo == nil || h.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "rule table storage not available")
		return
	}
	if !d.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown domain %q", d))
		return
	}

	table := domain.RuleTable{Enabled: true}
	if err := json.NewDecoder(r.Body).Decode(&table); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if table.Domain == "" {
		table.Domain = d
	}
	if table.Domain != d {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("table domain %q does not match path %q", table.Domain, d))
		return
	}

	if err := h.validate.StructCtx(r.Context(), &table); err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule table: "+err.Error())
		return
	}
	if err := h.engine.ValidateTable(&table); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	table.UpdatedAt = time.Now().UTC()
	if err := h.repo.SaveRuleTable(r.Context(), &table); err != nil {
		slog.Error("failed to save rule table", "domain", d, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rule table")
		return
	}

	slog.Info("rule table saved", "domain", d, "version", table.Version, "enabled", table.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{
		"table":   table,
		"message": "Rule table saved. Call POST /rule-tables/reload to apply changes.",
	})
}

// ReloadRuleTables swaps the engine's tables for the stored ones.
func (h *Handler) ReloadRuleTables(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil || h.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "rule table storage not available")
		return
	}

	tables, err := h.repo.ListRuleTables(ctx)
	if err != nil {
		slog.Error("failed to list rule tables from database", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rule tables from database")
		return
	}
	if len(tables) == 0 {
		writeError(w, http.StatusNotFound, "no rule tables stored")
		return
	}

	if err := h.engine.ReloadTables(tables); err != nil {
		slog.Error("failed to reload rule tables into engine", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload rule tables: "+err.Error())
		return
	}

	loaded := h.engine.TablesCount()
	if h.bus != nil {
		payload, _ := json.Marshal(map[string]int{"count": loaded})
		if err := h.bus.Publish(ctx, domain.TopicRuleTablesReloaded, payload); err != nil {
			slog.Warn("failed to publish rule table reload", "error", err)
		}
	}

	slog.Info("rule tables reloaded from database", "stored", len(tables), "loaded", loaded)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rule tables reloaded successfully",
		"count":   loaded,
	})
}
