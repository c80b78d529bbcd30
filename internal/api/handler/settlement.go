package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/scoracle-settlement/internal/api/respond"
	"github.com/albapepper/scoracle-settlement/internal/cache"
	"github.com/albapepper/scoracle-settlement/internal/settlement"
	"github.com/albapepper/scoracle-settlement/internal/store"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// RunSettlement forces an immediate settlement pass.
// @Summary Force a settlement pass
// @Description Runs one settlement pass now and returns its summary. Returns 409 if a pass is already executing; the request is not queued.
// @Tags settlement
// @Produce json
// @Success 200 {object} settlement.Run
// @Failure 409 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /settlement/run [post]
func (h *Handler) RunSettlement(w http.ResponseWriter, r *http.Request) {
	run, err := h.settler.RunSettlement(r.Context(), settlement.TriggerManual)
	if errors.Is(err, settlement.ErrRunInProgress) {
		respond.Error(w, http.StatusConflict, respond.CodeRunInProgress, "A settlement pass is already running")
		return
	}
	if err != nil {
		h.logger.Error("Manual settlement failed", "run_id", run.ID, "error", err)
		respond.ErrorDetail(w, http.StatusInternalServerError, respond.CodeFault,
			"Settlement pass aborted", err.Error())
		return
	}
	respond.JSON(w, http.StatusOK, run)
}

// GetSettlementStatus reports scheduler state and open entry counts.
// @Summary Settlement status
// @Description Returns scheduler state, last run summary, next scheduled run, open entries per sport, and score feed breaker states.
// @Tags settlement
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /settlement/status [get]
func (h *Handler) GetSettlementStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"state":  h.settler.State(),
		"market": h.cfg.Market,
		"sports": h.cfg.Sports,
	}
	if last, ok := h.settler.LastRun(); ok {
		status["last_run"] = last
	}
	if next := h.settler.NextRun(); !next.IsZero() {
		status["next_run"] = next.UTC().Format(time.RFC3339)
	}
	if h.breakers != nil {
		status["score_feeds"] = h.breakers.BreakerStates()
	}

	counts, err := h.db.OpenEntryCounts(r.Context(), h.cfg.Market)
	if err != nil {
		h.logger.Warn("Open entry count failed", "error", err)
		status["open_entries_error"] = "unavailable"
	} else {
		status["open_entries"] = counts
	}
	respond.JSON(w, http.StatusOK, status)
}

// GetRuns returns recent settlement runs, newest first.
// @Summary Recent settlement runs
// @Tags settlement
// @Produce json
// @Param limit query int false "Max runs to return (1-200)" default(20)
// @Success 200 {array} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /settlement/runs [get]
func (h *Handler) GetRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRunsLimit {
			respond.Error(w, http.StatusBadRequest, respond.CodeBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	data, err := h.runs.RecentJSON(r.Context(), limit)
	if err != nil {
		h.logger.Error("Run history query failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "Failed to load run history")
		return
	}
	respond.Raw(w, http.StatusOK, data)
}

// GetEntry returns one entry with its settlement state.
// @Summary Get entry
// @Description Returns an entry and, once settled, its outcome. Cached until the next settlement pass.
// @Tags entries
// @Produce json
// @Param entryID path string true "Entry ID"
// @Success 200 {object} settlement.Entry
// @Success 304
// @Failure 404 {object} respond.ErrorResponse
// @Router /entries/{entryID} [get]
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")
	cacheKey := cache.PrefixEntry + entryID

	if it, ok := h.cache.Get(cacheKey); ok {
		respond.Cached(w, r, it, true)
		return
	}

	e, err := h.entries.Get(r.Context(), entryID)
	if errors.Is(err, store.ErrNotFound) {
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "Entry "+entryID+" not found")
		return
	}
	if err != nil {
		h.logger.Error("Entry lookup failed", "entry_id", entryID, "error", err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "Failed to load entry")
		return
	}

	data, err := json.Marshal(e)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "Failed to encode entry")
		return
	}
	respond.Cached(w, r, h.cache.Put(cacheKey, data, h.cfg.CacheTTL), false)
}
