// Package handler provides HTTP handlers for all API endpoints.
// Reads go straight to the stores; the only write path is the manual
// settlement trigger, which goes through the scheduler's overlap guard.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/albapepper/scoracle-settlement/internal/api/respond"
	"github.com/albapepper/scoracle-settlement/internal/cache"
	"github.com/albapepper/scoracle-settlement/internal/config"
	"github.com/albapepper/scoracle-settlement/internal/settlement"
)

// Database is the slice of the connection pool the handlers need.
type Database interface {
	HealthCheck(ctx context.Context) error
	OpenEntryCounts(ctx context.Context, market string) (map[string]int, error)
}

// Settler runs and reports on settlement passes.
type Settler interface {
	RunSettlement(ctx context.Context, trigger settlement.Trigger) (settlement.Run, error)
	State() settlement.State
	LastRun() (settlement.Run, bool)
	NextRun() time.Time
}

// EntryReader loads a single entry.
type EntryReader interface {
	Get(ctx context.Context, entryID string) (*settlement.Entry, error)
}

// RunLog serves the persisted run history.
type RunLog interface {
	RecentJSON(ctx context.Context, limit int) ([]byte, error)
}

// BreakerReporter exposes score feed circuit breaker states.
type BreakerReporter interface {
	BreakerStates() map[string]string
}

// Deps are the handler dependencies. Breakers may be nil.
type Deps struct {
	DB       Database
	Settler  Settler
	Entries  EntryReader
	Runs     RunLog
	Breakers BreakerReporter
	Cache    *cache.Cache
	Config   *config.Config
	Logger   *slog.Logger
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	db       Database
	settler  Settler
	entries  EntryReader
	runs     RunLog
	breakers BreakerReporter
	cache    *cache.Cache
	cfg      *config.Config
	logger   *slog.Logger
}

// New creates a Handler with shared dependencies.
func New(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		db:       d.DB,
		settler:  d.Settler,
		entries:  d.Entries,
		runs:     d.Runs,
		breakers: d.Breakers,
		cache:    d.Cache,
		cfg:      d.Config,
		logger:   logger,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, status, and docs location.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"name":    "Scoracle Settlement API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.db.HealthCheck(r.Context()); err != nil {
		h.logger.Warn("Database health check failed", "error", err)
		respond.JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics (keys, hits, misses, invalidations).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
