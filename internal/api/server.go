package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/albapepper/scoracle-settlement/internal/api/handler"
)

// NewRouter builds the settlement API: health and docs at the root, the
// versioned API under /api/v1.
func NewRouter(deps handler.Deps) *chi.Mux {
	cfg := deps.Config
	h := handler.New(deps)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(deps.Logger))
	r.Use(middleware.Compress(5))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "If-None-Match"},
		ExposedHeaders: []string{"ETag", "X-Cache", "X-Process-Time", "Retry-After"},
	}).Handler)

	r.Get("/", h.Root)
	r.Get("/health", h.HealthCheck)
	r.Get("/health/db", h.HealthCheckDB)
	r.Get("/health/cache", h.HealthCheckCache)
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitEnabled {
			r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Post("/settlement/run", h.RunSettlement)
		r.Get("/settlement/status", h.GetSettlementStatus)
		r.Get("/settlement/runs", h.GetRuns)
		r.Get("/entries/{entryID}", h.GetEntry)
	})

	return r
}
