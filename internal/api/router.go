// Package api serves the filter query HTTP surface: a JSON query endpoint
// per entity, a URL-parameter shorthand, entity discovery, health, and
// Prometheus metrics.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/riandyrn/otelchi"

	"filterq/internal/logging"
	"filterq/internal/service"
)

// Options configures the router's collaborators.
type Options struct {
	Logger *logging.Logger
	// DB backs the health check; nil disables the database probe.
	DB *sql.DB
	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
	// ServiceName labels server spans when tracing is enabled.
	ServiceName    string
	TracingEnabled bool
	// HealthCheckTimeout bounds the database ping.
	HealthCheckTimeout time.Duration
}

// NewRouter builds the HTTP routes around a filter service.
func NewRouter(svc *service.FilterService, opts Options) http.Handler {
	r := chi.NewRouter()

	if opts.TracingEnabled {
		name := opts.ServiceName
		if name == "" {
			name = "filterq"
		}
		r.Use(otelchi.Middleware(name, otelchi.WithChiRoutes(r)))
	}
	r.Use(RequestLogger(opts.Logger))

	h := &handler{svc: svc, db: opts.DB, healthTimeout: opts.HealthCheckTimeout}

	r.Get("/healthz", h.health)
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	r.Route("/v1/entities", func(r chi.Router) {
		r.Get("/", h.listEntities)
		r.Get("/{entity}", h.filterByURL)
		r.Post("/{entity}/query", h.query)
	})

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		timeout := h.healthTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
