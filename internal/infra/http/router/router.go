// Package router assembles the HTTP API.
package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xavierca1/conduit/internal/infra/http/handlers"
	"github.com/xavierca1/conduit/internal/infra/http/middleware"
)

type Deps struct {
	Leads  *handlers.LeadHandler
	Health *handlers.HealthHandler
	Logger *slog.Logger

	// Registry backs /metrics. Gatherer defaults to it when it is also one.
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer

	// Limiter throttles the write endpoints per client; nil disables it.
	Limiter *middleware.RateLimiter
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.NewHTTPMetrics(d.Registry).Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", d.Health.Handle)
	r.Get("/health/detailed", d.Health.Detailed)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer(d), promhttp.HandlerOpts{}))

	r.Route("/leads", func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(d.Limiter.Handler)
		}
		d.Leads.Routes(r)
	})

	return r
}

func gatherer(d Deps) prometheus.Gatherer {
	if d.Gatherer != nil {
		return d.Gatherer
	}
	if g, ok := d.Registry.(prometheus.Gatherer); ok {
		return g
	}
	return prometheus.DefaultGatherer
}
