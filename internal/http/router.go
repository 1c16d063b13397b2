package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relawan/internal/platform/middleware"
	"relawan/pkg/platform/httputil"
)

// Registrar mounts a group of endpoints on the router.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps is everything the router needs.
type Deps struct {
	Logger        *slog.Logger
	Gatherer      prometheus.Gatherer
	SecureCookies bool
	// Health checks keyed by dependency name; any failure turns /healthz red.
	Health   map[string]HealthCheck
	Handlers []Registrar
}

// NewRouter wires the public endpoints. Transport concerns stay here; every
// route delegates to a domain handler.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Recovery(d.Logger))

	r.Get("/healthz", healthHandler(d.Health))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.BrowserSession(d.SecureCookies))
		for _, h := range d.Handlers {
			h.Register(r)
		}
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		report := map[string]string{}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": state, "checks": report})
	}
}
