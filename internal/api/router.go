package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/keyrhythm-core/internal/web"
)

// healthCheckTimeout bounds each component probe in handleHealth.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)

		r.Route("/v1", func(r chi.Router) {
			r.Get("/health", s.handleHealth)
			r.Get("/metrics", s.handleMetrics)
			r.Get("/capture", s.handleCapture)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Get("/attempts", s.handleListAttempts)
			})
		})

		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeNotFound(w, "no such endpoint")
		})
	})

	// Capture page with SPA fallback.
	r.Handle("/*", web.Handler(s.cfg.WebDir))

	return r
}

// componentChecker is implemented by every optional backend.
type componentChecker interface {
	HealthCheck(ctx context.Context) error
}

// components returns the configured backends by name.
func (s *Server) components() map[string]componentChecker {
	out := make(map[string]componentChecker)
	if s.db != nil {
		out["database"] = s.db
	}
	if s.mqtt != nil {
		out["mqtt"] = s.mqtt
	}
	if s.nats != nil {
		out["nats"] = s.nats
	}
	if s.influx != nil {
		out["influxdb"] = s.influx
	}
	return out
}

// handleHealth reports server health. A failing database makes the service
// unavailable; failing telemetry backends only degrade it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	checks := make(map[string]string)

	for name, c := range s.components() {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()

		if err == nil {
			checks[name] = "ok"
			continue
		}
		checks[name] = err.Error()
		if name == "database" {
			status, code = "unavailable", http.StatusServiceUnavailable
		} else if status == "ok" {
			status = "degraded"
		}
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}
