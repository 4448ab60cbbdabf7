/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard frontend

SECURITY NOTE:
  No authentication middleware. Credential storage is handled outside
  this service; all endpoints here are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Device routes
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", h.ListDevices)
			r.Post("/", h.RegisterDevice)
			r.Get("/{id}", h.GetDevice)
			r.Get("/{id}/readings/daily", h.GetDailyReading)
			r.Get("/{id}/readings/monthly", h.GetMonthlyReading)
			r.Get("/{id}/consumption/daily", h.GetDailyConsumption)
			r.Get("/{id}/consumption/monthly", h.GetMonthlyConsumption)
		})

		// Pipeline routes
		r.Route("/pipeline", func(r chi.Router) {
			r.Get("/status", h.PipelineStatus)
			r.Post("/run", h.TriggerRun)
		})

		// Upstream feed passthrough
		r.Get("/feed", h.FeedDay)
	})

	return r
}
