/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the operator frontend

ROUTE GROUPS:
  /api/uploads       Spreadsheet ingestion
  /api/agreements/*  Agreement lookup
  /api/boxes/*       Box sequencing
  /api/assignments   Archival
  /healthz           Liveness + store check

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/archive/serve.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/uploads", h.Upload)

		r.Route("/agreements", func(r chi.Router) {
			r.Get("/search", h.SearchAgreement)
			r.Get("/{number}", h.GetAgreement)
		})

		r.Route("/boxes", func(r chi.Router) {
			r.Get("/{type}", h.GetActiveBox)
			r.Post("/{type}/next", h.NextBox)
		})

		r.Post("/assignments", h.Assign)
	})

	return r
}
