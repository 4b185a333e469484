/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:        Request logging
  2. Recoverer:     Panic recovery (500 instead of crash)
  3. RequestID:     Unique ID per request for tracing
  4. CORS:          The scanner PWA is a cross-origin client
  5. Authenticator: Bearer token -> principal (API routes only)

ROUTE GROUPS:
  /healthz            Unauthenticated liveness probe
  /api/scans/*        Authenticated scan endpoints

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go:     Authentication middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the wiring inputs that differ per deployment.
type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	// API routes (authenticated)
	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticator(cfg.JWTSecret))

		r.Route("/scans", func(r chi.Router) {
			r.Post("/bulk", h.BulkSync)
			r.Get("/student/{subjectID}", h.SubjectScans)
			r.Get("/bus/{busID}", h.BusScans)
			r.Get("/pending", h.StatusCounts)
		})
	})

	return r
}
