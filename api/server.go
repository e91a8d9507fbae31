/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

SECURITY NOTE:
  Caller identity comes from the X-Caller-ID header, trusted as-is.
  This service is meant to sit behind an authenticating front end that
  sets the header; it must not be exposed directly.

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Caller-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Policy routes
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Get("/{id}", h.GetPolicy)
			r.Get("/{id}/tags", h.GetPolicyTags)
			r.Get("/{id}/participants", h.GetPolicyParticipants)
			r.Get("/{id}/premiums", h.GetPolicyPremiums)
			r.Post("/{id}/premiums", h.PayPremium)
			r.Get("/{id}/claims", h.GetPolicyClaims)
			r.Post("/{id}/claims", h.SubmitClaim)
			r.Post("/{id}/claims/{index}/approve", h.ApproveClaim)
			r.Post("/{id}/payouts", h.ProcessPayout)
		})

		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/{id}/balance", h.GetBalance)
		})

		// Scenario routes (demo/dev)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
