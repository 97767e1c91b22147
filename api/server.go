/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the case-management frontend

SECURITY NOTE:
  Authentication and session handling live in the surrounding case
  management system; this engine sits behind it and exposes no auth of
  its own.

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Agreement routes
		r.Route("/agreements", func(r chi.Router) {
			r.Post("/", h.CreateAgreement)
			r.Get("/{id}", h.GetAgreement)
			r.Get("/{id}/installments", h.GetAgreementInstallments)
			r.Get("/{id}/payments", h.GetAgreementPaymentHistory)
		})

		// Installment routes
		r.Route("/installments", func(r chi.Router) {
			r.Get("/{id}/accrual", h.PreviewAccrual)
			r.Post("/{id}/payments", h.RecordInstallmentPayment)
		})

		// Case routes
		r.Route("/cases", func(r chi.Router) {
			r.Post("/{id}/status", h.UpdateCase)
			r.Get("/{id}/agreements", h.ListCaseAgreements)
		})

		// Audit routes
		r.Get("/audit", h.QueryAudit)
	})

	return r
}
