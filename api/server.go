/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/requests/*       Leave request lifecycle
  /api/users/*          Directory seeding, per-user requests and balances
  /api/leave-types/*    Leave type catalog
  /api/policies         Organization/country policy
  /api/holidays/*       Holiday calendar
  /api/entitlements     Explicit grants
  /api/working-days     Working-day preview
  /api/admin/*          Year opening, carry-forward expiry, organization import
  /api/scenarios/*      Demo scenarios
  /health               Liveness

SECURITY NOTE:
  Identity comes from the X-Actor-ID header, which an upstream gateway is
  expected to set after authentication.

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

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins ...string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.SubmitRequest)
			r.Get("/{id}", h.GetRequest)
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/reject", h.RejectRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateUser)
			r.Get("/{id}/requests", h.ListUserRequests)
			r.Get("/{id}/entitlements", h.ListUserEntitlements)
		})

		r.Route("/leave-types", func(r chi.Router) {
			r.Get("/", h.ListLeaveTypes)
			r.Post("/", h.CreateLeaveType)
			r.Get("/{id}", h.GetLeaveType)
			r.Put("/{id}", h.UpdateLeaveType)
			r.Delete("/{id}", h.DeleteLeaveType)
		})

		r.Get("/policies", h.GetPolicy)
		r.Put("/policies", h.PutPolicy)

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Delete("/{id}", h.DeleteHoliday)
		})

		r.Post("/entitlements", h.GrantEntitlement)
		r.Get("/working-days", h.WorkingDays)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/open-year", h.OpenYear)
			r.Post("/expire-carryforward", h.ExpireCarryForward)
			r.Post("/import", h.ImportOrganization)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
