/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend
  5. Actor:      Identity resolution from trusted headers

ROUTE GROUPS:
  /api/ledger            Monthly reconciliation view
  /api/periods/*         Period closing
  /api/reports/*         Monthly reports and deposit paperwork
  /api/transactions/*    Manual ledger entries
  /api/funds/*           Fund balances and movement history
  /api/churches/*        Congregation registry
  /api/worship-records   Worship income records
  /api/expenses          Expense records

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Actor middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. corsOrigins
// come from deployment config; an empty list falls back to localhost dev
// origins.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-Role", "X-Actor-Church", "X-Actor-Email"},
		AllowCredentials: true,
	}))
	r.Use(ActorMiddleware)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Ledger and period closing
		r.Get("/ledger", h.GetLedger)
		r.Post("/periods/close", h.ClosePeriod)

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/", h.GetReportByPeriod)
			r.Post("/", h.SubmitReport)
			r.Get("/{id}", h.GetReport)
			r.Put("/{id}/deposit", h.UpdateDeposit)
		})

		// Transaction routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.PostTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
		})

		// Fund routes
		r.Route("/funds", func(r chi.Router) {
			r.Get("/", h.ListFunds)
			r.Get("/{id}", h.GetFund)
			r.Get("/{id}/movements", h.ListFundMovements)
		})

		// Church routes
		r.Route("/churches", func(r chi.Router) {
			r.Get("/", h.ListChurches)
			r.Post("/", h.CreateChurch)
			r.Get("/{id}", h.GetChurch)
		})

		// Source record routes
		r.Post("/worship-records", h.CreateWorshipRecord)
		r.Post("/expenses", h.CreateExpense)
	})

	return r
}
