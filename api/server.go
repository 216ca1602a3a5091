/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RequestLogger: Structured (logrus) request log with per-request data
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for the frontend

ROUTE GROUPS:
  /status                          Liveness + schema version
  /api/accounts/*                  Accounts and balance adjustments
  /api/transactions/*              Manual transactions
  /api/categories/*                Categories
  /api/tags/*                      Tags
  /api/budgets/*                   Budgets and period status
  /api/savings-goals/*             Savings goals and deposits
  /api/recurring-transactions/*    Rules, materialization, preview, runs
  /api/analytics/dashboard         Period summary

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/warp/finance-tracker/logging"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, logger logrus.FieldLogger, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/status", h.Status)

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Get("/{id}", h.GetAccount)
			r.Put("/{id}", h.UpdateAccount)
			r.Delete("/{id}", h.DeleteAccount)
			r.Post("/{id}/adjust-balance", h.AdjustBalance)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.CreateTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Put("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Post("/", h.CreateCategory)
			r.Put("/{id}", h.UpdateCategory)
			r.Delete("/{id}", h.DeleteCategory)
		})

		r.Route("/tags", func(r chi.Router) {
			r.Get("/", h.ListTags)
			r.Post("/", h.CreateTag)
			r.Put("/{id}", h.UpdateTag)
			r.Delete("/{id}", h.DeleteTag)
		})

		r.Route("/budgets", func(r chi.Router) {
			r.Get("/", h.ListBudgets)
			r.Post("/", h.CreateBudget)
			r.Put("/{id}", h.UpdateBudget)
			r.Delete("/{id}", h.DeleteBudget)
			r.Get("/{id}/status", h.BudgetStatus)
		})

		r.Route("/savings-goals", func(r chi.Router) {
			r.Get("/", h.ListGoals)
			r.Post("/", h.CreateGoal)
			r.Put("/{id}", h.UpdateGoal)
			r.Delete("/{id}", h.DeleteGoal)
			r.Post("/{id}/deposit", h.DepositToGoal)
		})

		// Static segments are registered before /{id}.
		r.Route("/recurring-transactions", func(r chi.Router) {
			r.Get("/", h.ListRules)
			r.Post("/", h.CreateRule)
			r.Post("/process-all", h.ProcessAll)
			r.Get("/runs", h.ListRuns)
			r.Get("/{id}", h.GetRule)
			r.Put("/{id}", h.UpdateRule)
			r.Delete("/{id}", h.DeleteRule)
			r.Put("/{id}/toggle", h.ToggleRule)
			r.Post("/{id}/process", h.ProcessRule)
			r.Get("/{id}/preview", h.PreviewRule)
		})

		r.Get("/analytics/dashboard", h.Dashboard)
	})

	return r
}
