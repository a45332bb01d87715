/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP from proxy headers
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/users/*    Signup and login hooks
  /api/wallet/*   Caller's wallet, transfers, history
  /api/shop/*     Catalog browsing and purchases
  /api/tasks/*    Task listing and completion
  /api/admin/*    Catalog management, grants, recount

SECURITY NOTE:
  Identity comes from the X-User-ID header set by the authenticating
  gateway; this service does not verify credentials itself, and the
  /api/admin subtree must only be reachable from the admin network.

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
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// User lifecycle hooks
		r.Route("/users", func(r chi.Router) {
			r.Post("/signup", h.Signup)
			r.Post("/login", h.Login)
		})

		// Wallet routes
		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", h.GetWallet)
			r.Post("/transfer", h.Transfer)
			r.Get("/transactions", h.GetTransactions)
		})

		// Shop routes
		r.Route("/shop", func(r chi.Router) {
			r.Get("/categories", h.ListCategories)
			r.Get("/products", h.ListProducts)
			r.Post("/purchase", h.Purchase)
			r.Get("/purchases", h.ListPurchases)
		})

		// Task routes
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/{id}/complete", h.CompleteTask)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/categories", h.CreateCategory)
			r.Put("/categories/{id}", h.UpdateCategory)
			r.Delete("/categories/{id}", h.DeleteCategory)
			r.Post("/products", h.CreateProduct)
			r.Put("/products/{id}", h.UpdateProduct)
			r.Delete("/products/{id}", h.DeleteProduct)
			r.Post("/tasks", h.CreateTask)
			r.Put("/tasks/{id}", h.UpdateTask)
			r.Post("/grant", h.Grant)
			r.Post("/recount", h.Recount)
		})
	})

	return r
}
