package router

import (
	"net/http"

	"shopsync-api/internal/handler"
	"shopsync-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	WebhookHandler *handler.WebhookHandler
	CatalogHandler *handler.CatalogHandler
	AdminHandler   *handler.AdminHandler
	AuthMiddleware func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
		r.Get("/api/v1/health", cfg.Handler.Health)
		r.Get("/api/v1/ready", cfg.Handler.Ready)
	}

	// Webhooks authenticate by signature, not API key.
	if cfg.WebhookHandler != nil {
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/shopify", cfg.WebhookHandler.Receive)
			r.Post("/{resource}/{action}", cfg.WebhookHandler.Receive)
		})
	}

	// AUTHENTICATED routes
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			if cfg.CatalogHandler != nil {
				r.Get("/orders", cfg.CatalogHandler.ListOrders)
				r.Get("/orders/{source_id}", cfg.CatalogHandler.GetOrder)
				r.Get("/products", cfg.CatalogHandler.ListProducts)
				r.Get("/products/{source_id}", cfg.CatalogHandler.GetProduct)
				r.Get("/customers/{source_id}", cfg.CatalogHandler.GetCustomer)
			}

			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Get("/stats", cfg.AdminHandler.GetStats)
					r.Get("/events", cfg.AdminHandler.ListEvents)
					r.Get("/events/{id}", cfg.AdminHandler.GetEvent)
					r.Post("/events/{id}/replay", cfg.AdminHandler.ReplayEvent)
					r.Post("/replay", cfg.AdminHandler.StartReplay)
				})
			}
		})
	})

	return r
}
