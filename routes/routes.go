package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/admin-gateway/app"
	"github.com/upb/admin-gateway/handlers"
	"github.com/upb/admin-gateway/internal/audit"
	"github.com/upb/admin-gateway/internal/observability"
	gatemw "github.com/upb/admin-gateway/middleware"
	"github.com/upb/admin-gateway/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	if cfg.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	}

	// CORS answers preflight requests before the gate sees them
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{gatemw.AuthModeHeader, "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	gate := deps.AuthGate
	if gate == nil {
		gate = gatemw.NewDevModeGate(nil, deps.Logger.Named("auth"))
	}
	r.Use(gate.RequireAuth)

	// Probes, exempt from authentication
	r.Get("/health", handlers.HealthCheck(deps))
	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))

	// API reference
	r.Get("/openapi.json", handlers.OpenAPIHandler())
	r.Get("/docs", handlers.DocsHandler())
	r.Get("/docs/*", handlers.DocsHandler())
	r.Get("/redoc", handlers.DocsHandler())

	resources := handlers.NewResourceHandler(deps.Store, audit.NewZapRecorder(deps.Logger), deps.Logger.Named("resources"))

	r.Route("/api", func(r chi.Router) {
		r.Get("/auth/config", handlers.AuthConfigHandler(deps))
		r.Get("/me", handlers.GetCurrentUserHandler(deps))

		r.Route("/{collection}", func(r chi.Router) {
			r.Get("/", resources.HandleList)
			r.Get("/{id}", resources.HandleGet)

			// Mutations require the admin group when one is configured
			r.Group(func(r chi.Router) {
				if cfg.Auth.AdminGroup != "" {
					r.Use(gate.RequireGroup(cfg.Auth.AdminGroup))
				}
				r.Post("/", resources.HandleCreate)
				r.Put("/{id}", resources.HandleUpdate)
				r.Delete("/{id}", resources.HandleDelete)
			})
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}
