package routes

import (
	"net/http"

	"crenors/guildbot/internal/api"
	"crenors/guildbot/internal/config"
	"crenors/guildbot/internal/logging"
	"crenors/guildbot/internal/metrics"
	"crenors/guildbot/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// RegisterRoutes builds the ops API router
func RegisterRoutes(deps *api.Dependencies, cfg config.APIConfig, metricsReg *metrics.MetricsRegistry) http.Handler {
	r := chi.NewRouter()

	// global middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.MetricsMiddleware(metricsReg))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.APIKeyHeader, middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthCheck", api.HealthCheckHandler(deps))

	handlers := api.NewHandlers(deps)
	RegisterAPIRoutes(r, handlers, cfg)

	logging.Info("Router initialized", "allowed_origins", origins)
	return r
}
