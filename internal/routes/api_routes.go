package routes

import (
	"crenors/guildbot/internal/api"
	"crenors/guildbot/internal/config"
	"crenors/guildbot/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// RegisterAPIRoutes registers all API v1 routes. Reads are public and rate
// limited; everything that changes state needs the admin key.
func RegisterAPIRoutes(r chi.Router, handlers *api.Handlers, cfg config.APIConfig) {
	limiter := middleware.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst)

	r.Route("/api/v1", func(v1 chi.Router) {
		// Public
		v1.Group(func(public chi.Router) {
			public.Use(limiter.Middleware)

			public.Get("/guilds/{guildID}/leaderboard", handlers.GetLeaderboard())
			public.Get("/guilds/{guildID}/users/{userID}/rank", handlers.GetRank())
			public.Get("/polls/{pollID}/results", handlers.GetPollResults())
		})

		// Admin
		v1.Group(func(admin chi.Router) {
			admin.Use(middleware.APIKeyMiddleware(cfg.APIKey))

			admin.Post("/guilds/{guildID}/users/{userID}/xp", handlers.AwardXP())
			admin.Get("/leveling/role-rewards", handlers.ListRoleRewards())
			admin.Post("/leveling/role-rewards", handlers.AddRoleReward())
			admin.Delete("/leveling/role-rewards/{roleID}", handlers.RemoveRoleReward())
			admin.Get("/leveling/boosters", handlers.ListBoosters())
			admin.Post("/leveling/boosters", handlers.AddBooster())

			admin.Get("/guilds/{guildID}/polls", handlers.ListPolls())
			admin.Post("/polls", handlers.CreatePoll())
			admin.Post("/polls/{pollID}/end", handlers.EndPoll())
			admin.Put("/polls/settings", handlers.UpdatePollSettings())

			admin.Get("/guilds/{guildID}/tickets/stats", handlers.GetTicketStats())
			admin.Post("/tickets/panel", handlers.PostTicketPanel())
			admin.Put("/tickets/settings", handlers.UpdateTicketSettings())

			admin.Get("/admin/jobs", handlers.GetJobStatus())
			admin.Post("/admin/jobs/{job}/run", handlers.TriggerJob())
		})
	})
}
