package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"crenors/guildbot/internal/models/dtos"
)

const healthTimeout = 3 * time.Second

// HealthCheckHandler handles GET /healthCheck. It answers 503 when the
// database or cache is unreachable.
func HealthCheckHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		services := make(map[string]dtos.ServiceStatus)

		dbStatus := dtos.ServiceStatus{Status: "ok", Details: "Database connected"}
		if err := deps.DB.PingContext(ctx); err != nil {
			dbStatus = dtos.ServiceStatus{Status: "down", Details: err.Error()}
		}
		services["database"] = dbStatus

		cacheStatus := dtos.ServiceStatus{Status: "ok"}
		if err := deps.Cache.Ping(); err != nil {
			cacheStatus = dtos.ServiceStatus{Status: "down", Details: err.Error()}
		}
		services["cache"] = cacheStatus

		overallStatus := "ok"
		for _, svc := range services {
			if svc.Status != "ok" {
				overallStatus = "down"
				break
			}
		}

		resp := dtos.HealthCheckResponse{
			Services: services,
			Status:   overallStatus,
			Uptime:   time.Since(deps.UpSince).Round(time.Second).String(),
		}
		w.Header().Set("Content-Type", "application/json")
		if overallStatus != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
