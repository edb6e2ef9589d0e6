package api

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"crenors/guildbot/internal/config"
	"crenors/guildbot/internal/constants"
	"crenors/guildbot/internal/logging"
	"crenors/guildbot/internal/models/dtos"
	"crenors/guildbot/internal/services"

	"github.com/go-chi/chi/v5"
)

// AwardXP handles POST /api/v1/guilds/{guildID}/users/{userID}/xp.
// Boosters apply as for any other award.
func (h *Handlers) AwardXP() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dtos.AwardXPRequest
		if err := decodeJSON(r, &req); err != nil {
			respondWithError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		guildID, userID := chi.URLParam(r, "guildID"), chi.URLParam(r, "userID")

		res, err := h.deps.Services.Leveling.AwardXP(r.Context(), guildID, userID, req.Amount, constants.XPSourceAdmin)
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		logging.Info("Admin XP award", "guild_id", guildID, "user_id", userID, "awarded", res.Awarded, "leveled_up", res.LeveledUp)
		respondWithSuccess(w, r, http.StatusOK, res)
	}
}

// ListRoleRewards handles GET /api/v1/leveling/role-rewards
func (h *Handlers) ListRoleRewards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rewards := h.deps.Services.Leveling.RoleRewards()
		respondWithSuccess(w, r, http.StatusOK, &rewards)
	}
}

// AddRoleReward handles POST /api/v1/leveling/role-rewards
func (h *Handlers) AddRoleReward() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dtos.RoleRewardRequest
		if err := decodeJSON(r, &req); err != nil {
			respondWithError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := h.deps.Services.Leveling.AddRoleReward(r.Context(), req.Level, req.RoleID); err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		reward := config.RoleReward{Level: req.Level, RoleID: req.RoleID}
		respondWithSuccess(w, r, http.StatusCreated, &reward)
	}
}

// RemoveRoleReward handles DELETE /api/v1/leveling/role-rewards/{roleID}.
// Removing an unknown role succeeds with removed=false.
func (h *Handlers) RemoveRoleReward() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed, err := h.deps.Services.Leveling.RemoveRoleReward(r.Context(), chi.URLParam(r, "roleID"))
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		out := map[string]bool{"removed": removed}
		respondWithSuccess(w, r, http.StatusOK, &out)
	}
}

// ListBoosters handles GET /api/v1/leveling/boosters
func (h *Handlers) ListBoosters() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boosters := h.deps.Services.Leveling.Boosters()
		respondWithSuccess(w, r, http.StatusOK, &boosters)
	}
}

// AddBooster handles POST /api/v1/leveling/boosters
func (h *Handlers) AddBooster() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dtos.BoosterRequest
		if err := decodeJSON(r, &req); err != nil {
			respondWithError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.DurationHours <= 0 || math.IsInf(req.DurationHours, 0) {
			respondWithServiceError(w, r, fmt.Errorf("durationHours must be positive: %w", services.ErrValidation))
			return
		}
		duration := time.Duration(req.DurationHours * float64(time.Hour))

		b, err := h.deps.Services.Leveling.AddBooster(r.Context(), req.Multiplier, duration, req.RoleID)
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		respondWithSuccess(w, r, http.StatusCreated, &b)
	}
}
