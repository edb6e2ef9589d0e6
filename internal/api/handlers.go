package api

import (
	"net/http"
	"strconv"
	"time"

	"crenors/guildbot/internal/constants"
	"crenors/guildbot/internal/services"

	"github.com/go-chi/chi/v5"
)

// leaderboardTTL is how long a served leaderboard may lag behind the store
const leaderboardTTL = 30 * time.Second

type Handlers struct {
	deps *Dependencies
}

// NewHandlers creates a new handlers instance with injected dependencies
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		deps: deps,
	}
}

// GetLeaderboard handles GET /api/v1/guilds/{guildID}/leaderboard?limit=N
func (h *Handlers) GetLeaderboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guildID := chi.URLParam(r, "guildID")
		limit := constants.LeaderboardDefaultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				respondWithError(w, r, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		key := string(constants.CachePrefixLeaderboard) + guildID + ":" + strconv.Itoa(limit)
		board, err := h.deps.Cache.GetOrSet(key, leaderboardTTL, func() (any, error) {
			return h.deps.Services.Leveling.Leaderboard(r.Context(), guildID, limit)
		})
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		respondWithSuccess(w, r, http.StatusOK, &board)
	}
}

// GetRank handles GET /api/v1/guilds/{guildID}/users/{userID}/rank
func (h *Handlers) GetRank() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := h.deps.Services.Leveling.Rank(r.Context(), chi.URLParam(r, "guildID"), chi.URLParam(r, "userID"))
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		respondWithSuccess(w, r, http.StatusOK, info)
	}
}

// GetPollResults handles GET /api/v1/polls/{pollID}/results
func (h *Handlers) GetPollResults() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := services.ParsePollID(chi.URLParam(r, "pollID"))
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		tally, err := h.deps.Services.Polls.Tally(r.Context(), id)
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		respondWithSuccess(w, r, http.StatusOK, tally)
	}
}
