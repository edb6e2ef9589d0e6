package api

import (
	"net/http"

	"crenors/guildbot/internal/constants"
	"crenors/guildbot/internal/models/dtos"
	gormModels "crenors/guildbot/internal/models/gorm"
	"crenors/guildbot/internal/services"

	"github.com/go-chi/chi/v5"
)

func pollResponse(p *gormModels.Poll) *dtos.PollResponse {
	return &dtos.PollResponse{
		ID:        p.ID.String(),
		GuildID:   p.GuildID,
		ChannelID: p.ChannelID,
		MessageID: p.MessageID,
		Question:  p.Question,
		Options:   append([]string(nil), p.Options...),
		Status:    p.Status.String(),
		CreatedAt: p.CreatedAt,
		ExpiresAt: p.ExpiresAt,
		EndedAt:   p.EndedAt,
	}
}

// CreatePoll handles POST /api/v1/polls. The poll is posted to its channel
// before the response is written.
func (h *Handlers) CreatePoll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dtos.CreatePollRequest
		if err := decodeJSON(r, &req); err != nil {
			respondWithError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.GuildID == "" || req.ChannelID == "" {
			respondWithError(w, r, http.StatusBadRequest, "guildId and channelId are required")
			return
		}

		poll, err := h.deps.Services.Publisher.PublishPoll(r.Context(), req)
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		respondWithSuccess(w, r, http.StatusCreated, pollResponse(poll))
	}
}

// ListPolls handles GET /api/v1/guilds/{guildID}/polls?status=active|ended
func (h *Handlers) ListPolls() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := constants.PollStatus(r.URL.Query().Get("status"))
		polls, err := h.deps.Services.Polls.ListByGuild(r.Context(), chi.URLParam(r, "guildID"), status)
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		out := make([]*dtos.PollResponse, 0, len(polls))
		for i := range polls {
			out = append(out, pollResponse(&polls[i]))
		}
		respondWithSuccess(w, r, http.StatusOK, &out)
	}
}

// EndPoll handles POST /api/v1/polls/{pollID}/end. Ending an ended poll
// returns it unchanged.
func (h *Handlers) EndPoll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := services.ParsePollID(chi.URLParam(r, "pollID"))
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		poll, err := h.deps.Services.Polls.End(r.Context(), id)
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		respondWithSuccess(w, r, http.StatusOK, pollResponse(poll))
	}
}

// UpdatePollSettings handles PUT /api/v1/polls/settings
func (h *Handlers) UpdatePollSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dtos.PollSettingsRequest
		if err := decodeJSON(r, &req); err != nil {
			respondWithError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		settings, err := h.deps.Services.Polls.UpdateSettings(r.Context(), req)
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		respondWithSuccess(w, r, http.StatusOK, &settings)
	}
}
