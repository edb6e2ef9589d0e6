package api

import (
	"net/http"

	"crenors/guildbot/internal/models/dtos"

	"github.com/go-chi/chi/v5"
)

// GetTicketStats handles GET /api/v1/guilds/{guildID}/tickets/stats
func (h *Handlers) GetTicketStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := h.deps.Services.Tickets.Stats(r.Context(), chi.URLParam(r, "guildID"))
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		respondWithSuccess(w, r, http.StatusOK, stats)
	}
}

// PostTicketPanel handles POST /api/v1/tickets/panel
func (h *Handlers) PostTicketPanel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dtos.TicketPanelRequest
		if err := decodeJSON(r, &req); err != nil {
			respondWithError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		messageID, err := h.deps.Services.Publisher.PostTicketPanel(r.Context(), req)
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		respondWithSuccess(w, r, http.StatusCreated, &dtos.TicketPanelResponse{ChannelID: req.ChannelID, MessageID: messageID})
	}
}

// UpdateTicketSettings handles PUT /api/v1/tickets/settings
func (h *Handlers) UpdateTicketSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dtos.TicketSettingsRequest
		if err := decodeJSON(r, &req); err != nil {
			respondWithError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		settings, err := h.deps.Services.Tickets.UpdateSettings(r.Context(), req)
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		respondWithSuccess(w, r, http.StatusOK, &settings)
	}
}
