package bot

import (
	"context"
	"fmt"

	"crenors/guildbot/internal/logging"
	"crenors/guildbot/internal/models/dtos"
	gormModels "crenors/guildbot/internal/models/gorm"
	"crenors/guildbot/internal/services"
)

// PublishPoll creates the poll and posts it to its channel. Requests without
// a duration get the configured default. A poll whose message could not be
// posted is ended again so it never expires unseen.
func (r *Router) PublishPoll(ctx context.Context, req dtos.CreatePollRequest) (*gormModels.Poll, error) {
	settings := r.polls.Settings()
	if !settings.Enabled {
		return nil, fmt.Errorf("polls are disabled: %w", services.ErrForbidden)
	}
	if req.DurationHours == nil && settings.DefaultDuration > 0 {
		d := settings.DefaultDuration
		req.DurationHours = &d
	}
	poll, err := r.polls.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	messageID, err := r.transport.SendComplex(ctx, poll.ChannelID, PollMessage(poll))
	if err != nil {
		if _, endErr := r.polls.End(ctx, poll.ID); endErr != nil {
			logging.Error("Could not end unpublished poll", "poll_id", poll.ID.String(), "error", endErr)
		}
		return nil, fmt.Errorf("posting poll %s: %w: %w", poll.ID, services.ErrTransient, err)
	}
	if err := r.polls.AttachMessage(ctx, poll.ID, messageID); err != nil {
		// Voting still works; only the edit on end is lost.
		logging.Warn("Could not attach poll message", "poll_id", poll.ID.String(), "message_id", messageID, "error", err)
	}
	poll.MessageID = messageID
	return poll, nil
}

// PostTicketPanel posts the create-ticket button and returns the message id
func (r *Router) PostTicketPanel(ctx context.Context, req dtos.TicketPanelRequest) (string, error) {
	if !r.tickets.Enabled() {
		return "", fmt.Errorf("tickets are disabled: %w", services.ErrForbidden)
	}
	if req.ChannelID == "" {
		return "", fmt.Errorf("channel is required: %w", services.ErrValidation)
	}
	id, err := r.transport.SendComplex(ctx, req.ChannelID, TicketPanelMessage(req))
	if err != nil {
		return "", fmt.Errorf("posting ticket panel: %w: %w", services.ErrTransient, err)
	}
	return id, nil
}
