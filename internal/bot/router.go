package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crenors/guildbot/internal/constants"
	"crenors/guildbot/internal/logging"
	"crenors/guildbot/internal/metrics"
	"crenors/guildbot/internal/models/dtos"
	gormModels "crenors/guildbot/internal/models/gorm"
	"crenors/guildbot/internal/providers"
	"crenors/guildbot/internal/services"
)

type RouterConfig struct {
	Leveling  *services.LevelingService
	Polls     *services.PollService
	Tickets   *services.TicketService
	Transport providers.Transport
	Metrics   *metrics.MetricsRegistry
}

// Router turns inbound gateway events into state machine calls and renders
// the outcome back through the transport.
type Router struct {
	leveling  *services.LevelingService
	polls     *services.PollService
	tickets   *services.TicketService
	transport providers.Transport
	metrics   *metrics.MetricsRegistry
}

func NewRouter(c RouterConfig) *Router {
	r := &Router{
		leveling:  c.Leveling,
		polls:     c.Polls,
		tickets:   c.Tickets,
		transport: c.Transport,
		metrics:   c.Metrics,
	}
	r.polls.OnEnd(r.pollEnded)
	return r
}

// MessageEvent is a message posted in a guild channel
type MessageEvent struct {
	GuildID   string
	ChannelID string
	UserID    string
	Bot       bool
}

// Interaction is a button press or select menu choice
type Interaction struct {
	CustomID  string
	GuildID   string
	ChannelID string
	UserID    string
	Roles     []string
	Values    []string

	// ParentID is the category of the channel the component lives in
	ParentID          string
	CanManageMessages bool
}

// Reply answers an interaction. Buttons are only rendered on public replies.
type Reply struct {
	Content   string
	Ephemeral bool
	Buttons   [][]providers.Button

	after func(ctx context.Context)
}

// Finish runs work that must wait until the reply has been delivered
func (r Reply) Finish(ctx context.Context) {
	if r.after != nil {
		r.after(ctx)
	}
}

func ephemeral(content string) Reply {
	return Reply{Content: content, Ephemeral: true}
}

func (r *Router) observe(event string) {
	r.metrics.GatewayEventsTotal.WithLabelValues(event).Inc()
}

func (r *Router) HandleMessage(ctx context.Context, ev MessageEvent) {
	r.observe("message_create")
	if ev.Bot || ev.GuildID == "" || !r.leveling.Enabled() {
		return
	}
	if _, err := r.leveling.MessageAward(ctx, ev.GuildID, ev.UserID); err != nil {
		logging.WithGuild("bot", ev.GuildID, ev.UserID).Errorw("Message XP award failed", "channel_id", ev.ChannelID, "error", err)
	}
}

func (r *Router) HandleMemberJoin(ctx context.Context, guildID, userID string, isBot bool) {
	r.observe("guild_member_add")
	if isBot || !r.leveling.Enabled() {
		return
	}
	if err := r.leveling.MemberJoin(ctx, guildID, userID); err != nil {
		logging.WithGuild("bot", guildID, userID).Errorw("Member initialization failed", "error", err)
	}
}

func (r *Router) HandleMemberLeave(ctx context.Context, guildID, userID string) {
	r.observe("guild_member_remove")
	r.leveling.VoiceForget(guildID, userID)
}

// HandleVoiceState tracks joins and leaves. Moving between channels keeps the
// session running.
func (r *Router) HandleVoiceState(ctx context.Context, guildID, userID, beforeChannelID, afterChannelID string, isBot bool) {
	r.observe("voice_state_update")
	if isBot {
		return
	}
	switch {
	case afterChannelID != "" && beforeChannelID == "":
		if r.leveling.Enabled() {
			r.leveling.VoiceJoin(guildID, userID)
		}
	case afterChannelID == "":
		if !r.leveling.Enabled() {
			r.leveling.VoiceForget(guildID, userID)
			return
		}
		if _, err := r.leveling.VoiceLeave(ctx, guildID, userID); err != nil {
			logging.WithGuild("bot", guildID, userID).Errorw("Voice XP award failed", "error", err)
		}
	}
}

func (r *Router) HandleChannelDelete(ctx context.Context, channelID string) {
	r.observe("channel_delete")
	if err := r.tickets.ChannelDeleted(ctx, channelID); err != nil {
		logging.Error("Could not mark ticket deleted", "channel_id", channelID, "error", err)
	}
}

// HandleComponent dispatches on the custom id prefix
func (r *Router) HandleComponent(ctx context.Context, in Interaction) Reply {
	r.observe("interaction_create")
	switch {
	case strings.HasPrefix(in.CustomID, "poll_"):
		return r.handlePoll(ctx, in)
	case strings.HasPrefix(in.CustomID, "ticket_"):
		return r.handleTicket(ctx, in)
	default:
		return ephemeral(constants.MsgUnknownInteraction)
	}
}

// parsePollCustomID splits poll_<action>_<id>[_<option>]. The option is the
// remainder and may contain underscores.
func parsePollCustomID(customID string) (action, pollID, option string, ok bool) {
	parts := strings.SplitN(customID, "_", 4)
	if len(parts) < 3 || parts[0] != "poll" || parts[2] == "" {
		return "", "", "", false
	}
	if len(parts) == 4 {
		option = parts[3]
	}
	return parts[1], parts[2], option, true
}

func (r *Router) handlePoll(ctx context.Context, in Interaction) Reply {
	action, rawID, option, ok := parsePollCustomID(in.CustomID)
	if !ok {
		return ephemeral(constants.MsgUnknownInteraction)
	}
	if !r.polls.Enabled() {
		return ephemeral(constants.MsgPollsDisabled)
	}
	pollID, err := services.ParsePollID(rawID)
	if err != nil {
		return ephemeral(constants.MsgPollNotFound)
	}
	log := logging.WithGuild("polls", in.GuildID, in.UserID)

	switch action {
	case "vote":
		if option == "" && len(in.Values) > 0 {
			option = in.Values[0]
		}
		if err := r.polls.Vote(ctx, pollID, in.UserID, option, in.Roles); err != nil {
			if errors.Is(err, services.ErrTransient) {
				log.Errorw("Vote failed", "poll_id", rawID, "error", err)
			}
			return pollErrorReply(err)
		}
		log.Infow("Vote recorded", "poll_id", rawID)
		return ephemeral(fmt.Sprintf(constants.MsgVoteRecorded, option))

	case "results":
		tally, err := r.polls.Tally(ctx, pollID)
		if err != nil {
			return pollErrorReply(err)
		}
		return ephemeral(ResultsText(tally))

	case "end":
		if !in.CanManageMessages {
			return ephemeral(constants.MsgPollEndForbidden)
		}
		if _, err := r.polls.End(ctx, pollID); err != nil {
			log.Errorw("Ending poll failed", "poll_id", rawID, "error", err)
			return pollErrorReply(err)
		}
		log.Infow("Poll ended by member", "poll_id", rawID)
		return ephemeral(constants.MsgPollEndedOK)
	}
	return ephemeral(constants.MsgUnknownInteraction)
}

func pollErrorReply(err error) Reply {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return ephemeral(constants.MsgPollNotFound)
	case errors.Is(err, services.ErrExpired):
		return ephemeral(constants.MsgPollEnded)
	case errors.Is(err, services.ErrForbidden):
		return ephemeral(constants.MsgPollRoleRequired)
	case errors.Is(err, services.ErrAlreadyVoted):
		return ephemeral(constants.MsgAlreadyVoted)
	case errors.Is(err, services.ErrInvalidOption):
		return ephemeral(constants.MsgInvalidOption)
	default:
		return ephemeral(constants.MsgSomethingWentWrong)
	}
}

func (r *Router) handleTicket(ctx context.Context, in Interaction) Reply {
	log := logging.WithGuild("tickets", in.GuildID, in.UserID)

	switch in.CustomID {
	case constants.CustomIDTicketCreate:
		if !r.tickets.Enabled() {
			return ephemeral(constants.MsgTicketsDisabled)
		}
		t, err := r.tickets.CreateTicket(ctx, in.GuildID, in.UserID, in.ParentID)
		if errors.Is(err, services.ErrConflict) && t != nil {
			return ephemeral(fmt.Sprintf(constants.MsgTicketExists, t.ChannelID))
		}
		if err != nil {
			log.Errorw("Ticket creation failed", "error", err)
			return ephemeral(constants.MsgSomethingWentWrong)
		}
		r.welcome(ctx, t)
		return ephemeral(fmt.Sprintf(constants.MsgTicketCreated, t.ChannelID))

	case constants.CustomIDTicketClose:
		if _, err := r.tickets.CloseTicket(ctx, in.ChannelID); err != nil {
			return ticketErrorReply(log, err, constants.MsgTicketNotOpen)
		}
		return Reply{Content: fmt.Sprintf(constants.MsgTicketClosed, in.UserID), Buttons: ticketClosedButtons()}

	case constants.CustomIDTicketReopen:
		if _, err := r.tickets.ReopenTicket(ctx, in.ChannelID); err != nil {
			return ticketErrorReply(log, err, constants.MsgTicketNotClosed)
		}
		return Reply{Content: constants.MsgTicketReopened, Buttons: ticketOpenButtons()}

	case constants.CustomIDTicketDelete:
		if _, err := r.tickets.Get(ctx, in.ChannelID); err != nil {
			return ticketErrorReply(log, err, constants.MsgTicketNotFound)
		}
		channelID := in.ChannelID
		reply := ephemeral(constants.MsgTicketDeleting)
		reply.after = func(ctx context.Context) {
			if _, err := r.tickets.DeleteTicket(ctx, channelID); err != nil {
				log.Errorw("Ticket deletion failed", "channel_id", channelID, "error", err)
			}
		}
		return reply
	}
	return ephemeral(constants.MsgUnknownInteraction)
}

func (r *Router) welcome(ctx context.Context, t *gormModels.Ticket) {
	_, err := r.transport.SendComplex(ctx, t.ChannelID, providers.OutboundMessage{
		Content:    fmt.Sprintf(constants.MsgTicketWelcome, t.UserID),
		ButtonRows: ticketOpenButtons(),
	})
	if err != nil {
		logging.WithGuild("tickets", t.GuildID, t.UserID).Warnw("Ticket welcome message failed", "channel_id", t.ChannelID, "error", err)
	}
}

func ticketErrorReply(log interface {
	Errorw(msg string, keysAndValues ...interface{})
}, err error, invalidState string) Reply {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return ephemeral(constants.MsgTicketNotFound)
	case errors.Is(err, services.ErrInvalidState):
		return ephemeral(invalidState)
	case errors.Is(err, services.ErrConflict):
		return ephemeral(constants.MsgTicketOtherOpen)
	default:
		log.Errorw("Ticket action failed", "error", err)
		return ephemeral(constants.MsgSomethingWentWrong)
	}
}

// pollEnded rewrites the poll message without its components
func (r *Router) pollEnded(ctx context.Context, ev dtos.PollEndedEvent) {
	if ev.MessageID == "" {
		return
	}
	if err := r.transport.EditMessage(ctx, ev.ChannelID, ev.MessageID, EndedPollMessage(ev)); err != nil {
		logging.Warn("Could not update ended poll message", "poll_id", ev.PollID, "message_id", ev.MessageID, "error", err)
	}
}
