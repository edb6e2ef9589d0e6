package bot

import (
	"context"
	"fmt"
	"time"

	"crenors/guildbot/internal/logging"
	"crenors/guildbot/internal/providers"

	"github.com/bwmarrin/discordgo"
)

// eventTimeout bounds the store and transport work done for one gateway event
const eventTimeout = 15 * time.Second

// Intents the router needs. Message content is not read.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildVoiceStates

// Gateway subscribes the router to a discordgo session. discordgo runs each
// handler on its own goroutine, so events for different members proceed in
// parallel.
type Gateway struct {
	session *discordgo.Session
	router  *Router
	status  string
	base    context.Context
}

// NewGateway registers every handler on session. base is the parent of each
// event's context; cancelling it aborts in-flight work on shutdown.
func NewGateway(base context.Context, session *discordgo.Session, router *Router, status string) *Gateway {
	g := &Gateway{session: session, router: router, status: status, base: base}
	session.Identify.Intents = Intents

	session.AddHandler(g.onReady)
	session.AddHandler(g.onMessageCreate)
	session.AddHandler(g.onMemberAdd)
	session.AddHandler(g.onMemberRemove)
	session.AddHandler(g.onVoiceStateUpdate)
	session.AddHandler(g.onInteractionCreate)
	session.AddHandler(g.onChannelDelete)
	return g
}

func (g *Gateway) Open() error {
	if err := g.session.Open(); err != nil {
		return fmt.Errorf("opening gateway session: %w", err)
	}
	return nil
}

func (g *Gateway) Close() error {
	return g.session.Close()
}

func (g *Gateway) eventContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(g.base, eventTimeout)
}

func (g *Gateway) onReady(s *discordgo.Session, r *discordgo.Ready) {
	logging.Info("Gateway ready", "user", r.User.String(), "guilds", len(r.Guilds))
	if g.status == "" {
		return
	}
	if err := s.UpdateCustomStatus(g.status); err != nil {
		logging.Warn("Could not set presence", "error", err)
	}
}

func (g *Gateway) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	ctx, cancel := g.eventContext()
	defer cancel()
	g.router.HandleMessage(ctx, MessageEvent{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		Bot:       m.Author.Bot,
	})
}

func (g *Gateway) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil {
		return
	}
	ctx, cancel := g.eventContext()
	defer cancel()
	g.router.HandleMemberJoin(ctx, m.GuildID, m.User.ID, m.User.Bot)
}

func (g *Gateway) onMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.User == nil {
		return
	}
	ctx, cancel := g.eventContext()
	defer cancel()
	g.router.HandleMemberLeave(ctx, m.GuildID, m.User.ID)
}

func (g *Gateway) onVoiceStateUpdate(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	before := ""
	if v.BeforeUpdate != nil {
		before = v.BeforeUpdate.ChannelID
	}
	isBot := v.Member != nil && v.Member.User != nil && v.Member.User.Bot

	ctx, cancel := g.eventContext()
	defer cancel()
	g.router.HandleVoiceState(ctx, v.GuildID, v.UserID, before, v.ChannelID, isBot)
}

func (g *Gateway) onChannelDelete(_ *discordgo.Session, c *discordgo.ChannelDelete) {
	ctx, cancel := g.eventContext()
	defer cancel()
	g.router.HandleChannelDelete(ctx, c.ID)
}

func (g *Gateway) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent || i.Member == nil || i.Member.User == nil {
		return
	}
	data := i.MessageComponentData()

	in := Interaction{
		CustomID:          data.CustomID,
		GuildID:           i.GuildID,
		ChannelID:         i.ChannelID,
		UserID:            i.Member.User.ID,
		Roles:             i.Member.Roles,
		Values:            data.Values,
		CanManageMessages: i.Member.Permissions&discordgo.PermissionManageMessages != 0,
	}
	if s.State != nil {
		if ch, err := s.State.Channel(i.ChannelID); err == nil {
			in.ParentID = ch.ParentID
		}
	}

	ctx, cancel := g.eventContext()
	defer cancel()
	reply := g.router.HandleComponent(ctx, in)

	resp := &discordgo.InteractionResponseData{
		Content:    reply.Content,
		Components: providers.Components(providers.OutboundMessage{ButtonRows: reply.Buttons}),
	}
	if reply.Ephemeral {
		resp.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: resp,
	}, discordgo.WithContext(ctx))
	if err != nil {
		logging.WithGuild("bot", in.GuildID, in.UserID).Warnw("Interaction response failed", "custom_id", in.CustomID, "error", err)
	}
	reply.Finish(ctx)
}
