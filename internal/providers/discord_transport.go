package providers

import (
	"bytes"
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const textPermissions = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionReadMessageHistory |
	discordgo.PermissionAttachFiles

// DiscordTransport implements Transport over a discordgo session
type DiscordTransport struct {
	session *discordgo.Session
}

var _ Transport = (*DiscordTransport)(nil)

func NewDiscordTransport(session *discordgo.Session) *DiscordTransport {
	return &DiscordTransport{session: session}
}

func (d *DiscordTransport) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	msg, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("sending message to %s: %w", channelID, err)
	}
	return msg.ID, nil
}

func (d *DiscordTransport) SendComplex(ctx context.Context, channelID string, out OutboundMessage) (string, error) {
	msg, err := d.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    out.Content,
		Components: Components(out),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("sending message to %s: %w", channelID, err)
	}
	return msg.ID, nil
}

func (d *DiscordTransport) EditMessage(ctx context.Context, channelID, messageID string, out OutboundMessage) error {
	edit := discordgo.NewMessageEdit(channelID, messageID).SetContent(out.Content)
	components := Components(out)
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	edit.Components = &components

	if _, err := d.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("editing message %s: %w", messageID, err)
	}
	return nil
}

func (d *DiscordTransport) SendFile(ctx context.Context, channelID, content, fileName string, data []byte) error {
	_, err := d.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		Files: []*discordgo.File{{
			Name:        fileName,
			ContentType: "text/plain",
			Reader:      bytes.NewReader(data),
		}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sending %s to %s: %w", fileName, channelID, err)
	}
	return nil
}

func (d *DiscordTransport) GrantRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := d.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("granting role %s to %s: %w", roleID, userID, err)
	}
	return nil
}

// MemberRoles prefers the gateway state cache and falls back to REST
func (d *DiscordTransport) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	if d.session.State != nil {
		if m, err := d.session.State.Member(guildID, userID); err == nil {
			return append([]string(nil), m.Roles...), nil
		}
	}
	m, err := d.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetching member %s: %w", userID, err)
	}
	return m.Roles, nil
}

func (d *DiscordTransport) CreateChannel(ctx context.Context, guildID string, spec ChannelSpec) (string, error) {
	data := discordgo.GuildChannelCreateData{
		Name:     spec.Name,
		Type:     discordgo.ChannelTypeGuildText,
		Topic:    spec.Topic,
		ParentID: spec.ParentID,
	}
	if spec.Private {
		// The @everyone role shares the guild id.
		data.PermissionOverwrites = []*discordgo.PermissionOverwrite{{
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		}}
		allowed := append([]string(nil), spec.AllowUserIDs...)
		if d.session.State != nil && d.session.State.User != nil {
			allowed = append(allowed, d.session.State.User.ID)
		}
		for _, id := range allowed {
			data.PermissionOverwrites = append(data.PermissionOverwrites, &discordgo.PermissionOverwrite{
				ID:    id,
				Type:  discordgo.PermissionOverwriteTypeMember,
				Allow: textPermissions,
			})
		}
	}

	ch, err := d.session.GuildChannelCreateComplex(guildID, data, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("creating channel %s: %w", spec.Name, err)
	}
	return ch.ID, nil
}

func (d *DiscordTransport) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := d.session.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("deleting channel %s: %w", channelID, err)
	}
	return nil
}

func (d *DiscordTransport) FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]ChannelMessage, error) {
	msgs, err := d.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetching messages of %s: %w", channelID, err)
	}

	// The API answers newest first.
	out := make([]ChannelMessage, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		tag := "unknown"
		if m.Author != nil {
			tag = m.Author.String()
		}
		out = append(out, ChannelMessage{
			ID:        m.ID,
			AuthorTag: tag,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	return out, nil
}

// Components converts an OutboundMessage into discordgo action rows
func Components(out OutboundMessage) []discordgo.MessageComponent {
	if out.ClearComponents {
		return nil
	}
	var rows []discordgo.MessageComponent
	for _, row := range out.ButtonRows {
		items := make([]discordgo.MessageComponent, 0, len(row))
		for _, b := range row {
			items = append(items, discordgo.Button{
				CustomID: b.CustomID,
				Label:    b.Label,
				Style:    buttonStyle(b.Style),
			})
		}
		rows = append(rows, discordgo.ActionsRow{Components: items})
	}
	if out.Select != nil {
		opts := make([]discordgo.SelectMenuOption, 0, len(out.Select.Options))
		for _, o := range out.Select.Options {
			opts = append(opts, discordgo.SelectMenuOption{Label: truncate(o, 100), Value: truncate(o, 100)})
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    out.Select.CustomID,
				Placeholder: out.Select.Placeholder,
				Options:     opts,
			},
		}})
	}
	return rows
}

func buttonStyle(s ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case ButtonSecondary:
		return discordgo.SecondaryButton
	case ButtonSuccess:
		return discordgo.SuccessButton
	case ButtonDanger:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
