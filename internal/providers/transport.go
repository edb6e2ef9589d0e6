package providers

import (
	"context"
	"time"
)

// Transport is everything the state machines ask of the chat platform
type Transport interface {
	// SendMessage posts plain text and returns the new message id
	SendMessage(ctx context.Context, channelID, content string) (string, error)

	// SendComplex posts a message with components and returns its id
	SendComplex(ctx context.Context, channelID string, msg OutboundMessage) (string, error)

	// EditMessage replaces content and components of an existing message
	EditMessage(ctx context.Context, channelID, messageID string, msg OutboundMessage) error

	// SendFile posts content with one text attachment
	SendFile(ctx context.Context, channelID, content, fileName string, data []byte) error

	GrantRole(ctx context.Context, guildID, userID, roleID string) error

	// MemberRoles lists the role ids a member currently holds
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)

	// CreateChannel creates a text channel and returns its id
	CreateChannel(ctx context.Context, guildID string, spec ChannelSpec) (string, error)

	DeleteChannel(ctx context.Context, channelID string) error

	// FetchRecentMessages returns up to limit of the newest messages, oldest first
	FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]ChannelMessage, error)
}

// ChannelSpec describes a channel to create. When Private is set only the
// members in AllowUserIDs (and the bot) can see it.
type ChannelSpec struct {
	Name         string
	ParentID     string
	Topic        string
	Private      bool
	AllowUserIDs []string
}

type ChannelMessage struct {
	ID        string
	AuthorTag string
	Content   string
	Timestamp time.Time
}

type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota + 1
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
)

type Button struct {
	CustomID string
	Label    string
	Style    ButtonStyle
}

type SelectMenu struct {
	CustomID    string
	Placeholder string
	Options     []string
}

// OutboundMessage is a message with optional rows of buttons and an optional
// select menu. An empty message with ClearComponents removes all components.
type OutboundMessage struct {
	Content         string
	ButtonRows      [][]Button
	Select          *SelectMenu
	ClearComponents bool
}
