package providers

import (
	"context"
	"fmt"
	"sync"
)

// FakeTransport records every outbound call in memory. Set the *Err fields
// to make the matching call fail.
type FakeTransport struct {
	mu sync.Mutex

	nextID int

	Sent     []SentMessage
	Edits    []SentMessage
	Files    []SentFile
	Grants   []RoleGrant
	Created  []CreatedChannel
	Deleted  []string
	Roles    map[string][]string
	Messages map[string][]ChannelMessage

	SendErr    error
	EditErr    error
	FileErr    error
	GrantErr   error
	RolesErr   error
	CreateErr  error
	DeleteErr  error
	HistoryErr error
}

type SentMessage struct {
	ChannelID string
	MessageID string
	Message   OutboundMessage
}

type SentFile struct {
	ChannelID string
	Content   string
	FileName  string
	Data      []byte
}

type RoleGrant struct {
	GuildID string
	UserID  string
	RoleID  string
}

type CreatedChannel struct {
	GuildID   string
	ChannelID string
	Spec      ChannelSpec
}

var _ Transport = (*FakeTransport)(nil)

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		Roles:    make(map[string][]string),
		Messages: make(map[string][]ChannelMessage),
	}
}

func memberKey(guildID, userID string) string { return guildID + ":" + userID }

func (f *FakeTransport) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *FakeTransport) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	return f.SendComplex(ctx, channelID, OutboundMessage{Content: content})
}

func (f *FakeTransport) SendComplex(_ context.Context, channelID string, msg OutboundMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return "", f.SendErr
	}
	id := f.id("msg")
	f.Sent = append(f.Sent, SentMessage{ChannelID: channelID, MessageID: id, Message: msg})
	return id, nil
}

func (f *FakeTransport) EditMessage(_ context.Context, channelID, messageID string, msg OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EditErr != nil {
		return f.EditErr
	}
	f.Edits = append(f.Edits, SentMessage{ChannelID: channelID, MessageID: messageID, Message: msg})
	return nil
}

func (f *FakeTransport) SendFile(_ context.Context, channelID, content, fileName string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FileErr != nil {
		return f.FileErr
	}
	f.Files = append(f.Files, SentFile{ChannelID: channelID, Content: content, FileName: fileName, Data: append([]byte(nil), data...)})
	return nil
}

func (f *FakeTransport) GrantRole(_ context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GrantErr != nil {
		return f.GrantErr
	}
	f.Grants = append(f.Grants, RoleGrant{GuildID: guildID, UserID: userID, RoleID: roleID})
	key := memberKey(guildID, userID)
	f.Roles[key] = append(f.Roles[key], roleID)
	return nil
}

func (f *FakeTransport) MemberRoles(_ context.Context, guildID, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RolesErr != nil {
		return nil, f.RolesErr
	}
	return append([]string(nil), f.Roles[memberKey(guildID, userID)]...), nil
}

// SetRoles replaces the roles a member holds
func (f *FakeTransport) SetRoles(guildID, userID string, roles ...string) {
	f.mu.Lock()
	f.Roles[memberKey(guildID, userID)] = roles
	f.mu.Unlock()
}

func (f *FakeTransport) CreateChannel(_ context.Context, guildID string, spec ChannelSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	id := f.id("chan")
	f.Created = append(f.Created, CreatedChannel{GuildID: guildID, ChannelID: id, Spec: spec})
	return id, nil
}

func (f *FakeTransport) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.Deleted = append(f.Deleted, channelID)
	return nil
}

func (f *FakeTransport) FetchRecentMessages(_ context.Context, channelID string, limit int) ([]ChannelMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HistoryErr != nil {
		return nil, f.HistoryErr
	}
	msgs := f.Messages[channelID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]ChannelMessage(nil), msgs...), nil
}

// Snapshot helpers return copies so tests can read without racing the code under test.

func (f *FakeTransport) SentMessages() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.Sent...)
}

func (f *FakeTransport) EditedMessages() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.Edits...)
}

func (f *FakeTransport) RoleGrants() []RoleGrant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RoleGrant(nil), f.Grants...)
}

func (f *FakeTransport) SentFiles() []SentFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentFile(nil), f.Files...)
}

func (f *FakeTransport) CreatedChannels() []CreatedChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CreatedChannel(nil), f.Created...)
}

func (f *FakeTransport) DeletedChannels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Deleted...)
}
