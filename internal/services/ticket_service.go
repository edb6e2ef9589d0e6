package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"crenors/guildbot/internal/clock"
	"crenors/guildbot/internal/common"
	"crenors/guildbot/internal/config"
	"crenors/guildbot/internal/constants"
	"crenors/guildbot/internal/db/repositories"
	"crenors/guildbot/internal/logging"
	"crenors/guildbot/internal/metrics"
	"crenors/guildbot/internal/models/dtos"
	gormModels "crenors/guildbot/internal/models/gorm"
	"crenors/guildbot/internal/providers"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

type TicketServiceConfig struct {
	Tickets   *repositories.TicketRepo
	Transport providers.Transport
	Config    ConfigSource
	Metrics   *metrics.MetricsRegistry
	Clock     clock.Clock
}

// TicketService enforces one open ticket per member and the
// open, closed and deleted lifecycle
type TicketService struct {
	tickets   *repositories.TicketRepo
	transport providers.Transport
	store     ConfigSource
	metrics   *metrics.MetricsRegistry
	clock     clock.Clock
	locks     *common.KeyedMutex

	cfgMu sync.RWMutex
	cfg   config.TicketsConfig

	// counters is the last ticket number handed out per guild, seeded from the store
	counterMu sync.Mutex
	counters  map[string]int
}

func NewTicketService(c TicketServiceConfig) *TicketService {
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	s := &TicketService{
		tickets:   c.Tickets,
		transport: c.Transport,
		store:     c.Config,
		metrics:   c.Metrics,
		clock:     c.Clock,
		locks:     common.NewKeyedMutex(),
		counters:  make(map[string]int),
	}
	s.ApplyConfig(c.Config.Current())
	c.Config.Subscribe(s)
	return s
}

func (s *TicketService) ApplyConfig(cfg config.Config) {
	s.cfgMu.Lock()
	s.cfg = cfg.Modules.Tickets
	s.cfgMu.Unlock()
}

func (s *TicketService) settings() config.TicketsConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

func (s *TicketService) Enabled() bool {
	return s.settings().Enabled
}

func memberLockKey(guildID, userID string) string {
	return "ticket:" + guildID + ":" + userID
}

// CreateTicket opens a private ticket-N channel for the member. The
// configured category is used when set, parentID otherwise.
func (s *TicketService) CreateTicket(ctx context.Context, guildID, userID, parentID string) (*gormModels.Ticket, error) {
	unlock := s.locks.Lock(memberLockKey(guildID, userID))
	defer unlock()

	existing, err := s.tickets.FindOpen(ctx, guildID, userID)
	if err != nil {
		return nil, transient("checking open tickets", err)
	}
	if existing != nil {
		return existing, fmt.Errorf("member %s already has ticket %s: %w", userID, existing.ChannelID, ErrConflict)
	}

	number, err := s.nextNumber(ctx, guildID)
	if err != nil {
		return nil, transient("allocating ticket number", err)
	}
	if category := s.settings().Category; category != "" {
		parentID = category
	}

	channelID, err := s.transport.CreateChannel(ctx, guildID, providers.ChannelSpec{
		Name:         fmt.Sprintf("ticket-%d", number),
		ParentID:     parentID,
		Topic:        fmt.Sprintf("Support ticket for <@%s>", userID),
		Private:      true,
		AllowUserIDs: []string{userID},
	})
	if err != nil {
		return nil, transient("creating ticket channel", err)
	}

	ticket := &gormModels.Ticket{
		ID:        uuid.NewString(),
		Number:    number,
		GuildID:   guildID,
		ChannelID: channelID,
		UserID:    userID,
		Status:    constants.TicketOpen,
		CreatedAt: s.clock.Now(),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		if delErr := s.transport.DeleteChannel(ctx, channelID); delErr != nil {
			logging.WithGuild("tickets", guildID, userID).Errorw("Orphaned ticket channel", "channel_id", channelID, "error", delErr)
		}
		return nil, transient("storing ticket", err)
	}

	s.metrics.TicketTransitionsTotal.WithLabelValues("created").Inc()
	logging.WithGuild("tickets", guildID, userID).Infow("Ticket created", "ticket_id", ticket.ID, "channel_id", channelID, "number", number)
	return ticket, nil
}

func (s *TicketService) nextNumber(ctx context.Context, guildID string) (int, error) {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()

	last, ok := s.counters[guildID]
	if !ok {
		highest, err := s.tickets.MaxNumber(ctx, guildID)
		if err != nil {
			return 0, err
		}
		last = highest
	}
	last++
	s.counters[guildID] = last
	return last, nil
}

// Get returns the ticket bound to channelID
func (s *TicketService) Get(ctx context.Context, channelID string) (*gormModels.Ticket, error) {
	t, err := s.tickets.GetByChannel(ctx, channelID)
	if err != nil {
		return nil, transient("loading ticket", err)
	}
	if t == nil {
		return nil, fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	return t, nil
}

// CloseTicket captures the transcript, stores it with the closed status and
// forwards it to the transcript channel when one is configured.
func (s *TicketService) CloseTicket(ctx context.Context, channelID string) (*gormModels.Ticket, error) {
	t, err := s.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if t.Status != constants.TicketOpen {
		return t, fmt.Errorf("ticket %s is %s: %w", t.ID, t.Status, ErrInvalidState)
	}

	transcript := s.captureTranscript(ctx, t)
	closedAt := s.clock.Now()
	moved, err := s.tickets.Transition(ctx, t.ID, constants.TicketOpen, constants.TicketClosed, map[string]interface{}{
		"closed_at":  closedAt,
		"transcript": transcript,
	})
	if err != nil {
		return nil, transient("closing ticket", err)
	}
	if !moved {
		return t, fmt.Errorf("ticket %s changed state concurrently: %w", t.ID, ErrInvalidState)
	}
	t.Status = constants.TicketClosed
	t.ClosedAt = &closedAt
	t.Transcript = &transcript

	s.metrics.TicketTransitionsTotal.WithLabelValues("closed").Inc()
	s.forwardTranscript(ctx, t, transcript)
	return t, nil
}

// captureTranscript renders the newest messages oldest first, one line each.
// A fetch failure yields the failure placeholder instead of an error.
func (s *TicketService) captureTranscript(ctx context.Context, t *gormModels.Ticket) string {
	msgs, err := s.transport.FetchRecentMessages(ctx, t.ChannelID, constants.TranscriptMessageLimit)
	if err != nil {
		logging.WithGuild("tickets", t.GuildID, t.UserID).Warnw("Transcript capture failed", "channel_id", t.ChannelID, "error", err)
		return constants.TranscriptFailed
	}
	return FormatTranscript(msgs)
}

// FormatTranscript renders messages as "[RFC3339] author: content" lines
func FormatTranscript(msgs []providers.ChannelMessage) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", m.Timestamp.UTC().Format(time.RFC3339), m.AuthorTag, m.Content))
	}
	return strings.Join(lines, "\n")
}

func (s *TicketService) forwardTranscript(ctx context.Context, t *gormModels.Ticket, transcript string) {
	channel := s.settings().TranscriptChannel
	if channel == "" {
		return
	}
	fileName := fmt.Sprintf("ticket-%d-transcript.txt", t.Number)
	content := fmt.Sprintf(constants.MsgTranscriptHeader, t.Number, t.UserID)
	if err := s.transport.SendFile(ctx, channel, content, fileName, []byte(transcript)); err != nil {
		logging.WithGuild("tickets", t.GuildID, t.UserID).Warnw("Transcript forward failed", "transcript_channel", channel, "error", err)
	}
}

// ReopenTicket moves a closed ticket back to open. The member must not have
// opened another ticket in the meantime.
func (s *TicketService) ReopenTicket(ctx context.Context, channelID string) (*gormModels.Ticket, error) {
	t, err := s.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if t.Status != constants.TicketClosed {
		return t, fmt.Errorf("ticket %s is %s: %w", t.ID, t.Status, ErrInvalidState)
	}

	unlock := s.locks.Lock(memberLockKey(t.GuildID, t.UserID))
	defer unlock()

	other, err := s.tickets.FindOpen(ctx, t.GuildID, t.UserID)
	if err != nil {
		return nil, transient("checking open tickets", err)
	}
	if other != nil {
		return t, fmt.Errorf("member %s already has ticket %s open: %w", t.UserID, other.ChannelID, ErrConflict)
	}

	moved, err := s.tickets.Transition(ctx, t.ID, constants.TicketClosed, constants.TicketOpen, map[string]interface{}{
		"closed_at":            nil,
		"auto_close_warned_at": nil,
	})
	if err != nil {
		return nil, transient("reopening ticket", err)
	}
	if !moved {
		return t, fmt.Errorf("ticket %s changed state concurrently: %w", t.ID, ErrInvalidState)
	}
	t.Status = constants.TicketOpen
	t.ClosedAt = nil
	t.AutoCloseWarnedAt = nil

	s.metrics.TicketTransitionsTotal.WithLabelValues("reopened").Inc()
	return t, nil
}

// DeleteTicket removes the channel and marks the ticket deleted. Deleting a
// deleted ticket is a no-op.
func (s *TicketService) DeleteTicket(ctx context.Context, channelID string) (*gormModels.Ticket, error) {
	t, err := s.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if t.Status == constants.TicketDeleted {
		return t, nil
	}

	if err := s.transport.DeleteChannel(ctx, channelID); err != nil {
		return nil, transient("deleting ticket channel", err)
	}
	if _, err := s.tickets.MarkDeleted(ctx, t.ID); err != nil {
		return nil, transient("marking ticket deleted", err)
	}
	t.Status = constants.TicketDeleted
	s.metrics.TicketTransitionsTotal.WithLabelValues("deleted").Inc()
	return t, nil
}

// ChannelDeleted marks the channel's ticket deleted, if there is one
func (s *TicketService) ChannelDeleted(ctx context.Context, channelID string) error {
	t, err := s.tickets.GetByChannel(ctx, channelID)
	if err != nil {
		return transient("loading ticket", err)
	}
	if t == nil || t.Status == constants.TicketDeleted {
		return nil
	}
	changed, err := s.tickets.MarkDeleted(ctx, t.ID)
	if err != nil {
		return transient("marking ticket deleted", err)
	}
	if changed {
		s.metrics.TicketTransitionsTotal.WithLabelValues("deleted").Inc()
	}
	return nil
}

// SweepAutoClose warns every open ticket older than the configured age once
// per open period. Tickets are never closed by the sweep.
func (s *TicketService) SweepAutoClose(ctx context.Context) (int, error) {
	cfg := s.settings()
	if !cfg.Enabled || !cfg.AutoClose.Enabled || cfg.AutoClose.Time <= 0 {
		return 0, nil
	}

	now := s.clock.Now()
	cutoff := now.Add(-time.Duration(cfg.AutoClose.Time) * time.Hour)
	stale, err := s.tickets.ListOpenUnwarnedBefore(ctx, cutoff)
	if err != nil {
		return 0, transient("listing stale tickets", err)
	}

	warned, failed := 0, 0
	for _, t := range stale {
		content := fmt.Sprintf(constants.MsgTicketAutoClose, humanize.RelTime(t.CreatedAt, now, "ago", "from now"))
		if _, err := s.transport.SendMessage(ctx, t.ChannelID, content); err != nil {
			failed++
			logging.WithGuild("tickets", t.GuildID, t.UserID).Warnw("Auto-close warning failed", "channel_id", t.ChannelID, "error", err)
			continue
		}
		if err := s.tickets.MarkWarned(ctx, t.ID, now); err != nil {
			failed++
			logging.WithGuild("tickets", t.GuildID, t.UserID).Errorw("Could not record auto-close warning", "ticket_id", t.ID, "error", err)
			continue
		}
		warned++
	}
	if failed > 0 {
		return warned, fmt.Errorf("%d of %d auto-close warnings failed", failed, len(stale))
	}
	return warned, nil
}

func (s *TicketService) Stats(ctx context.Context, guildID string) (*dtos.TicketStats, error) {
	counts, err := s.tickets.CountByStatus(ctx, guildID)
	if err != nil {
		return nil, transient("counting tickets", err)
	}
	stats := &dtos.TicketStats{
		GuildID: guildID,
		Open:    counts[constants.TicketOpen],
		Closed:  counts[constants.TicketClosed],
		Deleted: counts[constants.TicketDeleted],
	}
	stats.Total = stats.Open + stats.Closed + stats.Deleted
	return stats, nil
}

// UpdateSettings changes the ticket settings. Nil fields are left as they are.
func (s *TicketService) UpdateSettings(ctx context.Context, req dtos.TicketSettingsRequest) (config.TicketsConfig, error) {
	if req.AutoCloseHours != nil && *req.AutoCloseHours <= 0 {
		return config.TicketsConfig{}, fmt.Errorf("auto-close hours must be positive: %w", ErrValidation)
	}
	err := s.store.Update(func(cfg *config.Config) {
		t := &cfg.Modules.Tickets
		if req.Category != nil {
			t.Category = *req.Category
		}
		if req.TranscriptChannel != nil {
			t.TranscriptChannel = *req.TranscriptChannel
		}
		if req.AutoCloseEnabled != nil {
			t.AutoClose.Enabled = *req.AutoCloseEnabled
		}
		if req.AutoCloseHours != nil {
			t.AutoClose.Time = *req.AutoCloseHours
		}
	})
	if err != nil {
		return config.TicketsConfig{}, transient("saving ticket settings", err)
	}
	return s.settings(), nil
}
