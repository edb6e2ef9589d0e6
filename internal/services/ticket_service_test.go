package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"crenors/guildbot/internal/config"
	"crenors/guildbot/internal/constants"
	"crenors/guildbot/internal/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ticketsEnabled(cfg *config.Config) {
	cfg.Modules.Tickets.Enabled = true
	cfg.Modules.Tickets.Category = "support-category"
}

func TestCreateTicket(t *testing.T) {
	f := newFixture(t, ticketsEnabled)
	ctx := context.Background()

	ticket, err := f.tickets.CreateTicket(ctx, guildA, userA, "")
	require.NoError(t, err)
	assert.Equal(t, 1, ticket.Number)
	assert.Equal(t, constants.TicketOpen, ticket.Status)
	assert.Len(t, ticket.ID, 36)

	created := f.transport.CreatedChannels()
	require.Len(t, created, 1)
	spec := created[0].Spec
	assert.Equal(t, "ticket-1", spec.Name)
	assert.Equal(t, "support-category", spec.ParentID)
	assert.True(t, spec.Private)
	assert.Equal(t, []string{userA}, spec.AllowUserIDs)
	assert.Equal(t, created[0].ChannelID, ticket.ChannelID)

	stored, err := f.tickets.Get(ctx, ticket.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, stored.ID)
}

func TestCreateTicket_OneOpenPerMember(t *testing.T) {
	f := newFixture(t, ticketsEnabled)
	ctx := context.Background()

	first, err := f.tickets.CreateTicket(ctx, guildA, userA, "")
	require.NoError(t, err)

	again, err := f.tickets.CreateTicket(ctx, guildA, userA, "")
	assert.ErrorIs(t, err, ErrConflict)
	require.NotNil(t, again)
	assert.Equal(t, first.ChannelID, again.ChannelID)
	assert.Len(t, f.transport.CreatedChannels(), 1)

	other, err := f.tickets.CreateTicket(ctx, guildA, userB, "panel-category")
	require.NoError(t, err)
	assert.Equal(t, 2, other.Number)
	assert.Equal(t, "support-category", f.transport.CreatedChannels()[1].Spec.ParentID, "configured category wins")
}

func TestCreateTicket_FallsBackToPanelParent(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Modules.Tickets.Enabled = true })

	_, err := f.tickets.CreateTicket(context.Background(), guildA, userA, "panel-category")
	require.NoError(t, err)
	assert.Equal(t, "panel-category", f.transport.CreatedChannels()[0].Spec.ParentID)
}

func TestCreateTicket_ConcurrentRequests(t *testing.T) {
	f := newFixture(t, ticketsEnabled)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tickets.CreateTicket(ctx, guildA, userA, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, ErrConflict)
	}
	assert.Equal(t, 1, created)
	assert.Len(t, f.transport.CreatedChannels(), 1)
}

func TestCreateTicket_NumberingSurvivesRestart(t *testing.T) {
	f := newFixture(t, ticketsEnabled)
	ctx := context.Background()

	for _, u := range []string{"u1", "u2", "u3"} {
		_, err := f.tickets.CreateTicket(ctx, guildA, u, "")
		require.NoError(t, err)
	}
	_, err := f.tickets.CreateTicket(ctx, "guild-b", "u1", "")
	require.NoError(t, err)

	restarted := NewTicketService(TicketServiceConfig{
		Tickets:   f.tickets.tickets,
		Transport: f.transport,
		Config:    f.store,
		Metrics:   f.tickets.metrics,
		Clock:     f.clock,
	})
	next, err := restarted.CreateTicket(ctx, guildA, "u4", "")
	require.NoError(t, err)
	assert.Equal(t, 4, next.Number)

	nextB, err := restarted.CreateTicket(ctx, "guild-b", "u2", "")
	require.NoError(t, err)
	assert.Equal(t, 2, nextB.Number, "numbering is per guild")
}

func TestCreateTicket_ChannelFailure(t *testing.T) {
	f := newFixture(t, ticketsEnabled)
	f.transport.CreateErr = errors.New("missing permissions")

	_, err := f.tickets.CreateTicket(context.Background(), guildA, userA, "")
	assert.ErrorIs(t, err, ErrTransient)

	f.transport.CreateErr = nil
	ticket, err := f.tickets.CreateTicket(context.Background(), guildA, userA, "")
	require.NoError(t, err, "a failed attempt leaves no open ticket behind")
	assert.Equal(t, 2, ticket.Number)
}

func TestCloseTicket_TranscriptAndForward(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		ticketsEnabled(cfg)
		cfg.Modules.Tickets.TranscriptChannel = "transcripts"
	})
	ctx := context.Background()

	ticket, err := f.tickets.CreateTicket(ctx, guildA, userA, "")
	require.NoError(t, err)
	f.transport.Messages[ticket.ChannelID] = []providers.ChannelMessage{
		{ID: "1", AuthorTag: "alice#0001", Content: "My game crashes", Timestamp: testEpoch.Add(time.Minute)},
		{ID: "2", AuthorTag: "helper#0002", Content: "Try reinstalling", Timestamp: testEpoch.Add(2 * time.Minute)},
	}

	f.clock.Advance(time.Hour)
	closed, err := f.tickets.CloseTicket(ctx, ticket.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, constants.TicketClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, testEpoch.Add(time.Hour), *closed.ClosedAt)

	want := "[2026-01-10T12:01:00Z] alice#0001: My game crashes\n[2026-01-10T12:02:00Z] helper#0002: Try reinstalling"
	require.NotNil(t, closed.Transcript)
	assert.Equal(t, want, *closed.Transcript)

	stored, err := f.tickets.Get(ctx, ticket.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, constants.TicketClosed, stored.Status)
	require.NotNil(t, stored.Transcript)
	assert.Equal(t, want, *stored.Transcript)

	files := f.transport.SentFiles()
	require.Len(t, files, 1)
	assert.Equal(t, "transcripts", files[0].ChannelID)
	assert.Equal(t, "ticket-1-transcript.txt", files[0].FileName)
	assert.Equal(t, want, string(files[0].Data))
	assert.Contains(t, files[0].Content, "#1")

	_, err = f.tickets.CloseTicket(ctx, ticket.ChannelID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Len(t, f.transport.SentFiles(), 1)
}

func TestCloseTicket_HistoryFailureUsesPlaceholder(t *testing.T) {
	f := newFixture(t, ticketsEnabled)
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, guildA, userA, "")
	require.NoError(t, err)

	f.transport.HistoryErr = errors.New("missing access")
	closed, err := f.tickets.CloseTicket(ctx, ticket.ChannelID)
	require.NoError(t, err)
	require.NotNil(t, closed.Transcript)
	assert.Equal(t, constants.TranscriptFailed, *closed.Transcript)
	assert.Empty(t, f.transport.SentFiles(), "no transcript channel configured")
}

func TestCloseTicket_UnknownChannel(t *testing.T) {
	f := newFixture(t, ticketsEnabled)
	_, err := f.tickets.CloseTicket(context.Background(), "not-a-ticket")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReopenTicket(t *testing.T) {
	f := newFixture(t, ticketsEnabled)
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, guildA, userA, "")
	require.NoError(t, err)

	_, err = f.tickets.ReopenTicket(ctx, ticket.ChannelID)
	assert.ErrorIs(t, err, ErrInvalidState, "an open ticket cannot be reopened")

	_, err = f.tickets.CloseTicket(ctx, ticket.ChannelID)
	require.NoError(t, err)

	reopened, err := f.tickets.ReopenTicket(ctx, ticket.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, constants.TicketOpen, reopened.Status)
	assert.Nil(t, reopened.ClosedAt)

	stored, err := f.tickets.Get(ctx, ticket.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, constants.TicketOpen, stored.Status)
	assert.Nil(t, stored.ClosedAt)

	_, err = f.tickets.CreateTicket(ctx, guildA, userA, "")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestReopenTicket_ConflictsWithNewerTicket(t *testing.T) {
	f := newFixture(t, ticketsEnabled)
	ctx := context.Background()
	old, err := f.tickets.CreateTicket(ctx, guildA, userA, "")
	require.NoError(t, err)
	_, err = f.tickets.CloseTicket(ctx, old.ChannelID)
	require.NoError(t, err)

	_, err = f.tickets.CreateTicket(ctx, guildA, userA, "")
	require.NoError(t, err, "a closed ticket does not block a new one")

	_, err = f.tickets.ReopenTicket(ctx, old.ChannelID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestDeleteTicket(t *testing.T) {
	f := newFixture(t, ticketsEnabled)
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, guildA, userA, "")
	require.NoError(t, err)
	_, err = f.tickets.CloseTicket(ctx, ticket.ChannelID)
	require.NoError(t, err)

	deleted, err := f.tickets.DeleteTicket(ctx, ticket.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, constants.TicketDeleted, deleted.Status)
	assert.Equal(t, []string{ticket.ChannelID}, f.transport.DeletedChannels())

	again, err := f.tickets.DeleteTicket(ctx, ticket.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, constants.TicketDeleted, again.Status)
	assert.Len(t, f.transport.DeletedChannels(), 1, "deleting twice is a no-op")

	_, err = f.tickets.ReopenTicket(ctx, ticket.ChannelID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestDeleteTicket_TransportFailure(t *testing.T) {
	f := newFixture(t, ticketsEnabled)
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, guildA, userA, "")
	require.NoError(t, err)

	f.transport.DeleteErr = errors.New("unknown channel")
	_, err = f.tickets.DeleteTicket(ctx, ticket.ChannelID)
	assert.ErrorIs(t, err, ErrTransient)

	stored, err := f.tickets.Get(ctx, ticket.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, constants.TicketOpen, stored.Status)
}

func TestChannelDeleted(t *testing.T) {
	f := newFixture(t, ticketsEnabled)
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, guildA, userA, "")
	require.NoError(t, err)

	require.NoError(t, f.tickets.ChannelDeleted(ctx, ticket.ChannelID))
	require.NoError(t, f.tickets.ChannelDeleted(ctx, ticket.ChannelID))
	require.NoError(t, f.tickets.ChannelDeleted(ctx, "unrelated-channel"))

	stored, err := f.tickets.Get(ctx, ticket.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, constants.TicketDeleted, stored.Status)

	_, err = f.tickets.CreateTicket(ctx, guildA, userA, "")
	require.NoError(t, err, "a deleted ticket frees the member's slot")
}

func TestSweepAutoClose_WarnsOnce(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		ticketsEnabled(cfg)
		cfg.Modules.Tickets.AutoClose = config.AutoCloseConfig{Enabled: true, Time: 24}
	})
	ctx := context.Background()

	stale, err := f.tickets.CreateTicket(ctx, guildA, userA, "")
	require.NoError(t, err)
	f.clock.Advance(12 * time.Hour)
	fresh, err := f.tickets.CreateTicket(ctx, guildA, userB, "")
	require.NoError(t, err)

	f.clock.Advance(13 * time.Hour)
	n, err := f.tickets.SweepAutoClose(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sent := f.transport.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, stale.ChannelID, sent[0].ChannelID)
	assert.True(t, strings.Contains(sent[0].Message.Content, "ago"), sent[0].Message.Content)

	n, err = f.tickets.SweepAutoClose(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a ticket is warned once per open period")

	stored, err := f.tickets.Get(ctx, stale.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, constants.TicketOpen, stored.Status, "the sweep never closes tickets")
	require.NotNil(t, stored.AutoCloseWarnedAt)

	f.clock.Advance(12 * time.Hour)
	n, err = f.tickets.SweepAutoClose(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, fresh.ChannelID, f.transport.SentMessages()[1].ChannelID)
}

func TestSweepAutoClose_Disabled(t *testing.T) {
	f := newFixture(t, ticketsEnabled)
	_, err := f.tickets.CreateTicket(context.Background(), guildA, userA, "")
	require.NoError(t, err)
	f.clock.Advance(100 * time.Hour)

	n, err := f.tickets.SweepAutoClose(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.transport.SentMessages())
}

func TestTicketStats(t *testing.T) {
	f := newFixture(t, ticketsEnabled)
	ctx := context.Background()

	a, err := f.tickets.CreateTicket(ctx, guildA, "u1", "")
	require.NoError(t, err)
	b, err := f.tickets.CreateTicket(ctx, guildA, "u2", "")
	require.NoError(t, err)
	_, err = f.tickets.CreateTicket(ctx, guildA, "u3", "")
	require.NoError(t, err)
	_, err = f.tickets.CloseTicket(ctx, a.ChannelID)
	require.NoError(t, err)
	_, err = f.tickets.DeleteTicket(ctx, b.ChannelID)
	require.NoError(t, err)

	stats, err := f.tickets.Stats(ctx, guildA)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Open)
	assert.Equal(t, 1, stats.Closed)
	assert.Equal(t, 1, stats.Deleted)

	empty, err := f.tickets.Stats(ctx, "quiet-guild")
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
}

func TestFormatTranscript(t *testing.T) {
	assert.Equal(t, "", FormatTranscript(nil))
	got := FormatTranscript([]providers.ChannelMessage{
		{AuthorTag: "bob", Content: "hi", Timestamp: time.Date(2026, 3, 1, 8, 30, 0, 0, time.FixedZone("CET", 3600))},
	})
	assert.Equal(t, "[2026-03-01T07:30:00Z] bob: hi", got)
}
