package services

import (
	"context"
	"errors"
	"fmt"
	"math"
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

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PollEndHandler is called once per poll, after it moved to ended
type PollEndHandler func(ctx context.Context, ev dtos.PollEndedEvent)

type PollServiceConfig struct {
	Polls   *repositories.PollRepo
	IDs     *snowflake.Node
	Config  ConfigSource
	Metrics *metrics.MetricsRegistry
	Clock   clock.Clock
}

// PollService runs polls from creation to their single end transition
type PollService struct {
	polls   *repositories.PollRepo
	ids     *snowflake.Node
	store   ConfigSource
	metrics *metrics.MetricsRegistry
	clock   clock.Clock
	locks   *common.KeyedMutex

	cfgMu sync.RWMutex
	cfg   config.PollsConfig

	// tracking holds the deadline of every active poll that has one
	trackMu  sync.Mutex
	tracking map[snowflake.ID]time.Time

	handlersMu sync.RWMutex
	handlers   []PollEndHandler
}

func NewPollService(c PollServiceConfig) *PollService {
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	s := &PollService{
		polls:    c.Polls,
		ids:      c.IDs,
		store:    c.Config,
		metrics:  c.Metrics,
		clock:    c.Clock,
		locks:    common.NewKeyedMutex(),
		tracking: make(map[snowflake.ID]time.Time),
	}
	s.ApplyConfig(c.Config.Current())
	c.Config.Subscribe(s)
	return s
}

func (s *PollService) ApplyConfig(cfg config.Config) {
	s.cfgMu.Lock()
	s.cfg = cfg.Modules.Polls
	s.cfgMu.Unlock()
}

func (s *PollService) settings() config.PollsConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Settings returns the current poll defaults
func (s *PollService) Settings() config.PollsConfig {
	return s.settings()
}

func (s *PollService) Enabled() bool {
	return s.settings().Enabled
}

func (s *PollService) OnEnd(h PollEndHandler) {
	s.handlersMu.Lock()
	s.handlers = append(s.handlers, h)
	s.handlersMu.Unlock()
}

// ParsePollID accepts the decimal form used in custom ids and URLs
func ParsePollID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("poll id %q: %w", raw, ErrNotFound)
	}
	return id, nil
}

// Create validates and stores a new active poll with no votes. Without a
// duration the poll never expires.
func (s *PollService) Create(ctx context.Context, req dtos.CreatePollRequest) (*gormModels.Poll, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("question is empty: %w", ErrValidation)
	}
	options := make([]string, 0, len(req.Options))
	for _, o := range req.Options {
		if o = strings.TrimSpace(o); o != "" {
			options = append(options, o)
		}
	}
	if len(options) < constants.MinPollOptions || len(options) > constants.MaxPollOptions {
		return nil, fmt.Errorf("a poll needs %d to %d options, got %d: %w",
			constants.MinPollOptions, constants.MaxPollOptions, len(options), ErrValidation)
	}

	var hours float64
	if req.DurationHours != nil {
		hours = *req.DurationHours
	}
	if hours < 0 || math.IsNaN(hours) || math.IsInf(hours, 0) {
		return nil, fmt.Errorf("duration %v hours: %w", hours, ErrValidation)
	}

	now := s.clock.Now()
	poll := &gormModels.Poll{
		ID:        s.ids.Generate(),
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		Question:  question,
		Options:   datatypes.NewJSONSlice(options),
		Status:    constants.PollActive,
		CreatedAt: now,
	}
	if hours > 0 {
		expires := now.Add(time.Duration(hours * float64(time.Hour)))
		poll.ExpiresAt = &expires
	}

	if err := s.polls.Create(ctx, poll); err != nil {
		return nil, transient("creating poll", err)
	}
	if poll.ExpiresAt != nil {
		s.track(poll.ID, *poll.ExpiresAt)
	}
	s.metrics.PollsCreatedTotal.Inc()
	logging.Info("Poll created", "poll_id", poll.ID.String(), "guild_id", poll.GuildID, "options", len(options))
	return poll, nil
}

// AttachMessage records the message the poll was posted as
func (s *PollService) AttachMessage(ctx context.Context, pollID snowflake.ID, messageID string) error {
	if err := s.polls.SetMessageID(ctx, pollID, messageID); err != nil {
		return transient("attaching poll message", err)
	}
	return nil
}

func (s *PollService) Get(ctx context.Context, pollID snowflake.ID) (*gormModels.Poll, error) {
	poll, err := s.polls.Get(ctx, pollID)
	if err != nil {
		return nil, transient("loading poll", err)
	}
	if poll == nil {
		return nil, fmt.Errorf("poll %s: %w", pollID, ErrNotFound)
	}
	return poll, nil
}

// ListByGuild returns the guild's polls, newest first. An empty status lists
// every poll.
func (s *PollService) ListByGuild(ctx context.Context, guildID string, status constants.PollStatus) ([]gormModels.Poll, error) {
	switch status {
	case "", constants.PollActive, constants.PollEnded:
	default:
		return nil, fmt.Errorf("unknown poll status %q: %w", status, ErrValidation)
	}
	polls, err := s.polls.ListByGuild(ctx, guildID, status)
	if err != nil {
		return nil, transient("listing polls", err)
	}
	return polls, nil
}

// Vote fills or, with allowMultiple, overwrites the user's single slot.
// Checks run in order: not found, expired, role, already voted, option.
func (s *PollService) Vote(ctx context.Context, pollID snowflake.ID, userID, option string, userRoles []string) error {
	err := s.vote(ctx, pollID, userID, option, userRoles)
	s.metrics.VotesTotal.WithLabelValues(voteResult(err)).Inc()
	return err
}

func (s *PollService) vote(ctx context.Context, pollID snowflake.ID, userID, option string, userRoles []string) error {
	poll, err := s.Get(ctx, pollID)
	if err != nil {
		return err
	}
	if poll.Status == constants.PollEnded || poll.ExpiredAt(s.clock.Now()) {
		return fmt.Errorf("poll %s: %w", pollID, ErrExpired)
	}

	cfg := s.settings()
	if cfg.RequireRole != "" && !toSet(userRoles)[cfg.RequireRole] {
		return fmt.Errorf("voting requires role %s: %w", cfg.RequireRole, ErrForbidden)
	}

	unlock := s.locks.Lock(pollID.String() + ":" + userID)
	defer unlock()

	if !cfg.AllowMultiple {
		existing, err := s.polls.GetVote(ctx, pollID, userID)
		if err != nil {
			return transient("loading vote", err)
		}
		if existing != nil {
			return fmt.Errorf("user %s in poll %s: %w", userID, pollID, ErrAlreadyVoted)
		}
	}
	if !poll.HasOption(option) {
		return fmt.Errorf("option %q: %w", option, ErrInvalidOption)
	}

	vote := &gormModels.PollVote{PollID: pollID, UserID: userID, Option: option}
	if cfg.AllowMultiple {
		if err := s.polls.UpsertVote(ctx, vote); err != nil {
			return transient("storing vote", err)
		}
		return nil
	}

	stored, err := s.polls.InsertVote(ctx, vote)
	if err != nil {
		return transient("storing vote", err)
	}
	if !stored {
		return fmt.Errorf("user %s in poll %s: %w", userID, pollID, ErrAlreadyVoted)
	}
	return nil
}

func voteResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidOption):
		return "invalid_option"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Tally counts votes per option in option order. Percentages are rounded
// and all zero when nobody voted.
func (s *PollService) Tally(ctx context.Context, pollID snowflake.ID) (*dtos.PollTally, error) {
	poll, err := s.polls.GetWithVotes(ctx, pollID)
	if err != nil {
		return nil, transient("loading poll", err)
	}
	if poll == nil {
		return nil, fmt.Errorf("poll %s: %w", pollID, ErrNotFound)
	}
	return TallyPoll(poll, s.clock.Now()), nil
}

// TallyPoll computes the tally of a poll loaded with its votes
func TallyPoll(poll *gormModels.Poll, now time.Time) *dtos.PollTally {
	counts := make(map[string]int, len(poll.Options))
	for _, v := range poll.Votes {
		counts[v.Option]++
	}
	total := len(poll.Votes)

	tally := &dtos.PollTally{
		PollID:     poll.ID.String(),
		Question:   poll.Question,
		Ended:      poll.Status == constants.PollEnded || poll.ExpiredAt(now),
		ExpiresAt:  poll.ExpiresAt,
		TotalVotes: total,
		Results:    make([]dtos.PollOptionResult, 0, len(poll.Options)),
	}
	for _, o := range poll.Options {
		pct := 0
		if total > 0 {
			pct = int(math.Round(100 * float64(counts[o]) / float64(total)))
		}
		tally.Results = append(tally.Results, dtos.PollOptionResult{Option: o, Votes: counts[o], Percentage: pct})
	}
	return tally
}

// End moves the poll to ended. Ending an ended poll is a no-op and does not
// notify subscribers again.
func (s *PollService) End(ctx context.Context, pollID snowflake.ID) (*gormModels.Poll, error) {
	return s.end(ctx, pollID, false)
}

func (s *PollService) end(ctx context.Context, pollID snowflake.ID, expired bool) (*gormModels.Poll, error) {
	poll, err := s.Get(ctx, pollID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	first, err := s.polls.MarkEnded(ctx, pollID, now)
	if err != nil {
		return nil, transient("ending poll", err)
	}
	s.untrack(pollID)
	if !first {
		return poll, nil
	}

	poll.Status = constants.PollEnded
	poll.EndedAt = &now
	reason := "manual"
	if expired {
		reason = "expired"
	}
	s.metrics.PollsEndedTotal.WithLabelValues(reason).Inc()
	logging.Info("Poll ended", "poll_id", pollID.String(), "guild_id", poll.GuildID, "reason", reason)

	ev := dtos.PollEndedEvent{
		PollID:    pollID.String(),
		GuildID:   poll.GuildID,
		ChannelID: poll.ChannelID,
		MessageID: poll.MessageID,
		Expired:   expired,
	}
	if tally, err := s.Tally(ctx, pollID); err == nil {
		ev.Tally = tally
	} else {
		logging.Warn("Could not tally ended poll", "poll_id", pollID.String(), "error", err)
	}

	s.handlersMu.RLock()
	handlers := append([]PollEndHandler(nil), s.handlers...)
	s.handlersMu.RUnlock()
	for _, h := range handlers {
		h(ctx, ev)
	}
	return poll, nil
}

// SweepExpired ends every tracked poll whose deadline has passed. Failures
// are logged and the poll stays tracked for the next sweep.
func (s *PollService) SweepExpired(ctx context.Context) (int, error) {
	now := s.clock.Now()

	s.trackMu.Lock()
	var due []snowflake.ID
	for id, expires := range s.tracking {
		if !now.Before(expires) {
			due = append(due, id)
		}
	}
	s.trackMu.Unlock()

	ended, failed := 0, 0
	for _, id := range due {
		if _, err := s.end(ctx, id, true); err != nil {
			if errors.Is(err, ErrNotFound) {
				s.untrack(id)
				continue
			}
			failed++
			logging.Error("Failed to end expired poll", "poll_id", id.String(), "error", err)
			continue
		}
		ended++
	}
	if failed > 0 {
		return ended, fmt.Errorf("%d of %d expired polls could not be ended", failed, len(due))
	}
	return ended, nil
}

// LoadActive rebuilds the tracking set from the store, used at startup
func (s *PollService) LoadActive(ctx context.Context) (int, error) {
	polls, err := s.polls.ListActiveWithExpiry(ctx)
	if err != nil {
		return 0, transient("loading active polls", err)
	}
	for _, p := range polls {
		s.track(p.ID, *p.ExpiresAt)
	}
	return len(polls), nil
}

func (s *PollService) Tracked() int {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()
	return len(s.tracking)
}

func (s *PollService) track(id snowflake.ID, expires time.Time) {
	s.trackMu.Lock()
	s.tracking[id] = expires
	s.trackMu.Unlock()
}

func (s *PollService) untrack(id snowflake.ID) {
	s.trackMu.Lock()
	delete(s.tracking, id)
	s.trackMu.Unlock()
}

// UpdateSettings changes the poll defaults. Nil fields are left as they are.
func (s *PollService) UpdateSettings(ctx context.Context, req dtos.PollSettingsRequest) (config.PollsConfig, error) {
	if req.DefaultDuration != nil && *req.DefaultDuration < 0 {
		return config.PollsConfig{}, fmt.Errorf("default duration must not be negative: %w", ErrValidation)
	}
	err := s.store.Update(func(cfg *config.Config) {
		p := &cfg.Modules.Polls
		if req.DefaultDuration != nil {
			p.DefaultDuration = *req.DefaultDuration
		}
		if req.AllowMultiple != nil {
			p.AllowMultiple = *req.AllowMultiple
		}
		if req.RequireRole != nil {
			p.RequireRole = *req.RequireRole
		}
	})
	if err != nil {
		return config.PollsConfig{}, transient("saving poll settings", err)
	}
	return s.settings(), nil
}
