package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
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
)

// maxAwardAttempts bounds compare-and-swap retries when concurrent awards
// for the same member race across processes.
const maxAwardAttempts = 5

// LevelUpHandler is called after a level-up has been stored
type LevelUpHandler func(ctx context.Context, ev dtos.LevelUpEvent)

type LevelingServiceConfig struct {
	Users       *repositories.UserLevelRepo
	Leaderboard *repositories.LeaderboardRepo
	Transport   providers.Transport
	Cooldowns   common.CacheInterface
	Config      ConfigSource
	Metrics     *metrics.MetricsRegistry
	Clock       clock.Clock
}

// LevelingService owns XP accrual, levels, role rewards and boosters
type LevelingService struct {
	users     *repositories.UserLevelRepo
	board     *repositories.LeaderboardRepo
	transport providers.Transport
	cooldowns common.CacheInterface
	store     ConfigSource
	metrics   *metrics.MetricsRegistry
	clock     clock.Clock

	locks         *common.KeyedMutex
	cooldownLocks *common.KeyedMutex

	cfgMu sync.RWMutex
	cfg   config.LevelingConfig

	voiceMu sync.Mutex
	voice   map[voiceKey]time.Time

	handlersMu sync.RWMutex
	handlers   []LevelUpHandler
}

type voiceKey struct {
	guildID string
	userID  string
}

func NewLevelingService(c LevelingServiceConfig) *LevelingService {
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	s := &LevelingService{
		users:         c.Users,
		board:         c.Leaderboard,
		transport:     c.Transport,
		cooldowns:     c.Cooldowns,
		store:         c.Config,
		metrics:       c.Metrics,
		clock:         c.Clock,
		locks:         common.NewKeyedMutex(),
		cooldownLocks: common.NewKeyedMutex(),
		voice:         make(map[voiceKey]time.Time),
	}
	s.ApplyConfig(c.Config.Current())
	c.Config.Subscribe(s)
	return s
}

// ApplyConfig implements config.Subscriber
func (s *LevelingService) ApplyConfig(cfg config.Config) {
	s.cfgMu.Lock()
	s.cfg = cfg.Modules.Leveling
	s.cfgMu.Unlock()
}

func (s *LevelingService) settings() config.LevelingConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

func (s *LevelingService) Enabled() bool {
	return s.settings().Enabled
}

// OnLevelUp subscribes h to every future level-up
func (s *LevelingService) OnLevelUp(h LevelUpHandler) {
	s.handlersMu.Lock()
	s.handlers = append(s.handlers, h)
	s.handlersMu.Unlock()
}

// LevelFor maps a running total to its level
func LevelFor(totalXP int64) int {
	if totalXP < 0 {
		return 0
	}
	return int(totalXP / constants.LevelSize)
}

// AwardXP applies the member's effective multiplier to baseAmount and stores
// the result. A first award creates the record without a level-up.
func (s *LevelingService) AwardXP(ctx context.Context, guildID, userID string, baseAmount int64, source constants.XPSource) (*dtos.AwardResult, error) {
	if baseAmount < 0 {
		return nil, fmt.Errorf("base amount %d: %w", baseAmount, ErrValidation)
	}
	return s.award(ctx, guildID, userID, s.boosted(ctx, guildID, userID, baseAmount), source, 0)
}

func (s *LevelingService) boosted(ctx context.Context, guildID, userID string, base int64) int64 {
	return int64(math.Round(float64(base) * s.EffectiveMultiplier(ctx, guildID, userID)))
}

func (s *LevelingService) award(ctx context.Context, guildID, userID string, amount int64, source constants.XPSource, voiceMinutes int64) (*dtos.AwardResult, error) {
	res, err := s.persistAward(ctx, guildID, userID, amount, source, voiceMinutes)
	if err != nil {
		return nil, err
	}

	s.metrics.XPAwardedTotal.WithLabelValues(string(source)).Add(float64(amount))
	if res.LeveledUp {
		s.metrics.LevelUpsTotal.Inc()
		s.handleLevelUp(ctx, dtos.LevelUpEvent{
			GuildID:  guildID,
			UserID:   userID,
			OldLevel: res.OldLevel,
			NewLevel: res.NewLevel,
			NewTotal: res.NewTotal,
		})
	}
	return res, nil
}

func (s *LevelingService) persistAward(ctx context.Context, guildID, userID string, amount int64, source constants.XPSource, voiceMinutes int64) (*dtos.AwardResult, error) {
	unlock := s.locks.Lock(guildID + ":" + userID)
	defer unlock()

	var messages int64
	if source == constants.XPSourceMessage {
		messages = 1
	}
	now := s.clock.Now()
	result := &dtos.AwardResult{GuildID: guildID, UserID: userID, Source: source, Awarded: amount}

	for attempt := 0; attempt < maxAwardAttempts; attempt++ {
		rec, err := s.users.Get(ctx, guildID, userID)
		if err != nil {
			return nil, transient("loading xp record", err)
		}

		if rec == nil {
			created, err := s.users.CreateIfAbsent(ctx, &gormModels.UserLevel{
				GuildID:      guildID,
				UserID:       userID,
				XP:           amount,
				TotalXP:      amount,
				Level:        LevelFor(amount),
				MessageCount: messages,
				VoiceMinutes: voiceMinutes,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
			if err != nil {
				return nil, transient("creating xp record", err)
			}
			if created {
				result.NewTotal = amount
				result.NewLevel = LevelFor(amount)
				result.Created = true
				return result, nil
			}
			// Another writer created it first; retry as an update.
			continue
		}

		newTotal := rec.TotalXP + amount
		newLevel := LevelFor(newTotal)
		swapped, err := s.users.CompareAndSwapXP(ctx, guildID, userID, rec.TotalXP, repositories.XPDelta{
			NewTotal:     newTotal,
			NewLevel:     newLevel,
			Messages:     messages,
			VoiceMinutes: voiceMinutes,
			At:           now,
		})
		if err != nil {
			return nil, transient("updating xp record", err)
		}
		if !swapped {
			continue
		}

		result.OldLevel = rec.Level
		result.NewLevel = newLevel
		result.NewTotal = newTotal
		result.LeveledUp = newLevel > rec.Level
		return result, nil
	}
	return nil, fmt.Errorf("awarding xp to %s after %d attempts: %w", userID, maxAwardAttempts, ErrTransient)
}

// MessageAward grants the configured message XP unless the member earned
// message XP within the cooldown window. A nil result means the message was
// dropped by the cooldown.
func (s *LevelingService) MessageAward(ctx context.Context, guildID, userID string) (*dtos.AwardResult, error) {
	cfg := s.settings()
	if !s.takeCooldown(guildID, userID, time.Duration(cfg.CooldownSeconds)*time.Second) {
		s.metrics.CooldownDropsTotal.Inc()
		return nil, nil
	}
	return s.AwardXP(ctx, guildID, userID, cfg.MessageXP, constants.XPSourceMessage)
}

// takeCooldown reports whether the member is outside the window and, if so,
// starts a new window at now.
func (s *LevelingService) takeCooldown(guildID, userID string, window time.Duration) bool {
	if window <= 0 {
		return true
	}
	key := string(constants.CachePrefixCooldown) + guildID + ":" + userID
	unlock := s.cooldownLocks.Lock(key)
	defer unlock()

	now := s.clock.Now()
	if s.cooldowns.Add(key, now.UnixMilli(), window) {
		return true
	}
	if last, ok := s.cooldowns.Get(key); ok {
		if at, ok := unixMillis(last); ok && now.Sub(time.UnixMilli(at)) < window {
			return false
		}
	}
	s.cooldowns.Set(key, now.UnixMilli(), window)
	return true
}

// unixMillis accepts in-process values and values decoded from JSON.
func unixMillis(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// VoiceJoin starts tracking a member in voice. Joining while already tracked
// keeps the existing mark.
func (s *LevelingService) VoiceJoin(guildID, userID string) {
	s.voiceMu.Lock()
	defer s.voiceMu.Unlock()
	k := voiceKey{guildID, userID}
	if _, ok := s.voice[k]; !ok {
		s.voice[k] = s.clock.Now()
	}
	s.metrics.VoiceSessionsActive.Set(float64(len(s.voice)))
}

// VoiceLeave stops tracking and awards the remaining whole minutes, if any.
func (s *LevelingService) VoiceLeave(ctx context.Context, guildID, userID string) (*dtos.AwardResult, error) {
	s.voiceMu.Lock()
	k := voiceKey{guildID, userID}
	mark, ok := s.voice[k]
	delete(s.voice, k)
	s.metrics.VoiceSessionsActive.Set(float64(len(s.voice)))
	s.voiceMu.Unlock()

	if !ok {
		return nil, nil
	}
	minutes := int64(s.clock.Now().Sub(mark) / time.Minute)
	if minutes < 1 {
		return nil, nil
	}
	return s.awardVoice(ctx, guildID, userID, minutes)
}

// VoiceForget drops tracking without an award, used when a member leaves the guild.
func (s *LevelingService) VoiceForget(guildID, userID string) {
	s.voiceMu.Lock()
	delete(s.voice, voiceKey{guildID, userID})
	s.metrics.VoiceSessionsActive.Set(float64(len(s.voice)))
	s.voiceMu.Unlock()
}

func (s *LevelingService) TrackedVoice() int {
	s.voiceMu.Lock()
	defer s.voiceMu.Unlock()
	return len(s.voice)
}

type voiceDue struct {
	key     voiceKey
	minutes int64
}

// VoiceAccrual awards every tracked member for the whole minutes since their
// mark and advances the mark by exactly those minutes. It returns the number
// of awards stored.
func (s *LevelingService) VoiceAccrual(ctx context.Context) (int, error) {
	now := s.clock.Now()

	s.voiceMu.Lock()
	var due []voiceDue
	for k, mark := range s.voice {
		minutes := int64(now.Sub(mark) / time.Minute)
		if minutes < 1 {
			continue
		}
		s.voice[k] = mark.Add(time.Duration(minutes) * time.Minute)
		due = append(due, voiceDue{key: k, minutes: minutes})
	}
	s.voiceMu.Unlock()

	awarded, failed := 0, 0
	for _, d := range due {
		if _, err := s.awardVoice(ctx, d.key.guildID, d.key.userID, d.minutes); err != nil {
			failed++
			logging.WithGuild("leveling", d.key.guildID, d.key.userID).Errorw("Voice XP award failed", "minutes", d.minutes, "error", err)
			continue
		}
		awarded++
	}
	if failed > 0 {
		return awarded, fmt.Errorf("%d of %d voice awards failed", failed, len(due))
	}
	return awarded, nil
}

func (s *LevelingService) awardVoice(ctx context.Context, guildID, userID string, minutes int64) (*dtos.AwardResult, error) {
	base := s.settings().VoiceXP * minutes
	return s.award(ctx, guildID, userID, s.boosted(ctx, guildID, userID, base), constants.XPSourceVoice, minutes)
}

// MemberJoin creates a zeroed record for a new member; existing records are untouched.
func (s *LevelingService) MemberJoin(ctx context.Context, guildID, userID string) error {
	now := s.clock.Now()
	_, err := s.users.CreateIfAbsent(ctx, &gormModels.UserLevel{
		GuildID:   guildID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return transient("initializing member", err)
	}
	return nil
}

func (s *LevelingService) Stats(ctx context.Context, guildID, userID string) (*gormModels.UserLevel, error) {
	rec, err := s.users.Get(ctx, guildID, userID)
	if err != nil {
		return nil, transient("loading xp record", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("member %s in guild %s: %w", userID, guildID, ErrNotFound)
	}
	return rec, nil
}

// Rank is 1-based over total XP descending, ties broken by user id ascending.
func (s *LevelingService) Rank(ctx context.Context, guildID, userID string) (*dtos.RankInfo, error) {
	rec, err := s.Stats(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}
	rank, err := s.board.RankOf(ctx, guildID, userID, rec.TotalXP)
	if err != nil {
		return nil, transient("computing rank", err)
	}
	members, err := s.board.Members(ctx, guildID)
	if err != nil {
		return nil, transient("counting members", err)
	}
	return &dtos.RankInfo{
		GuildID:    guildID,
		UserID:     userID,
		Rank:       rank,
		Members:    members,
		TotalXP:    rec.TotalXP,
		Level:      rec.Level,
		ProgressXP: rec.ProgressXP(),
		NextLevel:  int64(rec.Level+1) * constants.LevelSize,
	}, nil
}

func (s *LevelingService) Leaderboard(ctx context.Context, guildID string, limit int) ([]dtos.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = constants.LeaderboardDefaultLimit
	}
	if limit > constants.LeaderboardMaxLimit {
		limit = constants.LeaderboardMaxLimit
	}
	entries, err := s.board.Top(ctx, guildID, limit)
	if err != nil {
		return nil, transient("loading leaderboard", err)
	}
	return entries, nil
}

// EffectiveMultiplier is the largest multiplier among active boosters that
// apply to the member, 1.0 if none do.
func (s *LevelingService) EffectiveMultiplier(ctx context.Context, guildID, userID string) float64 {
	now := s.clock.Now()
	best := 1.0
	var roleScoped []config.XPBooster
	for _, b := range s.settings().XPBoosters {
		if !b.Active(now) {
			continue
		}
		if b.RoleID == "" {
			best = math.Max(best, b.Multiplier)
			continue
		}
		roleScoped = append(roleScoped, b)
	}
	if len(roleScoped) == 0 {
		return best
	}

	roles, err := s.transport.MemberRoles(ctx, guildID, userID)
	if err != nil {
		logging.WithGuild("leveling", guildID, userID).Warnw("Could not load roles for boosters", "error", err)
		return best
	}
	held := toSet(roles)
	for _, b := range roleScoped {
		if held[b.RoleID] {
			best = math.Max(best, b.Multiplier)
		}
	}
	return best
}

// AddBooster stores a booster expiring duration from now
func (s *LevelingService) AddBooster(ctx context.Context, multiplier float64, duration time.Duration, roleID string) (config.XPBooster, error) {
	if multiplier <= 1.0 {
		return config.XPBooster{}, fmt.Errorf("multiplier %.2f must be greater than 1: %w", multiplier, ErrValidation)
	}
	if duration <= 0 {
		return config.XPBooster{}, fmt.Errorf("duration must be positive: %w", ErrValidation)
	}
	b := config.XPBooster{
		Multiplier: multiplier,
		Duration:   duration,
		RoleID:     roleID,
		ExpiresAt:  s.clock.Now().Add(duration),
	}
	err := s.store.Update(func(cfg *config.Config) {
		cfg.Modules.Leveling.XPBoosters = append(cfg.Modules.Leveling.XPBoosters, b)
	})
	if err != nil {
		return config.XPBooster{}, transient("saving booster", err)
	}
	logging.Info("XP booster added", "multiplier", multiplier, "duration", duration.String(), "role_id", roleID)
	return b, nil
}

func (s *LevelingService) Boosters() []config.XPBooster {
	return append([]config.XPBooster(nil), s.settings().XPBoosters...)
}

// PruneExpiredBoosters removes inert boosters from the config file
func (s *LevelingService) PruneExpiredBoosters(ctx context.Context) (int, error) {
	now := s.clock.Now()
	expired := 0
	for _, b := range s.settings().XPBoosters {
		if !b.Active(now) {
			expired++
		}
	}
	if expired == 0 {
		return 0, nil
	}

	err := s.store.Update(func(cfg *config.Config) {
		kept := cfg.Modules.Leveling.XPBoosters[:0]
		for _, b := range cfg.Modules.Leveling.XPBoosters {
			if b.Active(now) {
				kept = append(kept, b)
			}
		}
		cfg.Modules.Leveling.XPBoosters = kept
	})
	if err != nil {
		return 0, transient("pruning boosters", err)
	}
	return expired, nil
}

// AddRoleReward sets the level at which roleID is granted, replacing any
// previous reward for the same role.
func (s *LevelingService) AddRoleReward(ctx context.Context, level int, roleID string) error {
	if level < 1 || roleID == "" {
		return fmt.Errorf("role reward needs a level >= 1 and a role: %w", ErrValidation)
	}
	err := s.store.Update(func(cfg *config.Config) {
		rewards := removeReward(cfg.Modules.Leveling.RoleRewards, roleID)
		rewards = append(rewards, config.RoleReward{Level: level, RoleID: roleID})
		sort.SliceStable(rewards, func(i, j int) bool { return rewards[i].Level < rewards[j].Level })
		cfg.Modules.Leveling.RoleRewards = rewards
	})
	if err != nil {
		return transient("saving role reward", err)
	}
	return nil
}

// RemoveRoleReward reports whether a reward was removed. Unknown roles are a no-op.
func (s *LevelingService) RemoveRoleReward(ctx context.Context, roleID string) (bool, error) {
	found := false
	for _, r := range s.settings().RoleRewards {
		if r.RoleID == roleID {
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}
	err := s.store.Update(func(cfg *config.Config) {
		cfg.Modules.Leveling.RoleRewards = removeReward(cfg.Modules.Leveling.RoleRewards, roleID)
	})
	if err != nil {
		return false, transient("removing role reward", err)
	}
	return true, nil
}

// RoleRewards returns the rewards in ascending level order
func (s *LevelingService) RoleRewards() []config.RoleReward {
	rewards := append([]config.RoleReward(nil), s.settings().RoleRewards...)
	sort.SliceStable(rewards, func(i, j int) bool { return rewards[i].Level < rewards[j].Level })
	return rewards
}

func removeReward(rewards []config.RoleReward, roleID string) []config.RoleReward {
	out := make([]config.RoleReward, 0, len(rewards))
	for _, r := range rewards {
		if r.RoleID != roleID {
			out = append(out, r)
		}
	}
	return out
}

// CheckRoleRewards grants every reward at or below newLevel the member does
// not hold yet. Individual grant failures are logged and skipped.
func (s *LevelingService) CheckRoleRewards(ctx context.Context, guildID, userID string, newLevel int) ([]string, error) {
	var qualifying []config.RoleReward
	for _, r := range s.RoleRewards() {
		if r.Level <= newLevel {
			qualifying = append(qualifying, r)
		}
	}
	if len(qualifying) == 0 {
		return nil, nil
	}

	roles, err := s.transport.MemberRoles(ctx, guildID, userID)
	if err != nil {
		return nil, transient("loading member roles", err)
	}
	held := toSet(roles)

	log := logging.WithGuild("leveling", guildID, userID)
	var granted []string
	for _, r := range qualifying {
		if held[r.RoleID] {
			continue
		}
		if err := s.transport.GrantRole(ctx, guildID, userID, r.RoleID); err != nil {
			s.metrics.RoleGrantsTotal.WithLabelValues("failed").Inc()
			log.Warnw("Role reward grant failed", "role_id", r.RoleID, "level", r.Level, "error", err)
			continue
		}
		s.metrics.RoleGrantsTotal.WithLabelValues("granted").Inc()
		held[r.RoleID] = true
		granted = append(granted, r.RoleID)
	}
	return granted, nil
}

// handleLevelUp runs the announcement, role rewards and subscribers. None of
// them can undo the stored XP.
func (s *LevelingService) handleLevelUp(ctx context.Context, ev dtos.LevelUpEvent) {
	log := logging.WithGuild("leveling", ev.GuildID, ev.UserID)
	log.Infow("Member leveled up", "old_level", ev.OldLevel, "new_level", ev.NewLevel, "total_xp", ev.NewTotal)

	cfg := s.settings()
	if cfg.LevelUpMessage && cfg.LevelUpChannel != "" {
		content := fmt.Sprintf(constants.MsgLevelUp, ev.UserID, ev.NewLevel, humanize.Comma(ev.NewTotal))
		if _, err := s.transport.SendMessage(ctx, cfg.LevelUpChannel, content); err != nil {
			log.Warnw("Level-up announcement failed", "channel_id", cfg.LevelUpChannel, "error", err)
		}
	}

	if _, err := s.CheckRoleRewards(ctx, ev.GuildID, ev.UserID, ev.NewLevel); err != nil {
		log.Warnw("Role reward check failed", "error", err)
	}

	s.handlersMu.RLock()
	handlers := append([]LevelUpHandler(nil), s.handlers...)
	s.handlersMu.RUnlock()
	for _, h := range handlers {
		h(ctx, ev)
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}
