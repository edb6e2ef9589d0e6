package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"crenors/guildbot/internal/config"
	"crenors/guildbot/internal/constants"
	"crenors/guildbot/internal/models/dtos"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	guildA = "guild-a"
	userA  = "user-a"
	userB  = "user-b"
)

func TestLevelFor(t *testing.T) {
	cases := map[int64]int{0: 0, 999: 0, 1000: 1, 1999: 1, 2000: 2, 12345: 12, -5: 0}
	for total, want := range cases {
		assert.Equal(t, want, LevelFor(total), "total %d", total)
	}
}

func TestAwardXP_FirstAwardCreatesRecordWithoutLevelUp(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	levelUps := 0
	f.leveling.OnLevelUp(func(context.Context, dtos.LevelUpEvent) { levelUps++ })

	res, err := f.leveling.AwardXP(ctx, guildA, userA, 15, constants.XPSourceAdmin)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.LeveledUp)
	assert.Equal(t, int64(15), res.NewTotal)

	rec, err := f.leveling.Stats(ctx, guildA, userA)
	require.NoError(t, err)
	assert.Equal(t, int64(15), rec.TotalXP)
	assert.Equal(t, int64(15), rec.XP)
	assert.Equal(t, 0, rec.Level)
	assert.Zero(t, levelUps)
}

func TestAwardXP_LevelUpAtBoundary(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Modules.Leveling.LevelUpChannel = "levels"
		cfg.Modules.Leveling.RoleRewards = []config.RoleReward{{Level: 1, RoleID: "bronze"}, {Level: 5, RoleID: "gold"}}
	})
	ctx := context.Background()
	var events []dtos.LevelUpEvent
	f.leveling.OnLevelUp(func(_ context.Context, ev dtos.LevelUpEvent) { events = append(events, ev) })

	_, err := f.leveling.AwardXP(ctx, guildA, userA, 990, constants.XPSourceAdmin)
	require.NoError(t, err)
	res, err := f.leveling.AwardXP(ctx, guildA, userA, 15, constants.XPSourceMessage)
	require.NoError(t, err)

	assert.True(t, res.LeveledUp)
	assert.Equal(t, 0, res.OldLevel)
	assert.Equal(t, 1, res.NewLevel)
	assert.Equal(t, int64(1005), res.NewTotal)

	require.Len(t, events, 1)
	assert.Equal(t, dtos.LevelUpEvent{GuildID: guildA, UserID: userA, OldLevel: 0, NewLevel: 1, NewTotal: 1005}, events[0])

	sent := f.transport.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "levels", sent[0].ChannelID)
	assert.Contains(t, sent[0].Message.Content, "level 1")
	assert.Contains(t, sent[0].Message.Content, "1,005")

	grants := f.transport.RoleGrants()
	require.Len(t, grants, 1, "only the level 1 reward qualifies")
	assert.Equal(t, "bronze", grants[0].RoleID)
}

func TestAwardXP_SideEffectFailuresKeepXP(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Modules.Leveling.LevelUpChannel = "levels"
		cfg.Modules.Leveling.RoleRewards = []config.RoleReward{{Level: 1, RoleID: "bronze"}}
	})
	f.transport.SendErr = errors.New("missing access")
	f.transport.GrantErr = errors.New("missing permissions")
	ctx := context.Background()

	_, err := f.leveling.AwardXP(ctx, guildA, userA, 995, constants.XPSourceAdmin)
	require.NoError(t, err)
	res, err := f.leveling.AwardXP(ctx, guildA, userA, 10, constants.XPSourceAdmin)
	require.NoError(t, err)
	assert.True(t, res.LeveledUp)

	rec, err := f.leveling.Stats(ctx, guildA, userA)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Level)
	assert.Equal(t, int64(1005), rec.TotalXP)
}

func TestAwardXP_NegativeAmountRejected(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.leveling.AwardXP(context.Background(), guildA, userA, -1, constants.XPSourceAdmin)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAwardXP_StoreFailureIsTransient(t *testing.T) {
	f := newFixture(t, nil)
	f.breakDB(t)

	_, err := f.leveling.AwardXP(context.Background(), guildA, userA, 15, constants.XPSourceMessage)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestAwardXP_ConcurrentAwardsAreNotLost(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.leveling.AwardXP(ctx, guildA, userA, 100, constants.XPSourceAdmin)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rec, err := f.leveling.Stats(ctx, guildA, userA)
	require.NoError(t, err)
	assert.Equal(t, int64(n*100), rec.TotalXP)
	assert.Equal(t, LevelFor(rec.TotalXP), rec.Level)
}

func TestAwardXP_LevelInvariantHolds(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	amounts := []int64{15, 985, 1, 0, 2999, 10, 7000}
	for _, a := range amounts {
		_, err := f.leveling.AwardXP(ctx, guildA, userA, a, constants.XPSourceAdmin)
		require.NoError(t, err)

		rec, err := f.leveling.Stats(ctx, guildA, userA)
		require.NoError(t, err)
		assert.Equal(t, LevelFor(rec.TotalXP), rec.Level)
		assert.Equal(t, rec.TotalXP, rec.XP)
		assert.Equal(t, rec.TotalXP%constants.LevelSize, rec.ProgressXP())
	}
}

func TestMessageAward_CooldownScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.leveling.MessageAward(ctx, guildA, userA)
	require.NoError(t, err)
	require.NotNil(t, res)

	f.clock.Advance(30 * time.Second)
	res, err = f.leveling.MessageAward(ctx, guildA, userA)
	require.NoError(t, err)
	assert.Nil(t, res, "message inside the window must be dropped")

	f.clock.Advance(60 * time.Second)
	res, err = f.leveling.MessageAward(ctx, guildA, userA)
	require.NoError(t, err)
	require.NotNil(t, res)

	rec, err := f.leveling.Stats(ctx, guildA, userA)
	require.NoError(t, err)
	assert.Equal(t, int64(30), rec.TotalXP)
	assert.Equal(t, int64(2), rec.MessageCount)
}

func TestMessageAward_CooldownIsPerMember(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.leveling.MessageAward(ctx, guildA, userA)
	require.NoError(t, err)
	res, err := f.leveling.MessageAward(ctx, guildA, userB)
	require.NoError(t, err)
	assert.NotNil(t, res)
	res, err = f.leveling.MessageAward(ctx, "guild-b", userA)
	require.NoError(t, err)
	assert.NotNil(t, res, "cooldown is keyed by guild and user")
}

func TestEffectiveMultiplier(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Modules.Leveling.XPBoosters = []config.XPBooster{
			{Multiplier: 2.0, ExpiresAt: testEpoch.Add(-time.Minute)},
			{Multiplier: 1.5, ExpiresAt: testEpoch.Add(time.Hour)},
		}
	})
	ctx := context.Background()

	assert.Equal(t, 1.5, f.leveling.EffectiveMultiplier(ctx, guildA, userA))

	res, err := f.leveling.AwardXP(ctx, guildA, userA, 15, constants.XPSourceMessage)
	require.NoError(t, err)
	assert.Equal(t, int64(23), res.Awarded, "15 * 1.5 rounds to 23")

	f.clock.Advance(2 * time.Hour)
	assert.Equal(t, 1.0, f.leveling.EffectiveMultiplier(ctx, guildA, userA))
}

func TestEffectiveMultiplier_RoleScoped(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Modules.Leveling.XPBoosters = []config.XPBooster{
			{Multiplier: 3.0, RoleID: "booster", ExpiresAt: testEpoch.Add(time.Hour)},
			{Multiplier: 1.25, ExpiresAt: testEpoch.Add(time.Hour)},
		}
	})
	ctx := context.Background()
	f.transport.SetRoles(guildA, userA, "booster")

	assert.Equal(t, 3.0, f.leveling.EffectiveMultiplier(ctx, guildA, userA))
	assert.Equal(t, 1.25, f.leveling.EffectiveMultiplier(ctx, guildA, userB))

	f.transport.RolesErr = errors.New("gateway down")
	assert.Equal(t, 1.25, f.leveling.EffectiveMultiplier(ctx, guildA, userA), "role lookup failures fall back to global boosters")
}

func TestAddBooster(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.leveling.AddBooster(ctx, 1.0, time.Hour, "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.leveling.AddBooster(ctx, 2.0, 0, "")
	assert.ErrorIs(t, err, ErrValidation)

	b, err := f.leveling.AddBooster(ctx, 2.0, time.Hour, "")
	require.NoError(t, err)
	assert.Equal(t, testEpoch.Add(time.Hour), b.ExpiresAt)
	assert.Equal(t, 2.0, f.leveling.EffectiveMultiplier(ctx, guildA, userA))
	assert.Len(t, f.store.Current().Modules.Leveling.XPBoosters, 1)
}

func TestPruneExpiredBoosters(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Modules.Leveling.XPBoosters = []config.XPBooster{
			{Multiplier: 2.0, ExpiresAt: testEpoch.Add(-time.Minute)},
			{Multiplier: 1.5, ExpiresAt: testEpoch.Add(time.Hour)},
		}
	})
	ctx := context.Background()

	n, err := f.leveling.PruneExpiredBoosters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	remaining := f.leveling.Boosters()
	require.Len(t, remaining, 1)
	assert.Equal(t, 1.5, remaining[0].Multiplier)

	n, err = f.leveling.PruneExpiredBoosters(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRoleRewards_AddReplaceRemove(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.leveling.AddRoleReward(ctx, 10, "gold"))
	require.NoError(t, f.leveling.AddRoleReward(ctx, 5, "silver"))
	require.NoError(t, f.leveling.AddRoleReward(ctx, 15, "gold"))

	assert.Equal(t, []config.RoleReward{{Level: 5, RoleID: "silver"}, {Level: 15, RoleID: "gold"}}, f.leveling.RoleRewards())

	removed, err := f.leveling.RemoveRoleReward(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = f.leveling.RemoveRoleReward(ctx, "silver")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []config.RoleReward{{Level: 15, RoleID: "gold"}}, f.leveling.RoleRewards())

	assert.ErrorIs(t, f.leveling.AddRoleReward(ctx, 0, "x"), ErrValidation)
}

func TestCheckRoleRewards_GrantsOnlyMissing(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Modules.Leveling.RoleRewards = []config.RoleReward{
			{Level: 1, RoleID: "r1"},
			{Level: 5, RoleID: "r5"},
			{Level: 10, RoleID: "r10"},
		}
	})
	f.transport.SetRoles(guildA, userA, "r1")

	granted, err := f.leveling.CheckRoleRewards(context.Background(), guildA, userA, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"r5"}, granted)
}

func TestMemberJoin_DoesNotResetExisting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.leveling.MemberJoin(ctx, guildA, userA))
	rec, err := f.leveling.Stats(ctx, guildA, userA)
	require.NoError(t, err)
	assert.Zero(t, rec.TotalXP)

	_, err = f.leveling.AwardXP(ctx, guildA, userA, 50, constants.XPSourceAdmin)
	require.NoError(t, err)
	require.NoError(t, f.leveling.MemberJoin(ctx, guildA, userA))

	rec, err = f.leveling.Stats(ctx, guildA, userA)
	require.NoError(t, err)
	assert.Equal(t, int64(50), rec.TotalXP)
}

func TestRankAndLeaderboard(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	totals := map[string]int64{"u1": 500, "u2": 1500, "u3": 500, "u4": 20, "u5": 1500}
	for user, total := range totals {
		_, err := f.leveling.AwardXP(ctx, guildA, user, total, constants.XPSourceAdmin)
		require.NoError(t, err)
	}
	_, err := f.leveling.AwardXP(ctx, "other-guild", "u9", 99999, constants.XPSourceAdmin)
	require.NoError(t, err)

	board, err := f.leveling.Leaderboard(ctx, guildA, 0)
	require.NoError(t, err)
	var order []string
	for i, e := range board {
		assert.Equal(t, i+1, e.Rank)
		order = append(order, e.UserID)
	}
	assert.Equal(t, []string{"u2", "u5", "u1", "u3", "u4"}, order)

	seen := map[int]bool{}
	for user := range totals {
		info, err := f.leveling.Rank(ctx, guildA, user)
		require.NoError(t, err)
		assert.Equal(t, 5, info.Members)
		assert.False(t, seen[info.Rank], "rank %d assigned twice", info.Rank)
		seen[info.Rank] = true
		assert.Equal(t, board[info.Rank-1].UserID, user)
	}
	for r := 1; r <= 5; r++ {
		assert.True(t, seen[r], "rank %d missing", r)
	}

	_, err = f.leveling.Rank(ctx, guildA, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLeaderboard_LimitIsClamped(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, err := f.leveling.AwardXP(ctx, guildA, fmt.Sprintf("user-%02d", i), int64(i*10), constants.XPSourceAdmin)
		require.NoError(t, err)
	}

	board, err := f.leveling.Leaderboard(ctx, guildA, 0)
	require.NoError(t, err)
	assert.Len(t, board, constants.LeaderboardDefaultLimit)

	board, err = f.leveling.Leaderboard(ctx, guildA, 3)
	require.NoError(t, err)
	assert.Len(t, board, 3)
	assert.Equal(t, "user-11", board[0].UserID)
}

func TestVoice_AccrualAndLeave(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.leveling.VoiceJoin(guildA, userA)
	assert.Equal(t, 1, f.leveling.TrackedVoice())

	f.clock.Advance(150 * time.Second)
	n, err := f.leveling.VoiceAccrual(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := f.leveling.Stats(ctx, guildA, userA)
	require.NoError(t, err)
	assert.Equal(t, int64(20), rec.TotalXP, "two whole minutes at 10 XP")
	assert.Equal(t, int64(2), rec.VoiceMinutes)

	// 30s carried over from the last tick plus 20s is still under a minute.
	f.clock.Advance(20 * time.Second)
	res, err := f.leveling.VoiceLeave(ctx, guildA, userA)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Zero(t, f.leveling.TrackedVoice())

	rec, err = f.leveling.Stats(ctx, guildA, userA)
	require.NoError(t, err)
	assert.Equal(t, int64(20), rec.TotalXP)
}

func TestVoice_LeaveAwardsWholeMinutes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.leveling.VoiceJoin(guildA, userA)
	f.clock.Advance(3*time.Minute + 10*time.Second)
	res, err := f.leveling.VoiceLeave(ctx, guildA, userA)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, int64(30), res.Awarded)

	f.leveling.VoiceJoin(guildA, userB)
	f.clock.Advance(45 * time.Second)
	res, err = f.leveling.VoiceLeave(ctx, guildA, userB)
	require.NoError(t, err)
	assert.Nil(t, res, "under a minute earns nothing")

	res, err = f.leveling.VoiceLeave(ctx, guildA, "never-joined")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestVoice_RejoinKeepsMark(t *testing.T) {
	f := newFixture(t, nil)
	f.leveling.VoiceJoin(guildA, userA)
	f.clock.Advance(50 * time.Second)
	f.leveling.VoiceJoin(guildA, userA)
	f.clock.Advance(20 * time.Second)

	n, err := f.leveling.VoiceAccrual(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f.leveling.VoiceForget(guildA, userA)
	assert.Zero(t, f.leveling.TrackedVoice())
}

func TestApplyConfig_TakesEffect(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Update(func(cfg *config.Config) {
		cfg.Modules.Leveling.MessageXP = 40
		cfg.Modules.Leveling.Enabled = false
	}))
	assert.False(t, f.leveling.Enabled())

	res, err := f.leveling.MessageAward(context.Background(), guildA, userA)
	require.NoError(t, err)
	assert.Equal(t, int64(40), res.Awarded)
}
