package repositories

import (
	"context"

	"crenors/guildbot/internal/constants"
	"crenors/guildbot/internal/models/dtos"

	"github.com/jmoiron/sqlx"
)

// LeaderboardRepo runs the ranking reads through sqlx
type LeaderboardRepo struct {
	db *sqlx.DB
}

func NewLeaderboardRepo(db *sqlx.DB) *LeaderboardRepo {
	return &LeaderboardRepo{db: db}
}

// Top returns up to limit entries ordered by total XP, ties by user id. Ranks are 1-based.
func (r *LeaderboardRepo) Top(ctx context.Context, guildID string, limit int) ([]dtos.LeaderboardEntry, error) {
	entries := []dtos.LeaderboardEntry{}
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(constants.LeaderboardByGuild), guildID, limit); err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// RankOf is the 1-based position of (totalXP, userID) within the guild ordering.
func (r *LeaderboardRepo) RankOf(ctx context.Context, guildID, userID string, totalXP int64) (int, error) {
	var ahead int
	err := r.db.GetContext(ctx, &ahead, r.db.Rebind(constants.CountMembersAhead), guildID, totalXP, totalXP, userID)
	if err != nil {
		return 0, err
	}
	return ahead + 1, nil
}

func (r *LeaderboardRepo) Members(ctx context.Context, guildID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(constants.CountMembersInGuild), guildID)
	return n, err
}
