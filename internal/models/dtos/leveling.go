package dtos

import "crenors/guildbot/internal/constants"

// LeaderboardEntry is one row of a guild leaderboard
type LeaderboardEntry struct {
	Rank         int    `json:"rank" db:"-"`
	UserID       string `json:"userId" db:"user_id"`
	TotalXP      int64  `json:"totalXp" db:"total_xp"`
	Level        int    `json:"level" db:"level"`
	MessageCount int64  `json:"messageCount" db:"message_count"`
	VoiceMinutes int64  `json:"voiceMinutes" db:"voice_minutes"`
}

// RankInfo is a member's standing in a guild
type RankInfo struct {
	GuildID    string `json:"guildId"`
	UserID     string `json:"userId"`
	Rank       int    `json:"rank"`
	Members    int    `json:"members"`
	TotalXP    int64  `json:"totalXp"`
	Level      int    `json:"level"`
	ProgressXP int64  `json:"progressXp"`
	NextLevel  int64  `json:"nextLevelXp"`
}

// AwardResult describes the outcome of one XP award
type AwardResult struct {
	GuildID   string             `json:"guildId"`
	UserID    string             `json:"userId"`
	Source    constants.XPSource `json:"source"`
	Awarded   int64              `json:"awarded"`
	OldLevel  int                `json:"oldLevel"`
	NewLevel  int                `json:"newLevel"`
	NewTotal  int64              `json:"newTotal"`
	Created   bool               `json:"created"`
	LeveledUp bool               `json:"leveledUp"`
}

// LevelUpEvent is delivered to level-up subscribers after the award is stored
type LevelUpEvent struct {
	GuildID  string
	UserID   string
	OldLevel int
	NewLevel int
	NewTotal int64
}

type AwardXPRequest struct {
	Amount int64 `json:"amount"`
}

type RoleRewardRequest struct {
	Level  int    `json:"level"`
	RoleID string `json:"roleId"`
}

type BoosterRequest struct {
	Multiplier    float64 `json:"multiplier"`
	DurationHours float64 `json:"durationHours"`
	RoleID        string  `json:"roleId,omitempty"`
}
