package gorm

import (
	"time"

	"crenors/guildbot/internal/constants"
)

// UserLevel is a member's XP standing in one guild
type UserLevel struct {
	ID      uint   `gorm:"column:id;primaryKey;autoIncrement"`
	GuildID string `gorm:"column:guild_id;type:varchar(32);not null;uniqueIndex:idx_user_levels_guild_user,priority:1;index:idx_user_levels_guild_total,priority:1"`
	UserID  string `gorm:"column:user_id;type:varchar(32);not null;uniqueIndex:idx_user_levels_guild_user,priority:2"`

	// XP mirrors TotalXP; progress inside the current level is derived.
	XP           int64     `gorm:"column:xp;not null;default:0"`
	Level        int       `gorm:"column:level;not null;default:0"`
	TotalXP      int64     `gorm:"column:total_xp;not null;default:0;index:idx_user_levels_guild_total,priority:2"`
	MessageCount int64     `gorm:"column:message_count;not null;default:0"`
	VoiceMinutes int64     `gorm:"column:voice_minutes;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (UserLevel) TableName() string {
	return "user_levels"
}

// ProgressXP is the XP earned since the current level was reached.
func (u UserLevel) ProgressXP() int64 {
	return u.TotalXP % constants.LevelSize
}
