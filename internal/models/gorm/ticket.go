package gorm

import (
	"time"

	"crenors/guildbot/internal/constants"
)

// Ticket is a private support channel opened by a member
type Ticket struct {
	ID                string                 `gorm:"column:id;primaryKey;type:varchar(36)"`
	Number            int                    `gorm:"column:number;not null"`
	GuildID           string                 `gorm:"column:guild_id;type:varchar(32);not null;index:idx_tickets_guild_user_status,priority:1"`
	ChannelID         string                 `gorm:"column:channel_id;type:varchar(32);not null;uniqueIndex"`
	UserID            string                 `gorm:"column:user_id;type:varchar(32);not null;index:idx_tickets_guild_user_status,priority:2"`
	Status            constants.TicketStatus `gorm:"column:status;type:varchar(16);not null;index:idx_tickets_guild_user_status,priority:3"`
	CreatedAt         time.Time              `gorm:"column:created_at"`
	ClosedAt          *time.Time             `gorm:"column:closed_at"`
	Transcript        *string                `gorm:"column:transcript;type:text"`
	AutoCloseWarnedAt *time.Time             `gorm:"column:auto_close_warned_at"`
}

func (Ticket) TableName() string {
	return "tickets"
}
