package gorm

import (
	"time"

	"crenors/guildbot/internal/constants"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Poll is a question with a fixed option list
type Poll struct {
	ID        snowflake.ID                `gorm:"column:id;primaryKey;autoIncrement:false"`
	GuildID   string                      `gorm:"column:guild_id;type:varchar(32);not null;index"`
	ChannelID string                      `gorm:"column:channel_id;type:varchar(32);not null"`
	MessageID string                      `gorm:"column:message_id;type:varchar(32)"`
	Question  string                      `gorm:"column:question;type:text;not null"`
	Options   datatypes.JSONSlice[string] `gorm:"column:options;not null"`
	Status    constants.PollStatus        `gorm:"column:status;type:varchar(16);not null;index"`
	CreatedAt time.Time                   `gorm:"column:created_at;autoCreateTime"`
	ExpiresAt *time.Time                  `gorm:"column:expires_at"`
	EndedAt   *time.Time                  `gorm:"column:ended_at"`

	Votes []PollVote `gorm:"foreignKey:PollID;constraint:OnDelete:CASCADE"`
}

func (Poll) TableName() string {
	return "polls"
}

// HasOption reports whether option is one of the poll's options
func (p Poll) HasOption(option string) bool {
	for _, o := range p.Options {
		if o == option {
			return true
		}
	}
	return false
}

// ExpiredAt reports whether the poll's deadline has passed at now.
func (p Poll) ExpiredAt(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// PollVote is the single vote slot a user holds in a poll
type PollVote struct {
	PollID    snowflake.ID `gorm:"column:poll_id;primaryKey;autoIncrement:false"`
	UserID    string       `gorm:"column:user_id;type:varchar(32);primaryKey"`
	Option    string       `gorm:"column:choice;type:text;not null"`
	CreatedAt time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

func (PollVote) TableName() string {
	return "poll_votes"
}
