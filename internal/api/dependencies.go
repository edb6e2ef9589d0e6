package api

import (
	"context"
	"time"

	"crenors/guildbot/internal/common"
	"crenors/guildbot/internal/config"
	"crenors/guildbot/internal/constants"
	"crenors/guildbot/internal/jobs"
	"crenors/guildbot/internal/models/dtos"
	gormModels "crenors/guildbot/internal/models/gorm"

	"github.com/bwmarrin/snowflake"
	"github.com/jmoiron/sqlx"
)

// LevelingAPI is the part of *services.LevelingService the API exposes
type LevelingAPI interface {
	Leaderboard(ctx context.Context, guildID string, limit int) ([]dtos.LeaderboardEntry, error)
	Rank(ctx context.Context, guildID, userID string) (*dtos.RankInfo, error)
	AwardXP(ctx context.Context, guildID, userID string, baseAmount int64, source constants.XPSource) (*dtos.AwardResult, error)
	RoleRewards() []config.RoleReward
	AddRoleReward(ctx context.Context, level int, roleID string) error
	RemoveRoleReward(ctx context.Context, roleID string) (bool, error)
	Boosters() []config.XPBooster
	AddBooster(ctx context.Context, multiplier float64, duration time.Duration, roleID string) (config.XPBooster, error)
}

// PollAPI is the part of *services.PollService the API exposes
type PollAPI interface {
	Tally(ctx context.Context, pollID snowflake.ID) (*dtos.PollTally, error)
	ListByGuild(ctx context.Context, guildID string, status constants.PollStatus) ([]gormModels.Poll, error)
	End(ctx context.Context, pollID snowflake.ID) (*gormModels.Poll, error)
	UpdateSettings(ctx context.Context, req dtos.PollSettingsRequest) (config.PollsConfig, error)
}

// TicketAPI is the part of *services.TicketService the API exposes
type TicketAPI interface {
	Stats(ctx context.Context, guildID string) (*dtos.TicketStats, error)
	UpdateSettings(ctx context.Context, req dtos.TicketSettingsRequest) (config.TicketsConfig, error)
}

// Publisher posts messages that need the gateway. *bot.Router implements it.
type Publisher interface {
	PublishPoll(ctx context.Context, req dtos.CreatePollRequest) (*gormModels.Poll, error)
	PostTicketPanel(ctx context.Context, req dtos.TicketPanelRequest) (string, error)
}

// JobRunner is implemented by *jobs.Scheduler
type JobRunner interface {
	Status() []jobs.JobStatus
	RunNow(ctx context.Context, name string) error
}

type Services struct {
	Leveling  LevelingAPI
	Polls     PollAPI
	Tickets   TicketAPI
	Publisher Publisher
	Jobs      JobRunner
}

type Dependencies struct {
	DB       *sqlx.DB
	Cache    common.CacheInterface
	Services *Services
	UpSince  time.Time
}
