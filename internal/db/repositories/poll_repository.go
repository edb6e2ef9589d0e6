package repositories

import (
	"context"
	"errors"
	"time"

	"crenors/guildbot/internal/constants"
	gormModels "crenors/guildbot/internal/models/gorm"

	"github.com/bwmarrin/snowflake"
	gormlib "gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PollRepo persists polls and their vote slots
type PollRepo struct {
	db *gormlib.DB
}

func NewPollRepo(db *gormlib.DB) *PollRepo {
	return &PollRepo{db: db}
}

func (r *PollRepo) Create(ctx context.Context, poll *gormModels.Poll) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(poll).Error
}

// Get loads a poll without its votes. It returns nil, nil when absent.
func (r *PollRepo) Get(ctx context.Context, id snowflake.ID) (*gormModels.Poll, error) {
	var poll gormModels.Poll
	err := r.db.WithContext(ctx).First(&poll, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &poll, nil
}

// GetWithVotes loads a poll and every vote slot. It returns nil, nil when absent.
func (r *PollRepo) GetWithVotes(ctx context.Context, id snowflake.ID) (*gormModels.Poll, error) {
	var poll gormModels.Poll
	err := r.db.WithContext(ctx).Preload("Votes").First(&poll, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &poll, nil
}

func (r *PollRepo) SetMessageID(ctx context.Context, id snowflake.ID, messageID string) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.Poll{}).
		Where("id = ?", id).
		Update("message_id", messageID).Error
}

// GetVote returns nil, nil when the user has not voted
func (r *PollRepo) GetVote(ctx context.Context, pollID snowflake.ID, userID string) (*gormModels.PollVote, error) {
	var vote gormModels.PollVote
	err := r.db.WithContext(ctx).
		Where("poll_id = ? AND user_id = ?", pollID, userID).
		First(&vote).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vote, nil
}

// InsertVote fills the user's slot only if it is empty. It reports whether
// the vote was stored.
func (r *PollRepo) InsertVote(ctx context.Context, vote *gormModels.PollVote) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "poll_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(vote)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpsertVote overwrites the user's slot
func (r *PollRepo) UpsertVote(ctx context.Context, vote *gormModels.PollVote) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "poll_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"choice", "updated_at"}),
		}).
		Create(vote).Error
}

// MarkEnded moves an active poll to ended. It reports false when the poll was
// already ended.
func (r *PollRepo) MarkEnded(ctx context.Context, id snowflake.ID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&gormModels.Poll{}).
		Where("id = ? AND status = ?", id, constants.PollActive).
		Updates(map[string]interface{}{
			"status":   constants.PollEnded,
			"ended_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListActiveWithExpiry returns active polls that carry a deadline
func (r *PollRepo) ListActiveWithExpiry(ctx context.Context) ([]gormModels.Poll, error) {
	var polls []gormModels.Poll
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL", constants.PollActive).
		Order("expires_at ASC").
		Find(&polls).Error
	return polls, err
}

func (r *PollRepo) ListByGuild(ctx context.Context, guildID string, status constants.PollStatus) ([]gormModels.Poll, error) {
	var polls []gormModels.Poll
	q := r.db.WithContext(ctx).Where("guild_id = ?", guildID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at DESC").Find(&polls).Error
	return polls, err
}
