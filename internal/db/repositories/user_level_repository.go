package repositories

import (
	"context"
	"errors"
	"time"

	gormModels "crenors/guildbot/internal/models/gorm"

	gormlib "gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserLevelRepo persists XP standings
type UserLevelRepo struct {
	db *gormlib.DB
}

func NewUserLevelRepo(db *gormlib.DB) *UserLevelRepo {
	return &UserLevelRepo{db: db}
}

// Get returns nil, nil when the member has no record yet
func (r *UserLevelRepo) Get(ctx context.Context, guildID, userID string) (*gormModels.UserLevel, error) {
	var rec gormModels.UserLevel
	err := r.db.WithContext(ctx).
		Where("guild_id = ? AND user_id = ?", guildID, userID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// CreateIfAbsent inserts rec unless a record for the same member exists.
// It reports whether the row was inserted.
func (r *UserLevelRepo) CreateIfAbsent(ctx context.Context, rec *gormModels.UserLevel) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guild_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// XPDelta is applied to a record in one statement
type XPDelta struct {
	NewTotal     int64
	NewLevel     int
	Messages     int64
	VoiceMinutes int64
	At           time.Time
}

// CompareAndSwapXP writes the new total and level only if the stored total is
// still expectedTotal. It reports whether the write happened.
func (r *UserLevelRepo) CompareAndSwapXP(ctx context.Context, guildID, userID string, expectedTotal int64, d XPDelta) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&gormModels.UserLevel{}).
		Where("guild_id = ? AND user_id = ? AND total_xp = ?", guildID, userID, expectedTotal).
		Updates(map[string]interface{}{
			"xp":            d.NewTotal,
			"total_xp":      d.NewTotal,
			"level":         d.NewLevel,
			"message_count": gormlib.Expr("message_count + ?", d.Messages),
			"voice_minutes": gormlib.Expr("voice_minutes + ?", d.VoiceMinutes),
			"updated_at":    d.At,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
