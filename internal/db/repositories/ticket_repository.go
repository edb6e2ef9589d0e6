package repositories

import (
	"context"
	"errors"
	"time"

	"crenors/guildbot/internal/constants"
	gormModels "crenors/guildbot/internal/models/gorm"

	"github.com/jmoiron/sqlx"
	gormlib "gorm.io/gorm"
)

// TicketRepo persists support tickets
type TicketRepo struct {
	db     *gormlib.DB
	reader *sqlx.DB
}

func NewTicketRepo(db *gormlib.DB, reader *sqlx.DB) *TicketRepo {
	return &TicketRepo{db: db, reader: reader}
}

func (r *TicketRepo) Create(ctx context.Context, t *gormModels.Ticket) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// GetByChannel returns nil, nil when the channel is not a ticket
func (r *TicketRepo) GetByChannel(ctx context.Context, channelID string) (*gormModels.Ticket, error) {
	var t gormModels.Ticket
	err := r.db.WithContext(ctx).Where("channel_id = ?", channelID).First(&t).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// FindOpen returns the member's open ticket or nil, nil
func (r *TicketRepo) FindOpen(ctx context.Context, guildID, userID string) (*gormModels.Ticket, error) {
	var t gormModels.Ticket
	err := r.db.WithContext(ctx).
		Where("guild_id = ? AND user_id = ? AND status = ?", guildID, userID, constants.TicketOpen).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// MaxNumber is the highest ticket number used in the guild, 0 if none
func (r *TicketRepo) MaxNumber(ctx context.Context, guildID string) (int, error) {
	var n int
	err := r.db.WithContext(ctx).
		Model(&gormModels.Ticket{}).
		Where("guild_id = ?", guildID).
		Select("COALESCE(MAX(number), 0)").
		Row().
		Scan(&n)
	return n, err
}

// Transition moves a ticket from one status to another and applies fields in
// the same statement. It reports false when the ticket was not in from.
func (r *TicketRepo) Transition(ctx context.Context, id string, from, to constants.TicketStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&gormModels.Ticket{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkDeleted sets status deleted unless it already is. It reports whether a row changed.
func (r *TicketRepo) MarkDeleted(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&gormModels.Ticket{}).
		Where("id = ? AND status <> ?", id, constants.TicketDeleted).
		Update("status", constants.TicketDeleted)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListOpenUnwarnedBefore returns open tickets created before cutoff that have
// not been warned during the current open period
func (r *TicketRepo) ListOpenUnwarnedBefore(ctx context.Context, cutoff time.Time) ([]gormModels.Ticket, error) {
	var tickets []gormModels.Ticket
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at <= ? AND auto_close_warned_at IS NULL", constants.TicketOpen, cutoff).
		Order("created_at ASC").
		Find(&tickets).Error
	return tickets, err
}

func (r *TicketRepo) MarkWarned(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.Ticket{}).
		Where("id = ?", id).
		Update("auto_close_warned_at", at).Error
}

type statusCount struct {
	Status constants.TicketStatus `db:"status"`
	Count  int                    `db:"count"`
}

// CountByStatus tallies a guild's tickets per status
func (r *TicketRepo) CountByStatus(ctx context.Context, guildID string) (map[constants.TicketStatus]int, error) {
	var rows []statusCount
	if err := r.reader.SelectContext(ctx, &rows, r.reader.Rebind(constants.TicketCountsByStatus), guildID); err != nil {
		return nil, err
	}
	out := make(map[constants.TicketStatus]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
