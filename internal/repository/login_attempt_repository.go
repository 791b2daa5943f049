package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/philboiv1n/todolist/internal/model"
)

// AttemptSummary aggregates failed logins per IP for the admin view.
type AttemptSummary struct {
	IP     string
	C      int64
	LastTs int64
}

// LoginAttemptRepository records and prunes authentication attempts.
type LoginAttemptRepository struct {
	db *gorm.DB
}

func NewLoginAttemptRepository(db *gorm.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

func (r *LoginAttemptRepository) Record(ctx context.Context, ip string, success bool) error {
	attempt := model.LoginAttempt{IP: ip, Ts: time.Now().Unix(), Success: success}
	if err := r.db.WithContext(ctx).Create(&attempt).Error; err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}
	return nil
}

// CountRecentFailures counts failed attempts from an IP since the cutoff.
func (r *LoginAttemptRepository) CountRecentFailures(ctx context.Context, ip string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.LoginAttempt{}).
		Where("ip = ? AND success = ? AND ts >= ?", ip, false, since.Unix()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count login attempts: %w", err)
	}
	return count, nil
}

// FailureSummary aggregates failed attempts per IP since the cutoff,
// most recent IP first.
func (r *LoginAttemptRepository) FailureSummary(ctx context.Context, since time.Time) ([]AttemptSummary, error) {
	var rows []AttemptSummary
	err := r.db.WithContext(ctx).Model(&model.LoginAttempt{}).
		Select("ip, COUNT(*) AS c, MAX(ts) AS last_ts").
		Where("success = ? AND ts >= ?", false, since.Unix()).
		Group("ip").Order("last_ts DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("login attempt summary: %w", err)
	}
	return rows, nil
}

// PruneBefore deletes attempts older than the cutoff and returns how many
// rows went away.
func (r *LoginAttemptRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("ts < ?", cutoff.Unix()).Delete(&model.LoginAttempt{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune login attempts: %w", res.Error)
	}
	return res.RowsAffected, nil
}
