package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/philboiv1n/todolist/internal/model"
)

const changeTokenKey = "last_change"

// MetaRepository manages the app_meta key/value rows, mainly the global
// change token used by clients for cache invalidation.
type MetaRepository struct {
	db *gorm.DB
}

func NewMetaRepository(db *gorm.DB) *MetaRepository {
	return &MetaRepository{db: db}
}

// ChangeToken returns the current change token, or zero if nothing has been
// mutated yet.
func (r *MetaRepository) ChangeToken(ctx context.Context) (int64, error) {
	var meta model.AppMeta
	err := r.db.WithContext(ctx).Where("meta_key = ?", changeTokenKey).First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read change token: %w", err)
	}
	return meta.Value, nil
}

// TouchChange bumps the change token. The token is a millisecond timestamp
// but must stay strictly increasing even when mutations land inside the same
// millisecond, so the new value is max(now, previous+1).
func (r *MetaRepository) TouchChange(ctx context.Context) error {
	now := time.Now().UnixMilli()
	db := r.db.WithContext(ctx)

	res := db.Exec(
		"UPDATE app_meta SET value = MAX(?, value + 1) WHERE meta_key = ?",
		now, changeTokenKey,
	)
	if res.Error != nil {
		return fmt.Errorf("touch change token: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	if err := db.Create(&model.AppMeta{MetaKey: changeTokenKey, Value: now}).Error; err != nil {
		return fmt.Errorf("init change token: %w", err)
	}
	return nil
}
