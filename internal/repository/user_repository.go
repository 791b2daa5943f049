package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/philboiv1n/todolist/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListAll returns every user, ordered by username for display.
func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) SetPassword(ctx context.Context, userID uint, hash string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
		Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("set password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *UserRepository) SetAdmin(ctx context.Context, userID uint, isAdmin bool) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
		Update("is_admin", isAdmin)
	if res.Error != nil {
		return fmt.Errorf("set admin: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a user. Tasks and lists the user created survive with their
// creator reference nulled; access grants for the user are removed.
func (r *UserRepository) Delete(ctx context.Context, userID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Task{}).Where("creator_id = ?", userID).
			Update("creator_id", nil).Error; err != nil {
			return fmt.Errorf("detach tasks: %w", err)
		}
		if err := tx.Model(&model.List{}).Where("created_by = ?", userID).
			Update("created_by", nil).Error; err != nil {
			return fmt.Errorf("detach lists: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&model.ListAccess{}).Error; err != nil {
			return fmt.Errorf("remove grants: %w", err)
		}
		res := tx.Delete(&model.User{}, userID)
		if res.Error != nil {
			return fmt.Errorf("delete user: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return err
}
