package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/philboiv1n/todolist/internal/model"
)

// AccessibleList is a list joined with the querying user's access row.
// IsPersonal marks the user's earliest self-created list; it is derived at
// query time, never stored.
type AccessibleList struct {
	ID         uint
	Name       string
	CreatedBy  *uint
	CreatedAt  time.Time
	CanEdit    bool
	SortOrder  *int
	IsExpanded bool
	IsPersonal bool
}

// ListRepository handles lists and their access grants.
type ListRepository struct {
	db *gorm.DB
}

func NewListRepository(db *gorm.DB) *ListRepository {
	return &ListRepository{db: db}
}

func (r *ListRepository) Create(ctx context.Context, list *model.List) error {
	if err := r.db.WithContext(ctx).Create(list).Error; err != nil {
		return fmt.Errorf("create list: %w", err)
	}
	return nil
}

func (r *ListRepository) FindByID(ctx context.Context, id uint) (*model.List, error) {
	var list model.List
	if err := r.db.WithContext(ctx).First(&list, id).Error; err != nil {
		return nil, err
	}
	return &list, nil
}

func (r *ListRepository) Rename(ctx context.Context, listID uint, name string) error {
	res := r.db.WithContext(ctx).Model(&model.List{}).Where("id = ?", listID).
		Update("name", name)
	if res.Error != nil {
		return fmt.Errorf("rename list: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a list together with its tasks and access grants.
func (r *ListRepository) Delete(ctx context.Context, listID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("list_id = ?", listID).Delete(&model.Task{}).Error; err != nil {
			return fmt.Errorf("delete list tasks: %w", err)
		}
		if err := tx.Where("list_id = ?", listID).Delete(&model.ListAccess{}).Error; err != nil {
			return fmt.Errorf("delete list grants: %w", err)
		}
		res := tx.Delete(&model.List{}, listID)
		if res.Error != nil {
			return fmt.Errorf("delete list: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// EarliestOwnedBy returns the user's oldest self-created list, or
// gorm.ErrRecordNotFound when the user owns none.
func (r *ListRepository) EarliestOwnedBy(ctx context.Context, userID uint) (*model.List, error) {
	var list model.List
	err := r.db.WithContext(ctx).Where("created_by = ?", userID).
		Order("created_at ASC, id ASC").First(&list).Error
	if err != nil {
		return nil, err
	}
	return &list, nil
}

// OwnedBy returns the lists the user created, oldest first.
func (r *ListRepository) OwnedBy(ctx context.Context, userID uint) ([]model.List, error) {
	var lists []model.List
	err := r.db.WithContext(ctx).Where("created_by = ?", userID).
		Order("created_at ASC, id ASC").Find(&lists).Error
	if err != nil {
		return nil, err
	}
	return lists, nil
}

// ListAll returns every list for the admin surface.
func (r *ListRepository) ListAll(ctx context.Context) ([]model.List, error) {
	var lists []model.List
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&lists).Error; err != nil {
		return nil, err
	}
	return lists, nil
}

// AccessibleTo returns the lists the user holds a grant for, ordered by the
// user's sort rank (unranked lists last) then name.
func (r *ListRepository) AccessibleTo(ctx context.Context, userID uint) ([]AccessibleList, error) {
	var rows []AccessibleList
	err := r.db.WithContext(ctx).Raw(`
		SELECT lists.id, lists.name, lists.created_by, lists.created_at,
		       list_access.can_edit, list_access.sort_order, list_access.is_expanded,
		       CASE WHEN lists.id = (
		           SELECT id FROM lists WHERE created_by = ?
		           ORDER BY created_at, id LIMIT 1
		       ) THEN 1 ELSE 0 END AS is_personal
		FROM lists
		INNER JOIN list_access ON list_access.list_id = lists.id
		WHERE list_access.user_id = ?
		ORDER BY (list_access.sort_order IS NULL), list_access.sort_order, lists.name`,
		userID, userID,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("accessible lists: %w", err)
	}
	return rows, nil
}

// AccessRow returns the user's grant for a list, or gorm.ErrRecordNotFound.
func (r *ListRepository) AccessRow(ctx context.Context, listID, userID uint) (*model.ListAccess, error) {
	var access model.ListAccess
	err := r.db.WithContext(ctx).Where("list_id = ? AND user_id = ?", listID, userID).
		First(&access).Error
	if err != nil {
		return nil, err
	}
	return &access, nil
}

// UpsertAccess grants or updates a user's access to a list. A new grant is
// appended to the end of the user's sort order.
func (r *ListRepository) UpsertAccess(ctx context.Context, listID, userID uint, canEdit bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.ListAccess
		err := tx.Where("list_id = ? AND user_id = ?", listID, userID).First(&existing).Error
		switch {
		case err == nil:
			if err := tx.Model(&model.ListAccess{}).
				Where("list_id = ? AND user_id = ?", listID, userID).
				Update("can_edit", canEdit).Error; err != nil {
				return fmt.Errorf("update grant: %w", err)
			}
			return nil
		case err == gorm.ErrRecordNotFound:
			var next int
			row := tx.Model(&model.ListAccess{}).Where("user_id = ?", userID).
				Select("COALESCE(MAX(sort_order), 0) + 1")
			if err := row.Scan(&next).Error; err != nil {
				return fmt.Errorf("next sort order: %w", err)
			}
			access := model.ListAccess{
				ListID:     listID,
				UserID:     userID,
				CanEdit:    canEdit,
				SortOrder:  &next,
				IsExpanded: true,
			}
			if err := tx.Create(&access).Error; err != nil {
				return fmt.Errorf("create grant: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("find grant: %w", err)
		}
	})
}

func (r *ListRepository) RemoveAccess(ctx context.Context, listID, userID uint) error {
	err := r.db.WithContext(ctx).Where("list_id = ? AND user_id = ?", listID, userID).
		Delete(&model.ListAccess{}).Error
	if err != nil {
		return fmt.Errorf("remove grant: %w", err)
	}
	return nil
}

// AccessByListIDs returns grant rows grouped by list for the given lists.
func (r *ListRepository) AccessByListIDs(ctx context.Context, listIDs []uint) (map[uint][]model.ListAccess, error) {
	if len(listIDs) == 0 {
		return map[uint][]model.ListAccess{}, nil
	}
	var rows []model.ListAccess
	err := r.db.WithContext(ctx).Where("list_id IN ?", listIDs).
		Order("user_id ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	grouped := make(map[uint][]model.ListAccess, len(listIDs))
	for _, row := range rows {
		grouped[row.ListID] = append(grouped[row.ListID], row)
	}
	return grouped, nil
}

func (r *ListRepository) SetExpanded(ctx context.Context, listID, userID uint, expanded bool) error {
	res := r.db.WithContext(ctx).Model(&model.ListAccess{}).
		Where("list_id = ? AND user_id = ?", listID, userID).
		Update("is_expanded", expanded)
	if res.Error != nil {
		return fmt.Errorf("set expanded: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetSortOrders assigns rank 1..N to the user's grants in the given order,
// in one transaction. IDs the user holds no grant for are skipped.
func (r *ListRepository) SetSortOrders(ctx context.Context, userID uint, orderedListIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, listID := range orderedListIDs {
			err := tx.Model(&model.ListAccess{}).
				Where("user_id = ? AND list_id = ?", userID, listID).
				Update("sort_order", i+1).Error
			if err != nil {
				return fmt.Errorf("set sort order for list %d: %w", listID, err)
			}
		}
		return nil
	})
}

// CountTasksByList counts tasks per list for the given lists.
func (r *ListRepository) CountTasksByList(ctx context.Context, listIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(listIDs))
	if len(listIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		ListID uint
		C      int64
	}
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Select("list_id, COUNT(*) AS c").
		Where("list_id IN ?", listIDs).
		Group("list_id").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	for _, row := range rows {
		counts[row.ListID] = row.C
	}
	return counts, nil
}
