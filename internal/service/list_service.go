package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"github.com/philboiv1n/todolist/internal/model"
	"github.com/philboiv1n/todolist/internal/repository"
)

// ListService manages lists, their sharing grants, per-user ordering and
// the global change token.
type ListService struct {
	db       *gorm.DB
	access   *AccessService
	listRepo *repository.ListRepository
	userRepo *repository.UserRepository
	metaRepo *repository.MetaRepository

	// orderingEnabled gates the per-user sort feature for deployments that
	// switch it off; SetOrder then reports unsupported instead of failing.
	orderingEnabled bool
}

func NewListService(db *gorm.DB, access *AccessService, listRepo *repository.ListRepository, userRepo *repository.UserRepository, metaRepo *repository.MetaRepository, orderingEnabled bool) *ListService {
	return &ListService{
		db:              db,
		access:          access,
		listRepo:        listRepo,
		userRepo:        userRepo,
		metaRepo:        metaRepo,
		orderingEnabled: orderingEnabled,
	}
}

// Create makes a new list owned by the acting user and grants them edit
// access to it.
func (s *ListService) Create(ctx context.Context, actingUserID uint, name string) (*model.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: list name is required", ErrInvalidInput)
	}

	list := model.List{Name: name, CreatedBy: &actingUserID}
	err := withBusyRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			lists := repository.NewListRepository(tx)
			if err := lists.Create(ctx, &list); err != nil {
				return err
			}
			if err := lists.UpsertAccess(ctx, list.ID, actingUserID, true); err != nil {
				return err
			}
			return repository.NewMetaRepository(tx).TouchChange(ctx)
		})
	})
	if err != nil {
		return nil, err
	}
	return &list, nil
}

// Rename changes a list's name. Requires the manage capability.
func (s *ListService) Rename(ctx context.Context, actingUserID, listID uint, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: list name is required", ErrInvalidInput)
	}
	if err := s.requireManageable(ctx, actingUserID, listID); err != nil {
		return err
	}
	return withBusyRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repository.NewListRepository(tx).Rename(ctx, listID, name); err != nil {
				return notFound(err)
			}
			return repository.NewMetaRepository(tx).TouchChange(ctx)
		})
	})
}

// Delete removes a list with all its tasks and grants. Other lists are
// untouched even when the same user created them.
func (s *ListService) Delete(ctx context.Context, actingUserID, listID uint) error {
	if err := s.requireManageable(ctx, actingUserID, listID); err != nil {
		return err
	}
	return withBusyRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repository.NewListRepository(tx).Delete(ctx, listID); err != nil {
				return notFound(err)
			}
			return repository.NewMetaRepository(tx).TouchChange(ctx)
		})
	})
}

// ClearCompleted deletes every done task in the list.
func (s *ListService) ClearCompleted(ctx context.Context, actingUserID, listID uint) error {
	if err := s.requireManageable(ctx, actingUserID, listID); err != nil {
		return err
	}
	return withBusyRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repository.NewTaskRepository(tx).ClearCompleted(ctx, listID); err != nil {
				return err
			}
			return repository.NewMetaRepository(tx).TouchChange(ctx)
		})
	})
}

// SetAccess grants or updates another user's access to a list. The list's
// creator always keeps the edit bit regardless of what was asked.
func (s *ListService) SetAccess(ctx context.Context, actingUserID, listID, userID uint, canEdit bool) error {
	if err := s.requireManageable(ctx, actingUserID, listID); err != nil {
		return err
	}
	if _, err := s.userRepo.FindByID(ctx, userID); err != nil {
		return notFound(err)
	}
	list, err := s.listRepo.FindByID(ctx, listID)
	if err != nil {
		return notFound(err)
	}
	if list.CreatedBy != nil && *list.CreatedBy == userID {
		canEdit = true
	}
	return withBusyRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repository.NewListRepository(tx).UpsertAccess(ctx, listID, userID, canEdit); err != nil {
				return err
			}
			return repository.NewMetaRepository(tx).TouchChange(ctx)
		})
	})
}

// RemoveAccess revokes a user's grant. The list owner cannot be removed.
func (s *ListService) RemoveAccess(ctx context.Context, actingUserID, listID, userID uint) error {
	if err := s.requireManageable(ctx, actingUserID, listID); err != nil {
		return err
	}
	list, err := s.listRepo.FindByID(ctx, listID)
	if err != nil {
		return notFound(err)
	}
	if list.CreatedBy != nil && *list.CreatedBy == userID {
		return fmt.Errorf("%w: cannot remove the list owner", ErrInvalidInput)
	}
	return withBusyRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repository.NewListRepository(tx).RemoveAccess(ctx, listID, userID); err != nil {
				return err
			}
			return repository.NewMetaRepository(tx).TouchChange(ctx)
		})
	})
}

// SetExpanded stores the caller's own expanded/collapsed display state for
// a list. Any grant suffices; this is not a mutation of shared data.
func (s *ListService) SetExpanded(ctx context.Context, actingUserID, listID uint, expanded bool) error {
	ok, err := s.access.HasAccess(ctx, actingUserID, listID, false)
	if err != nil {
		return err
	}
	if !ok {
		log.Printf("[info] user %d denied view on list %d", actingUserID, listID)
		return ErrForbidden
	}
	return notFound(s.listRepo.SetExpanded(ctx, listID, actingUserID, expanded))
}

// SetOrder assigns rank 1..N to the caller's grants in the given order,
// inside one transaction. Reports ErrUnsupported when the deployment has the
// ordering feature switched off.
func (s *ListService) SetOrder(ctx context.Context, actingUserID uint, orderedListIDs []uint) error {
	if !s.orderingEnabled {
		return fmt.Errorf("%w: list ordering is disabled", ErrUnsupported)
	}
	ids := make([]uint, 0, len(orderedListIDs))
	for _, id := range orderedListIDs {
		if id > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return withBusyRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repository.NewListRepository(tx).SetSortOrders(ctx, actingUserID, ids); err != nil {
				return err
			}
			return repository.NewMetaRepository(tx).TouchChange(ctx)
		})
	})
}

// ChangeToken returns the global staleness token. Consumers treat it as
// "bumped at least once per mutation", not as a precise mutation counter.
func (s *ListService) ChangeToken(ctx context.Context) (int64, error) {
	return s.metaRepo.ChangeToken(ctx)
}

func (s *ListService) requireManageable(ctx context.Context, actingUserID, listID uint) error {
	ok, err := s.access.CanManageList(ctx, actingUserID, listID)
	if err != nil {
		return err
	}
	if !ok {
		log.Printf("[info] user %d denied manage on list %d", actingUserID, listID)
		return ErrForbidden
	}
	return nil
}
