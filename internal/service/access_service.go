package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/philboiv1n/todolist/internal/model"
	"github.com/philboiv1n/todolist/internal/repository"
)

// PersonalListName is the name given to the starter list created on first
// provisioning. Users may rename or delete it like any other list; the
// "personal" property tracks the earliest owned list, not this name.
const PersonalListName = "Personal list"

// AccessService answers capability questions for (user, list) pairs.
// A ListAccess row is the sole source of visibility: no row, no list.
type AccessService struct {
	listRepo *repository.ListRepository
	userRepo *repository.UserRepository
}

func NewAccessService(listRepo *repository.ListRepository, userRepo *repository.UserRepository) *AccessService {
	return &AccessService{listRepo: listRepo, userRepo: userRepo}
}

// HasAccess reports whether the user holds a grant on the list, and with
// requireEdit, whether that grant carries the edit bit.
func (s *AccessService) HasAccess(ctx context.Context, userID, listID uint, requireEdit bool) (bool, error) {
	access, err := s.listRepo.AccessRow(ctx, listID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("access check: %w", err)
	}
	if requireEdit && !access.CanEdit {
		return false, nil
	}
	return true, nil
}

// IsPersonalList reports whether the list is the user's personal list: the
// earliest list the user created. Derived on the fly, never stored.
func (s *AccessService) IsPersonalList(ctx context.Context, listID, userID uint) (bool, error) {
	list, err := s.listRepo.FindByID(ctx, listID)
	if err != nil {
		return false, notFound(err)
	}
	if list.CreatedBy == nil || *list.CreatedBy != userID {
		return false, nil
	}
	earliest, err := s.listRepo.EarliestOwnedBy(ctx, userID)
	if err != nil {
		return false, notFound(err)
	}
	return earliest.ID == listID, nil
}

// EnsurePersonalList returns the user's earliest owned list, creating the
// starter list and its edit grant only when the user owns nothing yet. Safe
// to call on every provisioning pass; it never duplicates lists.
func (s *AccessService) EnsurePersonalList(ctx context.Context, userID uint) (uint, error) {
	var listID uint

	earliest, err := s.listRepo.EarliestOwnedBy(ctx, userID)
	switch {
	case err == nil:
		listID = earliest.ID
	case errors.Is(err, gorm.ErrRecordNotFound):
		list := model.List{Name: PersonalListName, CreatedBy: &userID}
		if err := s.listRepo.Create(ctx, &list); err != nil {
			return 0, err
		}
		listID = list.ID
	default:
		return 0, fmt.Errorf("find personal list: %w", err)
	}

	// The owner always keeps an edit grant on their personal list.
	if _, err := s.listRepo.AccessRow(ctx, listID, userID); errors.Is(err, gorm.ErrRecordNotFound) {
		if err := s.listRepo.UpsertAccess(ctx, listID, userID, true); err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, fmt.Errorf("personal list grant: %w", err)
	}

	return listID, nil
}

// CanManageList reports whether the user may rename, delete or share the
// list. Management is broader than editing: administrators and the list's
// creator qualify regardless of their own grant's edit bit.
func (s *AccessService) CanManageList(ctx context.Context, userID, listID uint) (bool, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return false, notFound(err)
	}
	if user.IsAdmin {
		return true, nil
	}
	list, err := s.listRepo.FindByID(ctx, listID)
	if err != nil {
		return false, notFound(err)
	}
	return list.CreatedBy != nil && *list.CreatedBy == userID, nil
}
