package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/philboiv1n/todolist/internal/model"
	"github.com/philboiv1n/todolist/internal/repository"
)

// dummyHash keeps Authenticate constant-time for unknown usernames.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Dashboard bundles everything the admin surface needs in one read.
type Dashboard struct {
	Users         []model.User
	Lists         []model.List
	AccessByList  map[uint][]model.ListAccess
	TaskCounts    map[uint]int64
	LoginFailures []repository.AttemptSummary
}

// UserService covers account lifecycle and the admin-only operations.
type UserService struct {
	userRepo    *repository.UserRepository
	listRepo    *repository.ListRepository
	attemptRepo *repository.LoginAttemptRepository
	access      *AccessService
}

func NewUserService(userRepo *repository.UserRepository, listRepo *repository.ListRepository, attemptRepo *repository.LoginAttemptRepository, access *AccessService) *UserService {
	return &UserService{
		userRepo:    userRepo,
		listRepo:    listRepo,
		attemptRepo: attemptRepo,
		access:      access,
	}
}

// Authenticate verifies credentials and returns the account. Unknown
// usernames and wrong passwords are indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Burn a comparison anyway so unknown usernames cost the same.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrForbidden
	}
	return user, nil
}

// Create provisions a new account, including its personal list. Admin only.
func (s *UserService) Create(ctx context.Context, actingUserID uint, username, password string, isAdmin bool) (*model.User, error) {
	if err := s.requireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	if _, err := s.userRepo.FindByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: username is taken", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := model.User{Username: username, PasswordHash: string(hash), IsAdmin: isAdmin}
	if err := s.userRepo.Create(ctx, &user); err != nil {
		return nil, err
	}
	if _, err := s.access.EnsurePersonalList(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("provision personal list: %w", err)
	}
	log.Printf("[info] user %q created (id=%d admin=%t)", username, user.ID, isAdmin)
	return &user, nil
}

// ChangePassword lets a user rotate their own password after proving the
// current one.
func (s *UserService) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	if next == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return notFound(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return fmt.Errorf("%w: current password is incorrect", ErrForbidden)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.userRepo.SetPassword(ctx, userID, string(hash))
}

// ResetPassword sets a user's password without the current one. Admin only.
func (s *UserService) ResetPassword(ctx context.Context, actingUserID, userID uint, next string) error {
	if err := s.requireAdmin(ctx, actingUserID); err != nil {
		return err
	}
	if next == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return notFound(s.userRepo.SetPassword(ctx, userID, string(hash)))
}

// ToggleAdmin flips a user's admin flag. Admin only; admins cannot demote
// themselves, which keeps at least one admin around.
func (s *UserService) ToggleAdmin(ctx context.Context, actingUserID, userID uint) error {
	if err := s.requireAdmin(ctx, actingUserID); err != nil {
		return err
	}
	if actingUserID == userID {
		return fmt.Errorf("%w: cannot change your own admin flag", ErrInvalidInput)
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return notFound(err)
	}
	return s.userRepo.SetAdmin(ctx, userID, !user.IsAdmin)
}

// Delete removes an account. The user's tasks survive with their creator
// reference nulled; their access grants go away. Admin only.
func (s *UserService) Delete(ctx context.Context, actingUserID, userID uint) error {
	if err := s.requireAdmin(ctx, actingUserID); err != nil {
		return err
	}
	if actingUserID == userID {
		return fmt.Errorf("%w: cannot delete your own account", ErrInvalidInput)
	}
	return notFound(s.userRepo.Delete(ctx, userID))
}

// GetDashboard returns the admin overview. Admin only.
func (s *UserService) GetDashboard(ctx context.Context, actingUserID uint) (*Dashboard, error) {
	if err := s.requireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}

	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	lists, err := s.listRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	listIDs := make([]uint, len(lists))
	for i, l := range lists {
		listIDs[i] = l.ID
	}
	accessByList, err := s.listRepo.AccessByListIDs(ctx, listIDs)
	if err != nil {
		return nil, err
	}
	counts, err := s.listRepo.CountTasksByList(ctx, listIDs)
	if err != nil {
		return nil, err
	}
	failures, err := s.attemptRepo.FailureSummary(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Users:         users,
		Lists:         lists,
		AccessByList:  accessByList,
		TaskCounts:    counts,
		LoginFailures: failures,
	}, nil
}

func (s *UserService) requireAdmin(ctx context.Context, actingUserID uint) error {
	user, err := s.userRepo.FindByID(ctx, actingUserID)
	if err != nil {
		return notFound(err)
	}
	if !user.IsAdmin {
		log.Printf("[info] user %d denied admin operation", actingUserID)
		return ErrForbidden
	}
	return nil
}
