// Package service holds the business logic: access control, the task
// lifecycle with its recurrence state machine, list management, and user
// administration. Services speak a small error taxonomy that the controller
// layer maps onto its own responses.
package service

import (
	"errors"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// Domain error kinds. Controllers format these; services never render
// messages for end users.
var (
	// ErrNotFound means an id did not resolve to a row.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means a capability check failed. For list-level access
	// callers are expected to present it exactly like ErrNotFound so that
	// list existence is not leaked.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput means a title, date or rule failed validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict means transaction contention outlasted the store's busy
	// wait. Lifecycle operations retry it once before surfacing.
	ErrConflict = errors.New("conflict")
	// ErrUnsupported means an optional deployment feature is switched off.
	ErrUnsupported = errors.New("unsupported")
)

// notFound translates the store's missing-row error into the domain kind.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// isBusy reports whether err is SQLite lock contention, the only failure
// worth a transparent retry.
func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
