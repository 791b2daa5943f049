package model

import "time"

// User is an account that owns lists and is granted access to others.
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex"`
	PasswordHash string
	IsAdmin      bool `gorm:"default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
