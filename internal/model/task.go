package model

import "time"

// Task is a single item in a list.
//
// DueDate is a calendar date stored as YYYY-MM-DD text; tasks have no
// time-of-day. RepeatRule holds the recurrence JSON payload (see the recur
// package) or nil for one-off tasks. RepeatSourceID is a weak back-reference
// to the completed task that spawned this one; it exists only to stop a
// second toggle from generating a duplicate next occurrence, and it may
// dangle once the source task is deleted.
type Task struct {
	ID             uint  `gorm:"primaryKey"`
	ListID         uint  `gorm:"index"`
	CreatorID      *uint `gorm:"index"`
	Title          string
	DueDate        *string
	IsDone         bool    `gorm:"default:false;index"`
	RepeatRule     *string `gorm:"type:text"`
	RepeatSourceID *uint   `gorm:"index"`
	CreatedAt      time.Time
}
