package model

import "time"

// List is a named collection of tasks. CreatedBy goes nil when the creating
// user is deleted; the list and its tasks survive.
type List struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"index"`
	CreatedBy *uint  `gorm:"index"`
	CreatedAt time.Time
	Tasks     []Task       `gorm:"foreignKey:ListID;constraint:OnDelete:CASCADE"`
	Access    []ListAccess `gorm:"foreignKey:ListID;constraint:OnDelete:CASCADE"`
}

// ListAccess grants a user visibility into a list. Without a row here the
// user cannot see the list at all; CanEdit=false means read-only. SortOrder
// and IsExpanded are per-user display preferences.
type ListAccess struct {
	ListID     uint `gorm:"primaryKey;autoIncrement:false"`
	UserID     uint `gorm:"primaryKey;autoIncrement:false;index"`
	CanEdit    bool `gorm:"default:false"`
	SortOrder  *int
	IsExpanded bool `gorm:"default:true"`
}

func (ListAccess) TableName() string { return "list_access" }
