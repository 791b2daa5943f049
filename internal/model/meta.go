package model

// AppMeta holds single-row application state. The only key in use is
// "last_change": a millisecond timestamp bumped on every mutation, read by
// clients to detect staleness.
type AppMeta struct {
	MetaKey string `gorm:"primaryKey"`
	Value   int64
}

func (AppMeta) TableName() string { return "app_meta" }

// LoginAttempt records one authentication attempt for the admin view and
// for per-IP rate limiting.
type LoginAttempt struct {
	ID      uint   `gorm:"primaryKey"`
	IP      string `gorm:"index:idx_login_attempts_ip_ts"`
	Ts      int64  `gorm:"index:idx_login_attempts_ip_ts"`
	Success bool
}
