package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config keeps runtime settings for the server.
type Config struct {
	DatabaseURL         string
	ListenAddr          string
	JWTSecret           string
	TokenTTL            time.Duration
	LoginAttemptWindow  time.Duration
	MaxLoginAttempts    int
	AttemptRetention    time.Duration
	MaintenanceInterval time.Duration

	// EnableListOrdering gates the per-user list ordering feature for
	// deployments that don't want it. When false, SetOrder reports
	// unsupported instead of failing.
	EnableListOrdering bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:         strings.TrimSpace(os.Getenv("DATABASE_URL")),
		ListenAddr:          strings.TrimSpace(os.Getenv("LISTEN_ADDR")),
		JWTSecret:           strings.TrimSpace(os.Getenv("JWT_SECRET")),
		TokenTTL:            parseHours(os.Getenv("TOKEN_TTL_HOURS")),
		LoginAttemptWindow:  time.Minute,
		MaxLoginAttempts:    parseInt(os.Getenv("MAX_LOGIN_ATTEMPTS")),
		AttemptRetention:    parseHours(os.Getenv("LOGIN_ATTEMPT_RETENTION_HOURS")),
		MaintenanceInterval: parseHours(os.Getenv("MAINTENANCE_INTERVAL_HOURS")),
		EnableListOrdering:  os.Getenv("DISABLE_LIST_ORDERING") == "",
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "todolist.db"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = 5
	}
	if cfg.AttemptRetention == 0 {
		cfg.AttemptRetention = 7 * 24 * time.Hour
	}
	if cfg.MaintenanceInterval == 0 {
		cfg.MaintenanceInterval = 6 * time.Hour
	}

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func parseHours(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

func parseInt(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}
