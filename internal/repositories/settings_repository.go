package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// RateLimitSetting is one configured (resource, action) per-minute limit.
type RateLimitSetting struct {
	Resource  string `db:"resource"`
	Action    string `db:"action"`
	PerMinute int    `db:"per_minute"`
}

// SettingsRepository exposes operator-tunable settings.
type SettingsRepository interface {
	ListRateLimits(ctx context.Context) ([]RateLimitSetting, error)
}

// SettingsRepo is the sqlx implementation of SettingsRepository.
type SettingsRepo struct {
	db *sqlx.DB
}

// NewSettingsRepo constructs a SettingsRepo.
func NewSettingsRepo(db *sqlx.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

// ListRateLimits returns all configured rate limits.
func (r *SettingsRepo) ListRateLimits(ctx context.Context) ([]RateLimitSetting, error) {
	var settings []RateLimitSetting
	err := r.db.SelectContext(ctx, &settings, `SELECT resource, action, per_minute FROM rate_limit_settings`)
	return settings, err
}
