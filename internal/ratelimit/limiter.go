package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/palmerwenzel/chat-genius-sub000/internal/repositories"
)

// Default per-minute limits, used when no setting row overrides them.
var defaultLimits = map[string]int{
	"messages/create":  60,
	"reactions/create": 120,
	"files/upload":     20,
	"search/query":     30,
}

const counterTTL = 2 * time.Minute

// Result reports the outcome of an admission check. Callers proceed with the
// guarded action only while Remaining > 0; the limiter never blocks the
// action itself.
type Result struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

// CounterStore is the external atomic counter backing the windows.
type CounterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Limiter admits or rejects actions against fixed per-minute windows keyed
// by (user, resource, action, minute bucket).
type Limiter struct {
	store  CounterStore
	limits map[string]int
	logger zerolog.Logger
	now    func() time.Time
}

// NewLimiter builds a limiter with the hard-coded default limits.
func NewLimiter(store CounterStore, logger zerolog.Logger) *Limiter {
	limits := make(map[string]int, len(defaultLimits))
	for k, v := range defaultLimits {
		limits[k] = v
	}
	return &Limiter{
		store:  store,
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
}

// LoadSettings overlays configured limits on top of the defaults. A load
// failure leaves the defaults in place.
func (l *Limiter) LoadSettings(ctx context.Context, repo repositories.SettingsRepository) {
	settings, err := repo.ListRateLimits(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("rate limit settings unavailable, using defaults")
		return
	}
	for _, s := range settings {
		l.limits[s.Resource+"/"+s.Action] = s.PerMinute
	}
}

// Check increments the current minute window and reports remaining quota.
// On counter-store failure it fails open with Remaining 1: availability is
// preferred over strict enforcement.
func (l *Limiter) Check(ctx context.Context, userID uuid.UUID, resource, action string) Result {
	now := l.now()
	bucket := now.UnixMilli() / 60_000
	reset := time.UnixMilli((bucket + 1) * 60_000)

	limit, ok := l.limits[resource+"/"+action]
	if !ok {
		limit = 60
	}

	key := fmt.Sprintf("rl:%s:%s:%s:%d", userID, resource, action, bucket)
	count, err := l.store.Incr(ctx, key, counterTTL)
	if err != nil {
		l.logger.Warn().Err(err).
			Str("resource", resource).
			Str("action", action).
			Msg("rate limit counter unavailable, failing open")
		return Result{Limit: limit, Remaining: 1, Reset: reset}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Limit: limit, Remaining: remaining, Reset: reset}
}
