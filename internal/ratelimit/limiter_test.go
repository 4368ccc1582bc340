package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: make(map[string]int64)}
}

func (f *fakeCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

func TestCheckDecrementsRemaining(t *testing.T) {
	store := newFakeCounter()
	limiter := NewLimiter(store, zerolog.Nop())
	userID := uuid.New()

	res := limiter.Check(context.Background(), userID, "messages", "create")
	require.Equal(t, 60, res.Limit)
	assert.Equal(t, 59, res.Remaining)

	res = limiter.Check(context.Background(), userID, "messages", "create")
	assert.Equal(t, 58, res.Remaining)
}

func TestCheckExhaustedWindow(t *testing.T) {
	store := newFakeCounter()
	limiter := NewLimiter(store, zerolog.Nop())
	limiter.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	userID := uuid.New()

	for i := 0; i < 60; i++ {
		limiter.Check(context.Background(), userID, "messages", "create")
	}
	res := limiter.Check(context.Background(), userID, "messages", "create")
	assert.Equal(t, 0, res.Remaining)
}

func TestCheckFreshWindowAfterMinuteBoundary(t *testing.T) {
	store := newFakeCounter()
	limiter := NewLimiter(store, zerolog.Nop())
	userID := uuid.New()

	now := time.UnixMilli(1_700_000_000_000)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 61; i++ {
		limiter.Check(context.Background(), userID, "messages", "create")
	}

	now = now.Add(time.Minute)
	res := limiter.Check(context.Background(), userID, "messages", "create")
	assert.Equal(t, 59, res.Remaining)
}

func TestCheckResetIsNextMinuteBoundary(t *testing.T) {
	store := newFakeCounter()
	limiter := NewLimiter(store, zerolog.Nop())
	limiter.now = func() time.Time { return time.UnixMilli(1_700_000_012_345) }

	res := limiter.Check(context.Background(), uuid.New(), "messages", "create")
	assert.Equal(t, time.UnixMilli(1_700_000_040_000), res.Reset)
}

func TestCheckFailsOpenOnStoreError(t *testing.T) {
	store := newFakeCounter()
	store.err = assert.AnError
	limiter := NewLimiter(store, zerolog.Nop())

	res := limiter.Check(context.Background(), uuid.New(), "messages", "create")
	assert.Equal(t, 1, res.Remaining)
}

func TestCheckDistinctKeysDistinctWindows(t *testing.T) {
	store := newFakeCounter()
	limiter := NewLimiter(store, zerolog.Nop())
	userID := uuid.New()

	limiter.Check(context.Background(), userID, "messages", "create")
	res := limiter.Check(context.Background(), userID, "reactions", "create")
	assert.Equal(t, 119, res.Remaining)
}
