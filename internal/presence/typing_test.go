package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type typingRecorder struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (r *typingRecorder) emit(_, _ uuid.UUID, typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if typing {
		r.starts++
	} else {
		r.stops++
	}
}

func (r *typingRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops
}

func TestTypingBurstEmitsOneStartOneStop(t *testing.T) {
	rec := &typingRecorder{}
	tracker := NewTypingTracker(40*time.Millisecond, rec.emit)
	channelID, userID := uuid.New(), uuid.New()

	for i := 0; i < 5; i++ {
		tracker.Touch(channelID, userID)
		time.Sleep(5 * time.Millisecond)
	}

	starts, stops := rec.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 0, stops)

	require.Eventually(t, func() bool {
		_, stops := rec.counts()
		return stops == 1
	}, time.Second, 10*time.Millisecond)

	starts, _ = rec.counts()
	assert.Equal(t, 1, starts)
}

func TestTypingKeystrokeResetsQuietTimer(t *testing.T) {
	rec := &typingRecorder{}
	tracker := NewTypingTracker(60*time.Millisecond, rec.emit)
	channelID, userID := uuid.New(), uuid.New()

	tracker.Touch(channelID, userID)
	// Keep touching past the original deadline; the flag must stay up.
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		tracker.Touch(channelID, userID)
	}

	_, stops := rec.counts()
	assert.Equal(t, 0, stops)
}

func TestTypingStopEmitsExactlyOnce(t *testing.T) {
	rec := &typingRecorder{}
	tracker := NewTypingTracker(time.Minute, rec.emit)
	channelID, userID := uuid.New(), uuid.New()

	tracker.Touch(channelID, userID)
	tracker.Stop(channelID, userID)
	tracker.Stop(channelID, userID)

	starts, stops := rec.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
}

func TestTypingStopWithoutTouchIsNoop(t *testing.T) {
	rec := &typingRecorder{}
	tracker := NewTypingTracker(time.Minute, rec.emit)

	tracker.Stop(uuid.New(), uuid.New())
	_, stops := rec.counts()
	assert.Equal(t, 0, stops)
}

func TestTypingCloseFlushesActiveFlags(t *testing.T) {
	rec := &typingRecorder{}
	tracker := NewTypingTracker(time.Minute, rec.emit)
	channelID := uuid.New()
	a, b := uuid.New(), uuid.New()

	tracker.Touch(channelID, a)
	tracker.Touch(channelID, b)
	tracker.Close()

	starts, stops := rec.counts()
	assert.Equal(t, 2, starts)
	assert.Equal(t, 2, stops)

	// Closed trackers ignore further input.
	tracker.Touch(channelID, a)
	starts, _ = rec.counts()
	assert.Equal(t, 2, starts)
}

func TestTypingTextThresholds(t *testing.T) {
	assert.Equal(t, "", TypingText(nil))
	assert.Equal(t, "amy is typing…", TypingText([]string{"amy"}))
	assert.Equal(t, "amy and bob are typing…", TypingText([]string{"amy", "bob"}))
	assert.Equal(t, "amy, bob, and cal are typing…", TypingText([]string{"amy", "bob", "cal"}))
	assert.Equal(t, "4 people are typing…", TypingText([]string{"amy", "bob", "cal", "dee"}))
}
