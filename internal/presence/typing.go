package presence

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultQuietInterval is how long after the last keystroke a user is still
// considered typing.
const DefaultQuietInterval = 2 * time.Second

type typingKey struct {
	channelID uuid.UUID
	userID    uuid.UUID
}

// TypingTracker debounces local input activity into start/stop typing
// transitions. A burst of keystrokes emits one start; the stop fires once
// after the quiet interval, on an explicit Stop, or on Close, never twice.
type TypingTracker struct {
	quiet time.Duration
	emit  func(channelID, userID uuid.UUID, typing bool)

	mu     sync.Mutex
	timers map[typingKey]*time.Timer
	closed bool
}

// NewTypingTracker builds a tracker emitting transitions through emit.
func NewTypingTracker(quiet time.Duration, emit func(channelID, userID uuid.UUID, typing bool)) *TypingTracker {
	if quiet <= 0 {
		quiet = DefaultQuietInterval
	}
	return &TypingTracker{
		quiet:  quiet,
		emit:   emit,
		timers: make(map[typingKey]*time.Timer),
	}
}

// Touch records input activity. The first touch of a burst emits the start
// transition; every touch resets the quiet timer without re-emitting.
func (t *TypingTracker) Touch(channelID, userID uuid.UUID) {
	key := typingKey{channelID: channelID, userID: userID}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if timer, ok := t.timers[key]; ok {
		timer.Reset(t.quiet)
		t.mu.Unlock()
		return
	}
	t.timers[key] = time.AfterFunc(t.quiet, func() {
		t.clear(key)
	})
	t.mu.Unlock()

	t.emit(channelID, userID, true)
}

// Stop clears an active typing flag immediately, emitting the stop
// transition if one was pending. Safe to call when not typing.
func (t *TypingTracker) Stop(channelID, userID uuid.UUID) {
	t.clear(typingKey{channelID: channelID, userID: userID})
}

// Close stops every active flag, emitting each pending stop exactly once.
// A closed tracker ignores further touches; teardown must not leak a
// still-typing state.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	keys := make([]typingKey, 0, len(t.timers))
	for key, timer := range t.timers {
		timer.Stop()
		keys = append(keys, key)
	}
	t.timers = make(map[typingKey]*time.Timer)
	t.closed = true
	t.mu.Unlock()

	for _, key := range keys {
		t.emit(key.channelID, key.userID, false)
	}
}

func (t *TypingTracker) clear(key typingKey) {
	t.mu.Lock()
	timer, ok := t.timers[key]
	if ok {
		timer.Stop()
		delete(t.timers, key)
	}
	t.mu.Unlock()

	if ok {
		t.emit(key.channelID, key.userID, false)
	}
}

// TypingText renders the typing indicator line for a list of display names.
func TypingText(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing…"
	case 2:
		return names[0] + " and " + names[1] + " are typing…"
	case 3:
		return names[0] + ", " + names[1] + ", and " + names[2] + " are typing…"
	default:
		return fmt.Sprintf("%d people are typing…", len(names))
	}
}
