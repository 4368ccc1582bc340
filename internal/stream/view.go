package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/palmerwenzel/chat-genius-sub000/internal/changefeed"
	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
	"github.com/palmerwenzel/chat-genius-sub000/internal/repositories"
)

// nearBottomThreshold is the pixel distance within which an inbound insert
// auto-scrolls instead of raising the new-messages flag.
const nearBottomThreshold = 100

// View is one channel or thread timeline kept consistent with the change
// feed. Messages are held in display order (oldest first) and are only
// mutated through the merge operations below.
type View struct {
	channelID uuid.UUID
	threadID  *uuid.UUID

	messagesRepo  repositories.MessageRepository
	reactionsRepo repositories.ReactionRepository
	logger        zerolog.Logger

	mu          sync.Mutex
	messages    []models.MessageView
	loading     bool
	nearBottom  bool
	autoScroll  bool
	newMessages bool
	onChange    func()
	notifyMu    sync.Mutex

	handles   []changefeed.Handle
	cleanups  []func()
	closeOnce sync.Once
}

// Snapshot is the render-ready state of a view.
type Snapshot struct {
	Messages    []models.MessageView `json:"messages"`
	Loading     bool                 `json:"loading"`
	NewMessages bool                 `json:"new_messages"`
}

// IsThread reports whether the view is thread-filtered.
func (v *View) IsThread() bool {
	return v.threadID != nil
}

// Snapshot returns a copy of the current view state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	msgs := make([]models.MessageView, len(v.messages))
	copy(msgs, v.messages)
	return Snapshot{Messages: msgs, Loading: v.loading, NewMessages: v.newMessages}
}

// Loading reports whether the initial load is still settling.
func (v *View) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

// SetOnChange registers a listener invoked after every state mutation.
// Listener runs never overlap, and each run observes the state current at
// run time, so a listener reading Snapshot cannot deliver stale state after
// newer state.
func (v *View) SetOnChange(fn func()) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

// SetScrollOffset records the viewer's distance from the bottom. Within the
// threshold, inserts auto-scroll; beyond it they raise the new-messages
// flag instead.
func (v *View) SetScrollOffset(px int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nearBottom = px <= nearBottomThreshold
}

// ScrollToBottom records a manual scroll-to-bottom, clearing the
// new-messages flag.
func (v *View) ScrollToBottom() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nearBottom = true
	v.newMessages = false
	v.autoScroll = false
}

// ConsumeAutoScroll reports and clears a pending auto-scroll signal.
func (v *View) ConsumeAutoScroll() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	pending := v.autoScroll
	v.autoScroll = false
	return pending
}

// NewMessagesPending reports whether inserts arrived while scrolled away.
func (v *View) NewMessagesPending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.newMessages
}

// RegisterCleanup adds a teardown hook run exactly once on Close, before
// feed subscriptions are dropped. The ws layer uses this to flush an active
// typing flag so a closed view cannot leak a still-typing state.
func (v *View) RegisterCleanup(fn func()) {
	v.mu.Lock()
	v.cleanups = append(v.cleanups, fn)
	v.mu.Unlock()
}

// Close tears the view down: cleanup hooks first, then every feed
// subscription. Idempotent.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		cleanups := v.cleanups
		handles := v.handles
		v.cleanups = nil
		v.handles = nil
		v.mu.Unlock()

		for _, fn := range cleanups {
			fn()
		}
		for _, h := range handles {
			if err := h.Unsubscribe(); err != nil {
				v.logger.Warn().Err(err).Msg("unsubscribe failed on view close")
			}
		}
	})
}

// belongs reports whether a message row is part of this view: the channel
// must match and the thread-nullity must agree (a thread view only accepts
// its own replies, the main timeline only accepts non-thread rows).
func (v *View) belongs(msg models.Message) bool {
	if msg.ChannelID != v.channelID {
		return false
	}
	if v.threadID == nil {
		return msg.ThreadID == nil
	}
	return msg.ThreadID != nil && *msg.ThreadID == *v.threadID
}

// ApplyMessageEvent merges one message-table change into the view. Events
// referencing unknown ids are skipped, duplicate events are no-ops, and a
// racing pair of updates resolves by updated_at.
func (v *View) ApplyMessageEvent(ctx context.Context, ev changefeed.Event) {
	switch ev.Type {
	case changefeed.EventInsert:
		var msg models.Message
		if err := json.Unmarshal(ev.New, &msg); err != nil {
			v.logger.Warn().Err(err).Msg("insert event decode failed")
			return
		}
		v.applyInsert(ctx, msg)
	case changefeed.EventUpdate:
		var msg models.Message
		if err := json.Unmarshal(ev.New, &msg); err != nil {
			v.logger.Warn().Err(err).Msg("update event decode failed")
			return
		}
		v.applyUpdate(ctx, msg)
	case changefeed.EventDelete:
		var old models.Message
		if err := json.Unmarshal(ev.Old, &old); err != nil {
			v.logger.Warn().Err(err).Msg("delete event decode failed")
			return
		}
		v.applyHardDelete(old.ID)
	}
}

func (v *View) applyInsert(ctx context.Context, msg models.Message) {
	if !v.belongs(msg) || msg.IsDeleted() {
		// A reply insert still moves the parent's thread count.
		if v.threadID == nil && msg.ChannelID == v.channelID && msg.ThreadID != nil {
			v.refreshThreadSize(ctx, *msg.ThreadID)
		}
		return
	}

	// The feed payload has no joined sender; fetch the full projection.
	loaded, err := v.messagesRepo.GetMessage(ctx, msg.ID)
	if err == nil {
		msg = loaded
	} else if err != repositories.ErrMessageNotFound {
		v.logger.Warn().Err(err).Str("message_id", msg.ID.String()).Msg("sender projection fetch failed")
	}

	mv := models.MessageView{Message: msg}
	if msg.ReplyingToID != nil {
		if parent, err := v.messagesRepo.GetMessage(ctx, *msg.ReplyingToID); err == nil {
			mv.ReplyingTo = &parent
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.indexOf(msg.ID) >= 0 {
		return
	}
	v.messages = append(v.messages, mv)
	if v.nearBottom {
		v.autoScroll = true
	} else {
		v.newMessages = true
	}
	v.changedLocked()
}

func (v *View) applyUpdate(ctx context.Context, msg models.Message) {
	// Reply updates only affect the parent's thread count in a main view.
	if v.threadID == nil && msg.ChannelID == v.channelID && msg.ThreadID != nil {
		v.refreshThreadSize(ctx, *msg.ThreadID)
	}

	v.mu.Lock()
	idx := v.indexOf(msg.ID)

	switch {
	case msg.IsDeleted():
		// Deleted content must never render, even mid-edit.
		if idx >= 0 {
			v.messages = append(v.messages[:idx], v.messages[idx+1:]...)
		}
		v.patchPreviewsLocked(msg)
		v.changedLocked()
	case v.threadID == nil && msg.ThreadID != nil:
		// Promoted into a thread: a message belongs to exactly one of
		// {main timeline, one thread}.
		if idx >= 0 {
			v.messages = append(v.messages[:idx], v.messages[idx+1:]...)
			v.changedLocked()
		}
		v.patchPreviewsLocked(msg)
	case idx >= 0:
		existing := &v.messages[idx]
		if msg.UpdatedAt.Before(existing.UpdatedAt) {
			break // stale event lost the write race
		}
		existing.Content = msg.Content
		existing.Metadata = msg.Metadata
		existing.UpdatedAt = msg.UpdatedAt
		existing.ReplyingToID = msg.ReplyingToID
		v.patchPreviewsLocked(msg)
		v.changedLocked()
	default:
		// Unknown id: a missed or out-of-order event, skipped by design.
		v.patchPreviewsLocked(msg)
	}
	v.mu.Unlock()
}

func (v *View) applyHardDelete(id uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	idx := v.indexOf(id)
	if idx < 0 {
		return
	}
	v.messages = append(v.messages[:idx], v.messages[idx+1:]...)
	v.changedLocked()
}

// ApplyReactionEvent refetches and regroups one message's reactions. The
// aggregate is always rebuilt from rows rather than adjusted, so event
// order cannot produce duplicate groups.
func (v *View) ApplyReactionEvent(ctx context.Context, messageID uuid.UUID) {
	v.mu.Lock()
	present := v.indexOf(messageID) >= 0
	v.mu.Unlock()
	if !present {
		return
	}

	rows, err := v.reactionsRepo.ListForMessage(ctx, messageID)
	if err != nil {
		v.logger.Warn().Err(err).Str("message_id", messageID.String()).Msg("reaction refetch failed")
		return
	}
	groups := models.GroupReactions(rows)

	v.mu.Lock()
	defer v.mu.Unlock()
	idx := v.indexOf(messageID)
	if idx < 0 {
		return
	}
	v.messages[idx].Reactions = groups
	v.changedLocked()
}

// refreshThreadSize recomputes a root message's reply count from the store.
func (v *View) refreshThreadSize(ctx context.Context, rootID uuid.UUID) {
	v.mu.Lock()
	present := v.indexOf(rootID) >= 0
	v.mu.Unlock()
	if !present {
		return
	}

	count, err := v.messagesRepo.CountThreadReplies(ctx, rootID)
	if err != nil {
		v.logger.Warn().Err(err).Str("message_id", rootID.String()).Msg("thread count refresh failed")
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	idx := v.indexOf(rootID)
	if idx < 0 || v.messages[idx].ThreadSize == count {
		return
	}
	v.messages[idx].ThreadSize = count
	v.changedLocked()
}

// patchPreviewsLocked live-patches reply previews referencing the changed
// parent. Callers hold v.mu.
func (v *View) patchPreviewsLocked(parent models.Message) {
	patched := false
	for i := range v.messages {
		prev := v.messages[i].ReplyingTo
		if prev == nil || prev.ID != parent.ID {
			continue
		}
		if parent.UpdatedAt.Before(prev.UpdatedAt) {
			continue
		}
		clone := *prev
		clone.Content = parent.Content
		clone.Metadata = parent.Metadata
		clone.UpdatedAt = parent.UpdatedAt
		clone.DeletedAt = parent.DeletedAt
		if parent.IsDeleted() {
			clone.Content = models.DeletionPlaceholder
			clone.Metadata = nil
		}
		v.messages[i].ReplyingTo = &clone
		patched = true
	}
	if patched {
		v.changedLocked()
	}
}

func (v *View) indexOf(id uuid.UUID) int {
	for i := range v.messages {
		if v.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// changedLocked schedules the change listener off the state lock. notifyMu
// serializes the runs so two back-to-back mutations cannot invoke the
// listener concurrently.
func (v *View) changedLocked() {
	fn := v.onChange
	if fn == nil {
		return
	}
	go func() {
		v.notifyMu.Lock()
		defer v.notifyMu.Unlock()
		fn()
	}()
}

func (v *View) setLoading(loading bool) {
	v.mu.Lock()
	v.loading = loading
	v.changedLocked()
	v.mu.Unlock()
}

// settleTimer clears the loading flag after the settle delay, smoothing a
// flash of partial content on fast loads.
func (v *View) settleTimer(d time.Duration) {
	if d <= 0 {
		v.setLoading(false)
		return
	}
	time.AfterFunc(d, func() { v.setLoading(false) })
}
