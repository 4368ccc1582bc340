package stream

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/palmerwenzel/chat-genius-sub000/internal/changefeed"
	"github.com/palmerwenzel/chat-genius-sub000/internal/mocks"
	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
)

type viewFixture struct {
	channelID uuid.UUID
	messages  *mocks.MessageRepositoryMock
	reactions *mocks.ReactionRepositoryMock
	feed      *mocks.FeedFake
	rec       *Reconciler
}

func newViewFixture() *viewFixture {
	f := &viewFixture{
		channelID: uuid.New(),
		messages:  new(mocks.MessageRepositoryMock),
		reactions: new(mocks.ReactionRepositoryMock),
		feed:      mocks.NewFeedFake(),
	}
	f.rec = NewReconciler(Options{
		Messages:    f.messages,
		Reactions:   f.reactions,
		Feed:        f.feed,
		Logger:      zerolog.Nop(),
		SettleDelay: 0,
	})
	return f
}

func (f *viewFixture) messagesTopic() string {
	return "messages:channel_id=eq." + f.channelID.String()
}

// openEmpty opens a main view over an empty channel with permissive mocks.
func (f *viewFixture) openEmpty(t *testing.T) *View {
	t.Helper()
	f.messages.On("ListChannelPage", mock.Anything, f.channelID, DefaultPageSize).
		Return([]models.Message{}, nil)
	view, err := f.rec.OpenChannel(context.Background(), f.channelID)
	require.NoError(t, err)
	return view
}

func (f *viewFixture) emitInsert(msg models.Message) {
	payload, _ := json.Marshal(msg)
	f.feed.Emit(f.messagesTopic(), changefeed.Event{
		Type: changefeed.EventInsert, Table: "messages", New: payload,
	})
}

func (f *viewFixture) emitUpdate(msg models.Message) {
	payload, _ := json.Marshal(msg)
	f.feed.Emit(f.messagesTopic(), changefeed.Event{
		Type: changefeed.EventUpdate, Table: "messages", New: payload,
	})
}

func (f *viewFixture) message(content string) models.Message {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return models.Message{
		ID:        uuid.New(),
		ChannelID: f.channelID,
		SenderID:  uuid.New(),
		Content:   content,
		Type:      models.MessageTypeText,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestViewSettlesImmediatelyWithZeroDelay(t *testing.T) {
	f := newViewFixture()
	view := f.openEmpty(t)
	assert.False(t, view.Loading())
}

func TestInsertAppendsAndAutoScrollsNearBottom(t *testing.T) {
	f := newViewFixture()
	view := f.openEmpty(t)

	msg := f.message("hello")
	f.messages.On("GetMessage", mock.Anything, msg.ID).Return(msg, nil)

	f.emitInsert(msg)

	snap := view.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "hello", snap.Messages[0].Content)
	assert.True(t, view.ConsumeAutoScroll())
	assert.False(t, view.NewMessagesPending())
}

func TestChangeListenerRunsNeverOverlap(t *testing.T) {
	f := newViewFixture()
	view := f.openEmpty(t)

	var active, overlapped int32
	runs := make(chan struct{}, 16)
	view.SetOnChange(func() {
		if atomic.AddInt32(&active, 1) > 1 {
			atomic.StoreInt32(&overlapped, 1)
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&active, -1)
		runs <- struct{}{}
	})

	const inserts = 8
	for i := 0; i < inserts; i++ {
		msg := f.message("burst")
		f.messages.On("GetMessage", mock.Anything, msg.ID).Return(msg, nil)
		f.emitInsert(msg)
	}

	for i := 0; i < inserts; i++ {
		select {
		case <-runs:
		case <-time.After(5 * time.Second):
			t.Fatal("change listener never ran")
		}
	}
	assert.Zero(t, atomic.LoadInt32(&overlapped))
}

func TestInsertIsIdempotent(t *testing.T) {
	f := newViewFixture()
	view := f.openEmpty(t)

	msg := f.message("once")
	f.messages.On("GetMessage", mock.Anything, msg.ID).Return(msg, nil)

	f.emitInsert(msg)
	f.emitInsert(msg)

	assert.Len(t, view.Snapshot().Messages, 1)
}

func TestInsertWhileScrolledAwayRaisesNewMessagesFlag(t *testing.T) {
	f := newViewFixture()
	view := f.openEmpty(t)
	view.SetScrollOffset(500)

	msg := f.message("unseen")
	f.messages.On("GetMessage", mock.Anything, msg.ID).Return(msg, nil)
	f.emitInsert(msg)

	assert.False(t, view.ConsumeAutoScroll())
	assert.True(t, view.NewMessagesPending())

	view.ScrollToBottom()
	assert.False(t, view.NewMessagesPending())
}

func TestThreadReplyExcludedFromMainViewButMovesCount(t *testing.T) {
	f := newViewFixture()

	root := f.message("root")
	f.messages.On("ListChannelPage", mock.Anything, f.channelID, DefaultPageSize).
		Return([]models.Message{root}, nil)
	f.messages.On("CountThreadReplies", mock.Anything, root.ID).Return(0, nil).Once()
	f.reactions.On("ListForMessage", mock.Anything, root.ID).Return([]models.Reaction{}, nil)

	view, err := f.rec.OpenChannel(context.Background(), f.channelID)
	require.NoError(t, err)
	require.Len(t, view.Snapshot().Messages, 1)

	// The reply recomputes the root's count instead of appearing inline.
	f.messages.On("CountThreadReplies", mock.Anything, root.ID).Return(1, nil)
	reply := f.message("reply")
	reply.ThreadID = &root.ID
	f.emitInsert(reply)

	snap := view.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, root.ID, snap.Messages[0].ID)
	assert.Equal(t, 1, snap.Messages[0].ThreadSize)
}

func TestUpdateResolvesRacesByTimestamp(t *testing.T) {
	f := newViewFixture()
	view := f.openEmpty(t)

	msg := f.message("original")
	f.messages.On("GetMessage", mock.Anything, msg.ID).Return(msg, nil)
	f.emitInsert(msg)

	stale := msg
	stale.Content = "stale edit"
	stale.UpdatedAt = msg.UpdatedAt.Add(-time.Second)
	f.emitUpdate(stale)
	assert.Equal(t, "original", view.Snapshot().Messages[0].Content)

	fresh := msg
	fresh.Content = "fresh edit"
	fresh.UpdatedAt = msg.UpdatedAt.Add(time.Second)
	f.emitUpdate(fresh)
	assert.Equal(t, "fresh edit", view.Snapshot().Messages[0].Content)
}

func TestSoftDeleteRemovesMessageAndPatchesPreviews(t *testing.T) {
	f := newViewFixture()
	view := f.openEmpty(t)

	parent := f.message("parent")
	f.messages.On("GetMessage", mock.Anything, parent.ID).Return(parent, nil)
	f.emitInsert(parent)

	reply := f.message("reply")
	reply.ReplyingToID = &parent.ID
	f.messages.On("GetMessage", mock.Anything, reply.ID).Return(reply, nil)
	f.emitInsert(reply)

	require.Len(t, view.Snapshot().Messages, 2)

	deletedAt := time.Now().UTC()
	deleted := parent
	deleted.Content = models.DeletionPlaceholder
	deleted.DeletedAt = &deletedAt
	deleted.UpdatedAt = deletedAt
	f.emitUpdate(deleted)

	snap := view.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, reply.ID, snap.Messages[0].ID)
	require.NotNil(t, snap.Messages[0].ReplyingTo)
	assert.Equal(t, models.DeletionPlaceholder, snap.Messages[0].ReplyingTo.Content)
}

func TestUpdateForUnknownIDIsNoop(t *testing.T) {
	f := newViewFixture()
	view := f.openEmpty(t)

	ghost := f.message("never seen")
	f.emitUpdate(ghost)

	assert.Empty(t, view.Snapshot().Messages)
}

func TestPromotionIntoThreadRemovesFromMainView(t *testing.T) {
	f := newViewFixture()
	view := f.openEmpty(t)

	msg := f.message("soon threaded")
	f.messages.On("GetMessage", mock.Anything, msg.ID).Return(msg, nil)
	f.emitInsert(msg)
	require.Len(t, view.Snapshot().Messages, 1)

	rootID := uuid.New()
	promoted := msg
	promoted.ThreadID = &rootID
	promoted.UpdatedAt = msg.UpdatedAt.Add(time.Second)
	f.emitUpdate(promoted)

	assert.Empty(t, view.Snapshot().Messages)
}

func TestReactionEventRebuildsGroupsFromRows(t *testing.T) {
	f := newViewFixture()
	view := f.openEmpty(t)

	msg := f.message("react to me")
	f.messages.On("GetMessage", mock.Anything, msg.ID).Return(msg, nil)
	f.emitInsert(msg)

	userA, userB := uuid.New(), uuid.New()
	f.reactions.On("ListForMessage", mock.Anything, msg.ID).Return([]models.Reaction{
		{MessageID: msg.ID, UserID: userA, Emoji: "🔥"},
		{MessageID: msg.ID, UserID: userB, Emoji: "🔥"},
	}, nil)

	payload, _ := json.Marshal(map[string]string{"message_id": msg.ID.String()})
	ev := changefeed.Event{Type: changefeed.EventInsert, Table: "reactions", New: payload}
	f.feed.Emit("reactions", ev)
	// A replayed event converges to the same aggregate.
	f.feed.Emit("reactions", ev)

	snap := view.Snapshot()
	require.Len(t, snap.Messages[0].Reactions, 1)
	assert.Equal(t, "🔥", snap.Messages[0].Reactions[0].Emoji)
	assert.Equal(t, 2, snap.Messages[0].Reactions[0].Count)
}

func TestReactionEventForAbsentMessageIsSkipped(t *testing.T) {
	f := newViewFixture()
	f.openEmpty(t)

	payload, _ := json.Marshal(map[string]string{"message_id": uuid.NewString()})
	f.feed.Emit("reactions", changefeed.Event{Type: changefeed.EventInsert, Table: "reactions", New: payload})

	f.reactions.AssertNotCalled(t, "ListForMessage", mock.Anything, mock.Anything)
}

func TestHardDeleteRemovesRow(t *testing.T) {
	f := newViewFixture()
	view := f.openEmpty(t)

	msg := f.message("gone for good")
	f.messages.On("GetMessage", mock.Anything, msg.ID).Return(msg, nil)
	f.emitInsert(msg)

	payload, _ := json.Marshal(msg)
	f.feed.Emit(f.messagesTopic(), changefeed.Event{
		Type: changefeed.EventDelete, Table: "messages", Old: payload,
	})

	assert.Empty(t, view.Snapshot().Messages)
}

func TestCloseRunsCleanupsOnceAndUnsubscribes(t *testing.T) {
	f := newViewFixture()
	view := f.openEmpty(t)

	calls := 0
	view.RegisterCleanup(func() { calls++ })

	require.Equal(t, 1, f.feed.SubscriberCount(f.messagesTopic()))
	view.Close()
	view.Close()

	assert.Equal(t, 1, calls)
	assert.Zero(t, f.feed.SubscriberCount(f.messagesTopic()))
	assert.Zero(t, f.feed.SubscriberCount("reactions"))
}
