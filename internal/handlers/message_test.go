package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/palmerwenzel/chat-genius-sub000/internal/command"
	"github.com/palmerwenzel/chat-genius-sub000/internal/middleware"
	"github.com/palmerwenzel/chat-genius-sub000/internal/mocks"
	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
	"github.com/palmerwenzel/chat-genius-sub000/internal/ratelimit"
	"github.com/palmerwenzel/chat-genius-sub000/internal/repositories"
	"github.com/palmerwenzel/chat-genius-sub000/internal/stream"
)

// stubCounter is an in-memory rate-limit counter for handler tests.
type stubCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newStubCounter() *stubCounter {
	return &stubCounter{counts: make(map[string]int64)}
}

func (s *stubCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}

var testUserID = uuid.New()

func setupRouter(register func(r *gin.Engine)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, testUserID)
		c.Next()
	})
	register(r)
	return r
}

func newMessageFixture(messages *mocks.MessageRepositoryMock, bots *mocks.BotClientMock, notifier *mocks.NotifierMock) (*MessageHandler, *gin.Engine) {
	streams := stream.NewReconciler(stream.Options{
		Messages:    messages,
		Reactions:   new(mocks.ReactionRepositoryMock),
		Feed:        mocks.NewFeedFake(),
		Logger:      zerolog.Nop(),
		SettleDelay: 0,
	})
	limiter := ratelimit.NewLimiter(newStubCounter(), zerolog.Nop())
	dispatcher := command.NewDispatcher(messages, bots, notifier, nil, zerolog.Nop())
	handler := NewMessageHandler(messages, streams, limiter, dispatcher, zerolog.Nop())

	router := setupRouter(func(r *gin.Engine) {
		r.GET("/channels/:channel_id/messages", handler.ListMessages)
		r.POST("/channels/:channel_id/messages", handler.CreateMessage)
		r.PATCH("/messages/:message_id", handler.UpdateMessage)
		r.DELETE("/messages/:message_id", handler.DeleteMessage)
	})
	return handler, router
}

func TestCreateMessageStoresPlainText(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	_, router := newMessageFixture(messages, new(mocks.BotClientMock), new(mocks.NotifierMock))
	channelID := uuid.New()

	messages.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.ChannelID == channelID && m.SenderID == testUserID && m.Content == "hello"
	})).Return(models.Message{ID: uuid.New(), Content: "hello"}, nil).Once()

	body := bytes.NewBufferString(`{"content":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/channels/"+channelID.String()+"/messages", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "59", rec.Header().Get("X-RateLimit-Remaining"))
	messages.AssertExpectations(t)
}

func TestCreateMessageDispatchesCommand(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	bots := new(mocks.BotClientMock)
	notifier := new(mocks.NotifierMock)
	_, router := newMessageFixture(messages, bots, notifier)
	channelID := uuid.New()

	done := make(chan struct{})
	bots.On("ResetIndex", mock.Anything, channelID.String()).
		Run(func(mock.Arguments) { close(done) }).Return(nil).Once()
	messages.On("CreateMessage", mock.Anything, mock.Anything).Return(models.Message{}, nil)

	body := bytes.NewBufferString(`{"content":"/bot reset-index"}`)
	req := httptest.NewRequest(http.MethodPost, "/channels/"+channelID.String()+"/messages", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "reset-index", resp["command"])

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("command never dispatched")
	}
}

func TestCreateMessageRejectsMalformedCommand(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	_, router := newMessageFixture(messages, new(mocks.BotClientMock), new(mocks.NotifierMock))

	body := bytes.NewBufferString(`{"content":"/bot seed no quotes"}`)
	req := httptest.NewRequest(http.MethodPost, "/channels/"+uuid.NewString()+"/messages", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "missing_prompt", resp["error"])
	messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestCreateMessageRateLimited(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	_, router := newMessageFixture(messages, new(mocks.BotClientMock), new(mocks.NotifierMock))
	channelID := uuid.New()

	messages.On("CreateMessage", mock.Anything, mock.Anything).Return(models.Message{}, nil)

	var last *httptest.ResponseRecorder
	for i := 0; i < 60; i++ {
		body := bytes.NewBufferString(`{"content":"spam"}`)
		req := httptest.NewRequest(http.MethodPost, "/channels/"+channelID.String()+"/messages", body)
		req.Header.Set("Content-Type", "application/json")
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
	}

	require.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
}

func TestUpdateMessageSenderOnly(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	_, router := newMessageFixture(messages, new(mocks.BotClientMock), new(mocks.NotifierMock))
	messageID := uuid.New()

	messages.On("UpdateContent", mock.Anything, messageID, testUserID, "edited").
		Return(models.Message{}, repositories.ErrNotSender).Once()

	body := bytes.NewBufferString(`{"content":"edited"}`)
	req := httptest.NewRequest(http.MethodPatch, "/messages/"+messageID.String(), body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateMessageNotFound(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	_, router := newMessageFixture(messages, new(mocks.BotClientMock), new(mocks.NotifierMock))
	messageID := uuid.New()

	messages.On("UpdateContent", mock.Anything, messageID, testUserID, "edited").
		Return(models.Message{}, repositories.ErrMessageNotFound).Once()

	body := bytes.NewBufferString(`{"content":"edited"}`)
	req := httptest.NewRequest(http.MethodPatch, "/messages/"+messageID.String(), body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMessageSoftDeletes(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	_, router := newMessageFixture(messages, new(mocks.BotClientMock), new(mocks.NotifierMock))
	messageID := uuid.New()

	messages.On("SoftDelete", mock.Anything, messageID, testUserID).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/"+messageID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	messages.AssertExpectations(t)
}

func TestListMessagesReturnsSnapshot(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	_, router := newMessageFixture(messages, new(mocks.BotClientMock), new(mocks.NotifierMock))
	channelID := uuid.New()

	messages.On("ListChannelPage", mock.Anything, channelID, stream.DefaultPageSize).
		Return([]models.Message{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/channels/"+channelID.String()+"/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap stream.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Empty(t, snap.Messages)
	assert.False(t, snap.Loading)
}
