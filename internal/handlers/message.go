package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/palmerwenzel/chat-genius-sub000/internal/command"
	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
	"github.com/palmerwenzel/chat-genius-sub000/internal/observability"
	"github.com/palmerwenzel/chat-genius-sub000/internal/ratelimit"
	"github.com/palmerwenzel/chat-genius-sub000/internal/repositories"
	"github.com/palmerwenzel/chat-genius-sub000/internal/stream"
)

// MessageHandler manages channel message endpoints and routes slash
// commands to the dispatcher.
type MessageHandler struct {
	messages   repositories.MessageRepository
	streams    *stream.Reconciler
	limiter    *ratelimit.Limiter
	dispatcher *command.Dispatcher
	logger     zerolog.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages repositories.MessageRepository, streams *stream.Reconciler, limiter *ratelimit.Limiter, dispatcher *command.Dispatcher, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		messages:   messages,
		streams:    streams,
		limiter:    limiter,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ListMessages returns the reconciled main-timeline view for a channel.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	channelID, ok := pathUUID(c, "channel_id")
	if !ok {
		return
	}

	view, err := h.streams.OpenChannel(c.Request.Context(), channelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load channel"})
		return
	}
	c.JSON(http.StatusOK, view.Snapshot())
}

// GetThread returns the reconciled view for one thread root.
func (h *MessageHandler) GetThread(c *gin.Context) {
	channelID, ok := pathUUID(c, "channel_id")
	if !ok {
		return
	}
	messageID, ok := pathUUID(c, "message_id")
	if !ok {
		return
	}

	view, err := h.streams.OpenThread(c.Request.Context(), channelID, messageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load thread"})
		return
	}
	c.JSON(http.StatusOK, view.Snapshot())
}

type createMessageRequest struct {
	Content      string  `json:"content" binding:"required"`
	ThreadID     *string `json:"thread_id"`
	ReplyingToID *string `json:"replying_to_id"`
}

// CreateMessage stores a message, or dispatches it when the content is a
// /bot command. Commands run in the background; the response acknowledges
// acceptance, and outcomes arrive over the notification stream.
func (h *MessageHandler) CreateMessage(c *gin.Context) {
	channelID, ok := pathUUID(c, "channel_id")
	if !ok {
		return
	}
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !enforceLimit(c, h.limiter, userID, "messages", "create") {
		return
	}

	cmd, err := command.Parse(req.Content)
	switch {
	case err == nil:
		go h.dispatcher.Dispatch(context.WithoutCancel(c.Request.Context()), cmd, command.Request{
			ChannelID: channelID,
			UserID:    userID,
			RequestID: requestIDFromContext(c),
		})
		c.JSON(http.StatusAccepted, gin.H{"command": cmd.Kind.String()})
		return
	case !errors.Is(err, command.ErrNotACommand):
		var parseErr *command.ParseError
		if errors.As(err, &parseErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": parseErr.Code, "token": parseErr.Token})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg := models.Message{
		ChannelID: channelID,
		SenderID:  userID,
		Content:   req.Content,
		Type:      models.MessageTypeText,
	}
	if msg.ThreadID, err = parseOptionalUUID(req.ThreadID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread_id"})
		return
	}
	if msg.ReplyingToID, err = parseOptionalUUID(req.ReplyingToID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid replying_to_id"})
		return
	}

	created, err := h.messages.CreateMessage(c.Request.Context(), msg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create message"})
		return
	}

	h.publishMessageEvent(c, "chat.message.created", created)
	c.JSON(http.StatusCreated, created)
}

type updateMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// UpdateMessage edits a message's content. Only the sender may edit.
func (h *MessageHandler) UpdateMessage(c *gin.Context) {
	messageID, ok := pathUUID(c, "message_id")
	if !ok {
		return
	}
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var req updateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.messages.UpdateContent(c.Request.Context(), messageID, userID, req.Content)
	switch {
	case errors.Is(err, repositories.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	case errors.Is(err, repositories.ErrNotSender):
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender may edit"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update message"})
		return
	}

	h.publishMessageEvent(c, "chat.message.updated", updated)
	c.JSON(http.StatusOK, updated)
}

// DeleteMessage soft-deletes a message. Only the sender may delete.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := pathUUID(c, "message_id")
	if !ok {
		return
	}
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	err := h.messages.SoftDelete(c.Request.Context(), messageID, userID)
	switch {
	case errors.Is(err, repositories.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	case errors.Is(err, repositories.ErrNotSender):
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender may delete"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete message"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *MessageHandler) publishMessageEvent(c *gin.Context, routingKey string, msg models.Message) {
	requestID := requestIDFromContext(c)
	if err := observability.PublishEvent(c.Request.Context(), routingKey, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: routingKey,
		Payload:   msg,
	}, observability.BuildHeaders(requestID, "")); err != nil {
		h.logger.Warn().Err(err).Str("routing_key", routingKey).Msg("event publish failed")
	}
}
