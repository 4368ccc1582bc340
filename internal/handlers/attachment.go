package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
	"github.com/palmerwenzel/chat-genius-sub000/internal/ratelimit"
	"github.com/palmerwenzel/chat-genius-sub000/internal/repositories"
	"github.com/palmerwenzel/chat-genius-sub000/internal/storage"
)

// AttachmentHandler accepts multipart file uploads and posts the resulting
// attachment message into the channel.
type AttachmentHandler struct {
	gateway  *storage.Gateway
	messages repositories.MessageRepository
	limiter  *ratelimit.Limiter
	logger   zerolog.Logger
}

func NewAttachmentHandler(gateway *storage.Gateway, messages repositories.MessageRepository, limiter *ratelimit.Limiter, logger zerolog.Logger) *AttachmentHandler {
	return &AttachmentHandler{
		gateway:  gateway,
		messages: messages,
		limiter:  limiter,
		logger:   logger,
	}
}

// Upload stores the file, records its metadata and creates the channel
// message carrying the attachment descriptor.
func (h *AttachmentHandler) Upload(c *gin.Context) {
	channelID, ok := pathUUID(c, "channel_id")
	if !ok {
		return
	}
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	if !enforceLimit(c, h.limiter, userID, "files", "upload") {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer file.Close()

	att, err := h.gateway.Upload(c.Request.Context(), storage.UploadRequest{
		ChannelID:   channelID,
		UploaderID:  userID,
		Name:        fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Body:        file,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("channel_id", channelID.String()).Msg("attachment upload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed"})
		return
	}

	msg, err := h.messages.CreateMessage(c.Request.Context(), models.Message{
		ChannelID: channelID,
		SenderID:  userID,
		Content:   att.Name,
		Type:      "file",
		Metadata:  models.Metadata{"attachment": att.Descriptor()},
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create attachment message"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"attachment": att, "message": msg})
}
