package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
	"github.com/palmerwenzel/chat-genius-sub000/internal/ratelimit"
	"github.com/palmerwenzel/chat-genius-sub000/internal/repositories"
)

// ReactionHandler manages emoji reaction toggles.
type ReactionHandler struct {
	reactions repositories.ReactionRepository
	limiter   *ratelimit.Limiter
	logger    zerolog.Logger
}

func NewReactionHandler(reactions repositories.ReactionRepository, limiter *ratelimit.Limiter, logger zerolog.Logger) *ReactionHandler {
	return &ReactionHandler{reactions: reactions, limiter: limiter, logger: logger}
}

type toggleReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// ToggleReaction adds the reaction if absent, removes it if present. The
// response reports which way the toggle went and the message's regrouped
// reactions.
func (h *ReactionHandler) ToggleReaction(c *gin.Context) {
	messageID, ok := pathUUID(c, "message_id")
	if !ok {
		return
	}
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var req toggleReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !enforceLimit(c, h.limiter, userID, "reactions", "create") {
		return
	}

	added, err := h.reactions.Toggle(c.Request.Context(), messageID, userID, req.Emoji)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not toggle reaction"})
		return
	}

	rows, err := h.reactions.ListForMessage(c.Request.Context(), messageID)
	if err != nil {
		h.logger.Warn().Err(err).Str("message_id", messageID.String()).Msg("reaction refetch failed")
		c.JSON(http.StatusOK, gin.H{"added": added})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"added":     added,
		"reactions": models.GroupReactions(rows),
	})
}
