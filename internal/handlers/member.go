package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
	"github.com/palmerwenzel/chat-genius-sub000/internal/presence"
	"github.com/palmerwenzel/chat-genius-sub000/internal/repositories"
)

// MemberHandler serves channel membership and presence endpoints.
type MemberHandler struct {
	members repositories.MemberRepository
	logger  zerolog.Logger
}

func NewMemberHandler(members repositories.MemberRepository, logger zerolog.Logger) *MemberHandler {
	return &MemberHandler{members: members, logger: logger}
}

// ListMembers returns the channel's merged, sorted member list: explicit
// grants joined with implicit members for public channels, ordered by
// presence, role and name.
func (h *MemberHandler) ListMembers(c *gin.Context) {
	channelID, ok := pathUUID(c, "channel_id")
	if !ok {
		return
	}

	rec := presence.NewReconciler(channelID, h.logger)

	explicit, err := h.members.ListChannelMembers(c.Request.Context(), channelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}

	var implicit []models.Member
	public, err := h.members.IsChannelPublic(c.Request.Context(), channelID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}
	if public {
		if implicit, err = h.members.ListAllUsers(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
			return
		}
	}

	rec.Load(explicit, implicit)
	c.JSON(http.StatusOK, gin.H{"members": rec.Members()})
}

type updatePresenceRequest struct {
	Status       string `json:"status" binding:"required"`
	CustomStatus string `json:"custom_status"`
}

var validStatuses = map[string]bool{
	models.StatusOnline:  true,
	models.StatusIdle:    true,
	models.StatusDnd:     true,
	models.StatusOffline: true,
}

// UpdatePresence sets the caller's presence status. The change fans out to
// live member lists through the users change feed.
func (h *MemberHandler) UpdatePresence(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var req updatePresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validStatuses[req.Status] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	if err := h.members.UpdatePresence(c.Request.Context(), userID, req.Status, req.CustomStatus); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update presence"})
		return
	}
	c.Status(http.StatusNoContent)
}
