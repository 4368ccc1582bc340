package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/palmerwenzel/chat-genius-sub000/internal/auth"
	"github.com/palmerwenzel/chat-genius-sub000/internal/observability"
	"github.com/palmerwenzel/chat-genius-sub000/internal/presence"
	"github.com/palmerwenzel/chat-genius-sub000/internal/repositories"
	"github.com/palmerwenzel/chat-genius-sub000/internal/stream"
)

// ChannelWebSocketHandler upgrades channel connections and bridges inbound
// client frames (typing, scroll position) to the reconcilers.
type ChannelWebSocketHandler struct {
	hub      *Hub
	rooms    *Rooms
	streams  *stream.Reconciler
	typing   *presence.TypingTracker
	verifier *auth.Verifier
	members  repositories.MemberRepository
	logger   zerolog.Logger
}

func NewChannelWebSocketHandler(hub *Hub, rooms *Rooms, streams *stream.Reconciler, typing *presence.TypingTracker, verifier *auth.Verifier, members repositories.MemberRepository, logger zerolog.Logger) *ChannelWebSocketHandler {
	return &ChannelWebSocketHandler{
		hub:      hub,
		rooms:    rooms,
		streams:  streams,
		typing:   typing,
		verifier: verifier,
		members:  members,
		logger:   logger,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundFrame is the client-to-server protocol: typing transitions and
// scroll position reports.
type inboundFrame struct {
	Action string `json:"action"`
	Offset int    `json:"offset"`
}

// Handle upgrades the connection and registers the client with its channel
// room, stream view and presence reconciler.
func (h *ChannelWebSocketHandler) Handle(c *gin.Context) {
	channelID, err := uuid.Parse(c.Param("channel_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}

	ctx, span := otel.Tracer("chat-genius/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		if q := c.Query("token"); q != "" {
			token = "Bearer " + q
		}
	}
	identity, err := h.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	allowed, err := h.authorized(c, channelID, identity.UserID)
	if err != nil || !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for channel"})
		return
	}

	view, err := h.streams.OpenChannel(ctx, channelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open channel"})
		return
	}
	view.SetOnChange(func() {
		h.hub.Broadcast(channelID, Event{Type: EventSnapshot, Payload: view.Snapshot()})
	})

	if _, err := h.rooms.Join(ctx, channelID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join channel"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.rooms.Leave(channelID)
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.UserID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(channelID, conn, info)

	observability.IncWSActive("channel")
	observability.IncWSEvent("channel", "ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.channels", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        "channel",
				"resource_id": channelID.String(),
				"event":       "ws_connect",
				"conn_id":     info.ConnID,
			},
			"identity": map[string]interface{}{
				"user_id": identity.UserID.String(),
				"ip":      info.IP,
			},
		},
	}, observability.BuildHeaders(requestID, traceID))

	// Initial state so the client renders without waiting for a change. Goes
	// through the hub so it cannot interleave with a racing broadcast.
	_ = h.hub.Send(conn, Event{Type: EventSnapshot, Payload: view.Snapshot()})

	go h.readLoop(channelID, identity.UserID, conn, view, info)
}

func (h *ChannelWebSocketHandler) readLoop(channelID, userID uuid.UUID, conn *websocket.Conn, view *stream.View, info ConnInfo) {
	defer func() {
		// A dropped connection must not leave the user stuck typing.
		h.typing.Stop(channelID, userID)
		h.rooms.Leave(channelID)
		h.hub.RemoveClient(channelID, conn)
		observability.DecWSActive("channel")
		observability.IncWSEvent("channel", "ws_disconnect")
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("channel", "ws_error")
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.logger.Warn().Err(err).Str("conn_id", info.ConnID).Msg("inbound frame decode failed")
			continue
		}

		switch frame.Action {
		case "typing":
			h.typing.Touch(channelID, userID)
		case "typing_stop":
			h.typing.Stop(channelID, userID)
		case "scroll":
			view.SetScrollOffset(frame.Offset)
		case "scroll_bottom":
			view.ScrollToBottom()
		}
	}
}

func (h *ChannelWebSocketHandler) validateToken(header string) (auth.Identity, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return h.verifier.Verify(parts[1])
}

func (h *ChannelWebSocketHandler) authorized(c *gin.Context, channelID, userID uuid.UUID) (bool, error) {
	public, err := h.members.IsChannelPublic(c.Request.Context(), channelID)
	if err != nil {
		return false, err
	}
	if public {
		return true, nil
	}
	members, err := h.members.ListChannelMembers(c.Request.Context(), channelID)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}
