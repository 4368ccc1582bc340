package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
	"github.com/palmerwenzel/chat-genius-sub000/internal/observability"
)

// Event is one frame pushed to connected clients.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

const (
	EventSnapshot     = "snapshot"
	EventTyping       = "typing"
	EventPresence     = "presence"
	EventNotification = "notification"
)

// Hub maintains active websocket rooms per channel and an index of
// connections per user for targeted notifications.
type Hub struct {
	mu        sync.RWMutex
	rooms     map[uuid.UUID]map[*websocket.Conn]bool
	connInfo  map[uuid.UUID]map[*websocket.Conn]ConnInfo
	userConns map[uuid.UUID]map[*websocket.Conn]bool
	writers   map[*websocket.Conn]*sync.Mutex

	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:     make(map[uuid.UUID]map[*websocket.Conn]bool),
		connInfo:  make(map[uuid.UUID]map[*websocket.Conn]ConnInfo),
		userConns: make(map[uuid.UUID]map[*websocket.Conn]bool),
		writers:   make(map[*websocket.Conn]*sync.Mutex),
		logger:    logger,
	}
}

// AddClient registers a websocket connection to a channel room.
func (h *Hub) AddClient(channelID uuid.UUID, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[channelID]; !ok {
		h.rooms[channelID] = make(map[*websocket.Conn]bool)
	}
	h.rooms[channelID][conn] = true
	if _, ok := h.connInfo[channelID]; !ok {
		h.connInfo[channelID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.connInfo[channelID][conn] = info
	if _, ok := h.userConns[info.UserID]; !ok {
		h.userConns[info.UserID] = make(map[*websocket.Conn]bool)
	}
	h.userConns[info.UserID][conn] = true
	h.writers[conn] = &sync.Mutex{}
}

// RemoveClient removes a channel websocket connection.
func (h *Hub) RemoveClient(channelID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if infos, ok := h.connInfo[channelID]; ok {
		if info, exists := infos[conn]; exists {
			if conns, ok := h.userConns[info.UserID]; ok {
				delete(conns, conn)
				if len(conns) == 0 {
					delete(h.userConns, info.UserID)
				}
			}
		}
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.connInfo, channelID)
		}
	}
	if conns, ok := h.rooms[channelID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, channelID)
		}
	}
	delete(h.writers, conn)
}

// RoomSize reports the number of connections in a channel room.
func (h *Hub) RoomSize(channelID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[channelID])
}

// Broadcast sends one event to every connection in a channel room.
func (h *Hub) Broadcast(channelID uuid.UUID, event Event) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.rooms[channelID]))
	for conn := range h.rooms[channelID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event.Type).Msg("event marshal failed")
		return
	}
	for _, conn := range conns {
		if err := h.write(conn, payload); err != nil {
			h.logger.Warn().Err(err).Str("channel_id", channelID.String()).Msg("websocket write error")
			conn.Close()
			h.publishWSError(channelID, conn, err)
			h.RemoveClient(channelID, conn)
		}
	}
}

// Send writes one event to a single registered connection.
func (h *Hub) Send(conn *websocket.Conn, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h.write(conn, payload)
}

// write serializes frames onto one connection. Gorilla connections allow a
// single concurrent writer, and snapshot broadcasts, presence fan-out and
// targeted notifications all reach the same socket from different
// goroutines, so every frame goes through the connection's write lock.
func (h *Hub) write(conn *websocket.Conn, payload []byte) error {
	h.mu.RLock()
	wmu, ok := h.writers[conn]
	h.mu.RUnlock()
	if !ok {
		// Connection already removed; the caller races a disconnect.
		return nil
	}
	wmu.Lock()
	defer wmu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Notify delivers a notification to every live connection of one user,
// satisfying the dispatcher's notifier dependency.
func (h *Hub) Notify(_ context.Context, userID uuid.UUID, n models.Notification) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.userConns[userID]))
	for conn := range h.userConns[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload, err := json.Marshal(Event{Type: EventNotification, Payload: n})
	if err != nil {
		return
	}
	for _, conn := range conns {
		if err := h.write(conn, payload); err != nil {
			h.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("websocket write error")
			conn.Close()
		}
	}
	observability.IncWSEvent("channel", "notification")
}

func (h *Hub) publishWSError(channelID uuid.UUID, conn *websocket.Conn, err error) {
	h.mu.RLock()
	info, ok := h.connInfo[channelID][conn]
	h.mu.RUnlock()
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "channel",
			"resource_id": channelID.String(),
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id": info.UserID.String(),
			"ip":      info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.channels", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("channel", "ws_error")
}
