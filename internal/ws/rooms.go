package ws

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/palmerwenzel/chat-genius-sub000/internal/changefeed"
	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
	"github.com/palmerwenzel/chat-genius-sub000/internal/presence"
	"github.com/palmerwenzel/chat-genius-sub000/internal/repositories"
)

// PresencePayload is the member-list frame pushed whenever a channel's
// presence or typing state changes.
type PresencePayload struct {
	Members     []models.Member `json:"members"`
	TypingNames []string        `json:"typing_names,omitempty"`
	TypingText  string          `json:"typing_text,omitempty"`
}

// Rooms owns one presence reconciler per channel with live connections,
// refcounted so the reconciler and its feed subscription are torn down when
// the last connection leaves.
type Rooms struct {
	hub     *Hub
	members repositories.MemberRepository
	feed    changefeed.Feed
	logger  zerolog.Logger

	mu    sync.Mutex
	rooms map[uuid.UUID]*room
}

type room struct {
	reconciler *presence.Reconciler
	handle     changefeed.Handle
	refs       int
}

func NewRooms(hub *Hub, members repositories.MemberRepository, feed changefeed.Feed, logger zerolog.Logger) *Rooms {
	return &Rooms{
		hub:     hub,
		members: members,
		feed:    feed,
		logger:  logger,
		rooms:   make(map[uuid.UUID]*room),
	}
}

// Join returns the channel's presence reconciler, creating and loading it
// for the first connection.
func (r *Rooms) Join(ctx context.Context, channelID uuid.UUID) (*presence.Reconciler, error) {
	r.mu.Lock()
	if rm, ok := r.rooms[channelID]; ok {
		rm.refs++
		r.mu.Unlock()
		return rm.reconciler, nil
	}
	r.mu.Unlock()

	rec := presence.NewReconciler(channelID, r.logger)

	explicit, err := r.members.ListChannelMembers(ctx, channelID)
	if err != nil {
		return nil, err
	}
	var implicit []models.Member
	if public, err := r.members.IsChannelPublic(ctx, channelID); err == nil && public {
		if implicit, err = r.members.ListAllUsers(ctx); err != nil {
			return nil, err
		}
	}
	rec.Load(explicit, implicit)
	rec.SetOnChange(func() { r.broadcastState(channelID, rec) })

	handle, err := rec.Start(ctx, r.feed)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rooms[channelID]; ok {
		// Lost the create race; discard ours.
		_ = handle.Unsubscribe()
		existing.refs++
		return existing.reconciler, nil
	}
	r.rooms[channelID] = &room{reconciler: rec, handle: handle, refs: 1}
	return rec, nil
}

// Leave drops one reference; the last reference unsubscribes the feed and
// forgets the room.
func (r *Rooms) Leave(channelID uuid.UUID) {
	r.mu.Lock()
	rm, ok := r.rooms[channelID]
	if !ok {
		r.mu.Unlock()
		return
	}
	rm.refs--
	if rm.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.rooms, channelID)
	r.mu.Unlock()

	if err := rm.handle.Unsubscribe(); err != nil {
		r.logger.Warn().Err(err).Str("channel_id", channelID.String()).Msg("presence unsubscribe failed")
	}
}

// HandleTyping is the typing tracker's emit callback: it resolves the
// user's display name and records the transition, which in turn broadcasts
// the updated presence frame.
func (r *Rooms) HandleTyping(channelID, userID uuid.UUID, typing bool) {
	r.mu.Lock()
	rm, ok := r.rooms[channelID]
	r.mu.Unlock()
	if !ok {
		return
	}

	name := userID.String()
	for _, m := range rm.reconciler.Members() {
		if m.UserID == userID {
			name = m.Name
			break
		}
	}
	rm.reconciler.SetTyping(userID, name, typing)
}

func (r *Rooms) broadcastState(channelID uuid.UUID, rec *presence.Reconciler) {
	names := rec.TypingNames()
	r.hub.Broadcast(channelID, Event{Type: EventPresence, Payload: PresencePayload{
		Members:     rec.Members(),
		TypingNames: names,
		TypingText:  presence.TypingText(names),
	}})
}
