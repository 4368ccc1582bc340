package presence

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/palmerwenzel/chat-genius-sub000/internal/changefeed"
	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
)

// Reconciler maintains a channel's live member list and typing set. Members
// come from two sources merged at load time; presence changes afterwards are
// patched in place, never by refetching the whole list.
type Reconciler struct {
	channelID uuid.UUID
	logger    zerolog.Logger

	mu       sync.Mutex
	members  []models.Member
	typing   []typingEntry
	onChange func()
	notifyMu sync.Mutex
}

type typingEntry struct {
	userID uuid.UUID
	name   string
}

// NewReconciler builds an empty reconciler for one channel.
func NewReconciler(channelID uuid.UUID, logger zerolog.Logger) *Reconciler {
	return &Reconciler{channelID: channelID, logger: logger}
}

// Load merges the explicit membership grants with the implicit public-group
// members, deduplicating by user id (an explicit grant wins over the
// implicit member role), then sorts.
func (r *Reconciler) Load(explicit, implicit []models.Member) {
	seen := make(map[uuid.UUID]struct{}, len(explicit))
	merged := make([]models.Member, 0, len(explicit)+len(implicit))
	for _, m := range explicit {
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		merged = append(merged, m)
	}
	for _, m := range implicit {
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		m.Role = models.RoleMember
		merged = append(merged, m)
	}
	SortMembers(merged)

	r.mu.Lock()
	r.members = merged
	r.changedLocked()
	r.mu.Unlock()
}

// SetOnChange registers a listener invoked after every member or typing
// mutation.
func (r *Reconciler) SetOnChange(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// changedLocked schedules the change listener off the state lock; notifyMu
// keeps the runs from overlapping.
func (r *Reconciler) changedLocked() {
	fn := r.onChange
	if fn == nil {
		return
	}
	go func() {
		r.notifyMu.Lock()
		defer r.notifyMu.Unlock()
		fn()
	}()
}

// ApplyPresence patches one member's status and custom status in place and
// resorts. Unknown users and duplicate events are no-ops.
func (r *Reconciler) ApplyPresence(userID uuid.UUID, status, customStatus string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.members {
		if r.members[i].UserID != userID {
			continue
		}
		if r.members[i].Status == status && r.members[i].CustomStatus == customStatus {
			return
		}
		r.members[i].Status = status
		r.members[i].CustomStatus = customStatus
		SortMembers(r.members)
		r.changedLocked()
		return
	}
}

// Members returns a copy of the sorted member list.
func (r *Reconciler) Members() []models.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Member, len(r.members))
	copy(out, r.members)
	return out
}

// SetTyping records a remote user's typing transition. Duplicate starts and
// stops do not double-apply; start order is preserved for rendering.
func (r *Reconciler) SetTyping(userID uuid.UUID, name string, typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.typing {
		if e.userID != userID {
			continue
		}
		if typing {
			return
		}
		r.typing = append(r.typing[:i], r.typing[i+1:]...)
		r.changedLocked()
		return
	}
	if typing {
		r.typing = append(r.typing, typingEntry{userID: userID, name: name})
		r.changedLocked()
	}
}

// TypingNames returns the display names of currently typing users in start
// order.
func (r *Reconciler) TypingNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.typing))
	for _, e := range r.typing {
		names = append(names, e.name)
	}
	return names
}

type presenceRow struct {
	ID           uuid.UUID `json:"id"`
	Status       string    `json:"status"`
	CustomStatus string    `json:"custom_status"`
}

// Start subscribes the reconciler to user presence updates. The caller owns
// the handle and must unsubscribe it exactly once on teardown.
func (r *Reconciler) Start(ctx context.Context, feed changefeed.Feed) (changefeed.Handle, error) {
	return feed.Subscribe(ctx, changefeed.Subscription{Table: "users"}, func(ev changefeed.Event) {
		if ev.Type != changefeed.EventUpdate || ev.New == nil {
			return
		}
		var row presenceRow
		if err := json.Unmarshal(ev.New, &row); err != nil {
			r.logger.Warn().Err(err).Msg("presence event decode failed")
			return
		}
		r.ApplyPresence(row.ID, row.Status, row.CustomStatus)
	})
}

// SortMembers orders a member list by the three-key comparator: non-offline
// before offline, then owner before admin before member, then name
// ascending.
func SortMembers(members []models.Member) {
	sort.SliceStable(members, func(i, j int) bool {
		iOff := members[i].Status == models.StatusOffline
		jOff := members[j].Status == models.StatusOffline
		if iOff != jOff {
			return !iOff
		}
		iRank := models.RoleRank(members[i].Role)
		jRank := models.RoleRank(members[j].Role)
		if iRank != jRank {
			return iRank < jRank
		}
		return strings.Compare(members[i].Name, members[j].Name) < 0
	})
}
