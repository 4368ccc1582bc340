package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/palmerwenzel/chat-genius-sub000/internal/changefeed"
	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
	"github.com/palmerwenzel/chat-genius-sub000/internal/observability"
	"github.com/palmerwenzel/chat-genius-sub000/internal/repositories"
)

const (
	// DefaultPageSize is the initial-load window for a view.
	DefaultPageSize = 50
	// DefaultSettleDelay smooths the loading flag on fast initial loads.
	DefaultSettleDelay = 150 * time.Millisecond
)

// Options configures a Reconciler.
type Options struct {
	Messages  repositories.MessageRepository
	Reactions repositories.ReactionRepository
	Feed      changefeed.Feed
	Logger    zerolog.Logger

	PageSize    int
	SettleDelay time.Duration
}

// Reconciler owns every live channel/thread view and the per-view cache.
// Revisiting a channel returns the last known state instantly while a
// background refresh runs; cache entries are only ever updated by
// reconciliation events, never expired on a timer.
type Reconciler struct {
	opts Options

	mu    sync.Mutex
	views map[string]*View
}

// NewReconciler builds a Reconciler.
func NewReconciler(opts Options) *Reconciler {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	return &Reconciler{opts: opts, views: make(map[string]*View)}
}

// OpenChannel returns the main-timeline view for a channel, creating and
// loading it on first use.
func (r *Reconciler) OpenChannel(ctx context.Context, channelID uuid.UUID) (*View, error) {
	return r.open(ctx, channelID, nil)
}

// OpenThread returns the view for one thread root.
func (r *Reconciler) OpenThread(ctx context.Context, channelID, threadID uuid.UUID) (*View, error) {
	return r.open(ctx, channelID, &threadID)
}

func viewKey(channelID uuid.UUID, threadID *uuid.UUID) string {
	if threadID == nil {
		return channelID.String()
	}
	return channelID.String() + "/" + threadID.String()
}

func (r *Reconciler) open(ctx context.Context, channelID uuid.UUID, threadID *uuid.UUID) (*View, error) {
	key := viewKey(channelID, threadID)

	r.mu.Lock()
	if v, ok := r.views[key]; ok {
		r.mu.Unlock()
		// Cached state renders immediately; refresh in the background.
		go func() {
			if err := r.load(context.Background(), v); err != nil {
				r.opts.Logger.Warn().Err(err).Str("view", key).Msg("background refresh failed")
			}
		}()
		return v, nil
	}

	v := &View{
		channelID:     channelID,
		threadID:      threadID,
		messagesRepo:  r.opts.Messages,
		reactionsRepo: r.opts.Reactions,
		logger:        r.opts.Logger,
		loading:       true,
		nearBottom:    true,
	}
	r.views[key] = v
	r.mu.Unlock()

	if err := r.load(ctx, v); err != nil {
		r.mu.Lock()
		delete(r.views, key)
		r.mu.Unlock()
		return nil, err
	}

	if err := r.subscribe(ctx, v); err != nil {
		r.mu.Lock()
		delete(r.views, key)
		r.mu.Unlock()
		return nil, err
	}

	v.settleTimer(r.opts.SettleDelay)
	return v, nil
}

// Forget drops a view from the cache after closing it. Used when a channel
// is deleted outright; ordinary navigation keeps the cache warm.
func (r *Reconciler) Forget(channelID uuid.UUID, threadID *uuid.UUID) {
	key := viewKey(channelID, threadID)
	r.mu.Lock()
	v, ok := r.views[key]
	delete(r.views, key)
	r.mu.Unlock()
	if ok {
		v.Close()
	}
}

// load performs the initial fetch and decorates every message with its
// reply preview, thread size and reaction groups. The assembled list
// replaces the view's slice wholesale; this and an explicit refresh are the
// only wholesale replacements allowed.
func (r *Reconciler) load(ctx context.Context, v *View) error {
	var (
		rows []models.Message
		err  error
	)
	if v.threadID != nil {
		rows, err = r.opts.Messages.ListThread(ctx, *v.threadID, r.opts.PageSize)
	} else {
		rows, err = r.opts.Messages.ListChannelPage(ctx, v.channelID, r.opts.PageSize)
		if err == nil {
			// Fetched newest-first for pagination, displayed oldest-first.
			for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
				rows[i], rows[j] = rows[j], rows[i]
			}
		}
	}
	if err != nil {
		return err
	}

	parents := make(map[uuid.UUID]*models.Message)
	decorated := make([]models.MessageView, 0, len(rows))
	for _, msg := range rows {
		mv := models.MessageView{Message: msg}

		if msg.ReplyingToID != nil {
			parent, ok := parents[*msg.ReplyingToID]
			if !ok {
				if p, err := r.opts.Messages.GetMessage(ctx, *msg.ReplyingToID); err == nil {
					parent = &p
				}
				parents[*msg.ReplyingToID] = parent
			}
			mv.ReplyingTo = parent
		}

		if v.threadID == nil {
			if count, err := r.opts.Messages.CountThreadReplies(ctx, msg.ID); err == nil {
				mv.ThreadSize = count
			}
		}

		if reactions, err := r.opts.Reactions.ListForMessage(ctx, msg.ID); err == nil && len(reactions) > 0 {
			mv.Reactions = models.GroupReactions(reactions)
		}

		decorated = append(decorated, mv)
	}

	v.mu.Lock()
	v.messages = decorated
	v.changedLocked()
	v.mu.Unlock()
	return nil
}

type reactionRow struct {
	MessageID uuid.UUID `json:"message_id"`
}

// subscribe wires the view to its change feeds: the channel's message topic
// and the reaction topic. Handlers run on the feed loop and must converge
// regardless of cross-topic arrival order.
func (r *Reconciler) subscribe(ctx context.Context, v *View) error {
	msgSub := changefeed.Subscription{
		Table:  "messages",
		Filter: "channel_id=eq." + v.channelID.String(),
	}
	msgHandle, err := r.opts.Feed.Subscribe(ctx, msgSub, func(ev changefeed.Event) {
		observability.IncFeedEvent("messages", string(ev.Type))
		v.ApplyMessageEvent(context.Background(), ev)
	})
	if err != nil {
		return err
	}

	reactSub := changefeed.Subscription{Table: "reactions"}
	reactHandle, err := r.opts.Feed.Subscribe(ctx, reactSub, func(ev changefeed.Event) {
		observability.IncFeedEvent("reactions", string(ev.Type))
		payload := ev.New
		if payload == nil {
			payload = ev.Old
		}
		var row reactionRow
		if err := json.Unmarshal(payload, &row); err != nil {
			r.opts.Logger.Warn().Err(err).Msg("reaction event decode failed")
			return
		}
		v.ApplyReactionEvent(context.Background(), row.MessageID)
	})
	if err != nil {
		_ = msgHandle.Unsubscribe()
		return err
	}

	v.mu.Lock()
	v.handles = append(v.handles, msgHandle, reactHandle)
	v.mu.Unlock()
	return nil
}
