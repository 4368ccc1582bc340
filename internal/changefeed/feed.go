package changefeed

import (
	"context"
	"encoding/json"
)

// EventType enumerates row-level change kinds.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is one row-level change delivered by the platform. New carries the
// row after the change (insert/update), Old the row before it
// (update/delete). Events on the same topic arrive in server-commit order;
// no ordering holds across topics.
type Event struct {
	Type  EventType       `json:"type"`
	Table string          `json:"table"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// Handler consumes events for one subscription. Handlers run on the feed's
// read loop and must not block.
type Handler func(Event)

// Subscription names a table plus an equality filter, e.g.
// {Table: "messages", Filter: "channel_id=eq.<uuid>"}.
type Subscription struct {
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

// Topic is the routing key the transport fans events out on.
func (s Subscription) Topic() string {
	if s.Filter == "" {
		return s.Table
	}
	return s.Table + ":" + s.Filter
}

// Handle identifies one active subscription.
type Handle interface {
	Unsubscribe() error
}

// Feed is the push-notification transport contract the reconcilers consume.
type Feed interface {
	Subscribe(ctx context.Context, sub Subscription, fn Handler) (Handle, error)
}
