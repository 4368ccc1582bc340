package changefeed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type frame struct {
	Action string          `json:"action,omitempty"`
	Topic  string          `json:"topic"`
	Event  *Event          `json:"event,omitempty"`
	Ref    json.RawMessage `json:"ref,omitempty"`
}

// Client is a websocket-backed Feed. One connection multiplexes every
// subscription; inbound events fan out to handlers by topic on the read
// loop, which preserves per-topic delivery order.
type Client struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[string][]*clientHandle
	next int
}

// Dial connects to the platform realtime endpoint and starts the read loop.
func Dial(ctx context.Context, url string, logger zerolog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:   conn,
		logger: logger,
		subs:   make(map[string][]*clientHandle),
	}
	go c.readLoop()
	return c, nil
}

// Subscribe registers a handler for a table/filter topic. The first
// subscriber for a topic sends the subscribe frame upstream.
func (c *Client) Subscribe(ctx context.Context, sub Subscription, fn Handler) (Handle, error) {
	topic := sub.Topic()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.next++
	h := &clientHandle{client: c, topic: topic, id: c.next, fn: fn}

	if len(c.subs[topic]) == 0 {
		if err := c.conn.WriteJSON(frame{Action: "subscribe", Topic: topic}); err != nil {
			return nil, err
		}
	}
	c.subs[topic] = append(c.subs[topic], h)
	return h, nil
}

// Close tears down the connection; all handles become inert.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readLoop() {
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("changefeed read loop terminated")
			}
			return
		}
		if f.Event == nil {
			continue
		}

		c.mu.Lock()
		handles := make([]*clientHandle, len(c.subs[f.Topic]))
		copy(handles, c.subs[f.Topic])
		c.mu.Unlock()

		for _, h := range handles {
			h.fn(*f.Event)
		}
	}
}

func (c *Client) unsubscribe(h *clientHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.subs[h.topic][:0]
	for _, other := range c.subs[h.topic] {
		if other.id != h.id {
			remaining = append(remaining, other)
		}
	}
	c.subs[h.topic] = remaining

	if len(remaining) == 0 {
		delete(c.subs, h.topic)
		return c.conn.WriteJSON(frame{Action: "unsubscribe", Topic: h.topic})
	}
	return nil
}

type clientHandle struct {
	client *Client
	topic  string
	id     int
	fn     Handler

	once sync.Once
	err  error
}

// Unsubscribe removes the handler. Safe to call more than once.
func (h *clientHandle) Unsubscribe() error {
	h.once.Do(func() {
		h.err = h.client.unsubscribe(h)
	})
	return h.err
}
