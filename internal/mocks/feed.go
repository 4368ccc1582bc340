package mocks

import (
	"context"
	"sync"

	"github.com/palmerwenzel/chat-genius-sub000/internal/changefeed"
)

// FeedFake is an in-memory change feed for tests. Emit delivers events
// synchronously, so assertions can run immediately after.
type FeedFake struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]changefeed.Handler
}

func NewFeedFake() *FeedFake {
	return &FeedFake{handlers: make(map[string]map[int]changefeed.Handler)}
}

func (f *FeedFake) Subscribe(_ context.Context, sub changefeed.Subscription, handler changefeed.Handler) (changefeed.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	topic := sub.Topic()
	if f.handlers[topic] == nil {
		f.handlers[topic] = make(map[int]changefeed.Handler)
	}
	f.nextID++
	id := f.nextID
	f.handlers[topic][id] = handler
	return &feedFakeHandle{feed: f, topic: topic, id: id}, nil
}

// Emit fans an event out to every subscriber of the topic.
func (f *FeedFake) Emit(topic string, ev changefeed.Event) {
	f.mu.Lock()
	handlers := make([]changefeed.Handler, 0, len(f.handlers[topic]))
	for _, h := range f.handlers[topic] {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// SubscriberCount reports active subscriptions for a topic.
func (f *FeedFake) SubscriberCount(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[topic])
}

type feedFakeHandle struct {
	feed  *FeedFake
	topic string
	id    int
}

func (h *feedFakeHandle) Unsubscribe() error {
	h.feed.mu.Lock()
	defer h.feed.mu.Unlock()
	delete(h.feed.handlers[h.topic], h.id)
	return nil
}
