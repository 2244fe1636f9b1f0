package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
)

var ErrBrokerClosed = errors.New("broker closed")

// Hub is the in-process Broker used when Redis is not configured.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[chan Event]struct{}
	buffer int
	closed bool
}

var _ Broker = (*Hub)(nil)

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		topics: make(map[string]map[chan Event]struct{}),
		buffer: buffer,
	}
}

// Publish never blocks: a subscriber with a full buffer misses the event.
func (h *Hub) Publish(_ context.Context, topic string, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrBrokerClosed
	}

	for ch := range h.topics[topic] {
		select {
		case ch <- event:
		default:
			logger.Warn("realtime_event_dropped", map[string]interface{}{
				"topic": topic,
				"kind":  event.Kind,
			})
		}
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, topic string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrBrokerClosed
	}

	ch := make(chan Event, h.buffer)
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[chan Event]struct{})
		h.topics[topic] = subs
	}
	subs[ch] = struct{}{}

	return &Subscription{
		C: ch,
		cleanup: func() {
			h.remove(topic, ch)
		},
	}, nil
}

func (h *Hub) remove(topic string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// Close closes every open subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for topic, subs := range h.topics {
		for ch := range subs {
			close(ch)
		}
		delete(h.topics, topic)
	}
	return nil
}

func (h *Hub) SubscriberCount(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}
