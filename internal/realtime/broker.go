// Package realtime carries change notifications between the handlers that
// write chat messages and requests and the clients streaming unread counts.
package realtime

import (
	"context"
	"sync"
	"time"
)

const (
	TopicAdmin = "admin"

	EventMessage = "message"
	EventRequest = "request"
	EventRead    = "read"
	EventArtwork = "artwork"

	defaultBuffer = 16
)

func UserTopic(userID string) string {
	return "user:" + userID
}

// Event only says that something changed; receivers recompute their state.
type Event struct {
	Kind   string    `json:"kind"`
	UserID string    `json:"userId,omitempty"`
	At     time.Time `json:"at"`
}

func NewEvent(kind, userID string) Event {
	return Event{Kind: kind, UserID: userID, At: time.Now().UTC()}
}

type Broker interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
	Close() error
}

// Subscription delivers events for one topic until Close is called.
type Subscription struct {
	C <-chan Event

	once    sync.Once
	cleanup func()
}

func (s *Subscription) Close() {
	s.once.Do(s.cleanup)
}

// PublishAll publishes event to every topic, returning the first error.
func PublishAll(ctx context.Context, b Broker, event Event, topics ...string) error {
	var firstErr error
	for _, topic := range topics {
		if err := b.Publish(ctx, topic, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
