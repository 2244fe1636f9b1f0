package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisBroker fans events out through Redis pub/sub so that every server
// instance sees writes made by the others.
type RedisBroker struct {
	client *redis.Client
	prefix string
	buffer int

	mu   sync.Mutex
	open map[*redis.PubSub]struct{}
	wg   sync.WaitGroup
}

var _ Broker = (*RedisBroker)(nil)

func NewRedisBroker(client *redis.Client, prefix string) (*RedisBroker, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "pixelart"
	}
	return &RedisBroker{
		client: client,
		prefix: prefix + ":events",
		buffer: defaultBuffer,
		open:   make(map[*redis.PubSub]struct{}),
	}, nil
}

func (b *RedisBroker) channel(topic string) string {
	return fmt.Sprintf("%s:%s", b.prefix, topic)
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, b.channel(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	b.mu.Lock()
	b.open[pubsub] = struct{}{}
	b.mu.Unlock()

	out := make(chan Event, b.buffer)
	messages := pubsub.Channel()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(out)
		for msg := range messages {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn("realtime_event_decode_failed", map[string]interface{}{
					"topic": topic,
					"error": err.Error(),
				})
				continue
			}
			select {
			case out <- event:
			default:
				logger.Warn("realtime_event_dropped", map[string]interface{}{
					"topic": topic,
					"kind":  event.Kind,
				})
			}
		}
	}()

	return &Subscription{
		C: out,
		cleanup: func() {
			b.mu.Lock()
			delete(b.open, pubsub)
			b.mu.Unlock()
			_ = pubsub.Close()
		},
	}, nil
}

// Close ends every open subscription and waits for their readers. The redis
// client itself belongs to the caller.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	for pubsub := range b.open {
		_ = pubsub.Close()
		delete(b.open, pubsub)
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
