// Package nonce records single-use token identifiers. The Redis store shares
// them across server instances; the memory store serves a single process.
package nonce

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store claims an id for ttl. Claim reports false when the id was already
// claimed and has not expired.
type Store interface {
	Claim(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock lets the owner share its clock with the store.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{seen: make(map[string]time.Time), now: now}
}

func (s *MemoryStore) Claim(_ context.Context, id string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if until, ok := s.seen[id]; ok && now.Before(until) {
		return false, nil
	}
	s.seen[id] = now.Add(ttl)
	return true, nil
}

// Prune drops expired ids and returns how many were removed.
func (s *MemoryStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, until := range s.seen {
		if !now.Before(until) {
			delete(s.seen, id)
			removed++
		}
	}
	return removed
}

// RedisStore claims ids with SET NX so every instance sees the same set.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("nonce store requires a redis client")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "pixelart:nonce"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) Claim(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl < time.Second {
		ttl = time.Second
	}
	return s.client.SetNX(ctx, s.prefix+":"+id, 1, ttl).Result()
}
