package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

// Store records short-lived claims. Claim reports false when key is already
// held inside window.
type Store interface {
	Claim(ctx context.Context, key string, window time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// MemoryStore is a process-local Store bounded to maxEntries keys.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]time.Time
	horizon    time.Duration
	maxEntries int
	lastPrune  time.Time
	now        func() time.Time
}

// DefaultHorizon is how long a MemoryStore keeps claims before pruning.
const DefaultHorizon = 10 * time.Second

func NewMemoryStore(horizon time.Duration, maxEntries int) *MemoryStore {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryStore{
		entries:    make(map[string]time.Time),
		horizon:    horizon,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (s *MemoryStore) Claim(_ context.Context, key string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastPrune) >= s.horizon || len(s.entries) >= s.maxEntries {
		s.prune(now, window)
	}

	if at, ok := s.entries[key]; ok && now.Sub(at) < window {
		return false, nil
	}
	if len(s.entries) >= s.maxEntries {
		s.evictOldest()
	}
	s.entries[key] = now
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of retained claims.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// prune drops claims older than the horizon, never those still inside window.
func (s *MemoryStore) prune(now time.Time, window time.Duration) {
	keep := max(s.horizon, window)
	for key, at := range s.entries {
		if now.Sub(at) >= keep {
			delete(s.entries, key)
		}
	}
	s.lastPrune = now
}

// evictOldest makes room when every entry is still inside the horizon.
func (s *MemoryStore) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for key, at := range s.entries {
		if !found || at.Before(oldestAt) {
			oldestKey, oldestAt, found = key, at, true
		}
	}
	if found {
		delete(s.entries, oldestKey)
	}
}

// RedisStore shares claims across instances with SET NX.
type RedisStore struct {
	client redis.ClaimStore
}

func NewRedisStore(client redis.ClaimStore) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Claim(ctx context.Context, key string, window time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.client.DedupKey(key), "1", window)
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.client.DedupKey(key))
}
