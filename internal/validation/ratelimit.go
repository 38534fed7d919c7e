package validation

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore is the backing store for rate-limit counters. Incr must
// be atomic: two concurrent callers for the same key never both observe
// the same count.
type CounterStore interface {
	// Incr increments the counter for key and returns the new count.
	// The first increment in a window starts the window: the counter
	// expires once window has elapsed.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounterStore implements CounterStore on Redis. INCR is atomic on
// the server, so concurrent callers across processes serialize there.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore creates a Redis-backed counter store.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// Incr increments the counter, setting the window expiry when this is
// the first increment of the window.
func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// MemoryCounterStore implements CounterStore in process memory for
// single-instance deployments and tests.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
}

type memoryCounter struct {
	count     int64
	windowEnd time.Time
}

// NewMemoryCounterStore creates an empty in-process counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counters: make(map[string]*memoryCounter)}
}

// Incr performs an atomic check-and-increment under the store mutex.
func (s *MemoryCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	counter, ok := s.counters[key]
	if !ok || !now.Before(counter.windowEnd) {
		counter = &memoryCounter{windowEnd: now.Add(window)}
		s.counters[key] = counter
	}
	counter.count++
	return counter.count, nil
}

// RateLimiter answers whether a request identified by a caller key is
// within its budget for the window.
type RateLimiter struct {
	store CounterStore
}

// NewRateLimiter creates a rate limiter over the given counter store.
func NewRateLimiter(store CounterStore) *RateLimiter {
	return &RateLimiter{store: store}
}

// Allow increments the identifier's counter and reports whether the
// count is still within limit. The increment itself is atomic in the
// counter store, so only one of two racing callers can take the last
// slot.
func (r *RateLimiter) Allow(ctx context.Context, identifier string, limit int, windowSeconds int) (bool, error) {
	window := time.Duration(windowSeconds) * time.Second
	count, err := r.store.Incr(ctx, "ratelimit:"+identifier, window)
	if err != nil {
		return false, err
	}
	return count <= int64(limit), nil
}
