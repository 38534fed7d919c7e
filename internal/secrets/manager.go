// Package secrets implements the caching secret manager in front of the
// external secret store: TTL-bounded caching, rotation with cache
// invalidation, coalesced fetches, and a background expiry sweeper.
package secrets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"golang.org/x/sync/singleflight"

	"github.com/storyforge/shield/internal/logging"
	"github.com/storyforge/shield/internal/secretstore"
)

// DefaultTTL is how long a fetched secret stays live in the cache.
const DefaultTTL = 5 * time.Minute

// DefaultSweepInterval is how often the expiry sweeper runs.
const DefaultSweepInterval = time.Minute

type cacheKey struct {
	name    string
	decrypt bool
}

// cacheEntry holds a secret inside a memguard enclave so plaintext is
// encrypted at rest in process memory. The entry is live only while
// now < expiresAt.
type cacheEntry struct {
	value     *memguard.Enclave
	expiresAt time.Time
}

// Manager caches and rotates secrets. Instances are explicitly
// constructed and owned by the application; there is no package-level
// singleton.
type Manager struct {
	store         secretstore.Store
	ttl           time.Duration
	sweepInterval time.Duration
	logger        *logging.Logger

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry

	flight singleflight.Group

	runMu   sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// Option is a functional option for configuring the Manager.
type Option func(*Manager)

// WithTTL overrides the default cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithSweepInterval overrides the default sweep interval.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

// NewManager creates a secret manager backed by the given store.
func NewManager(store secretstore.Store, logger *logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		logger:        logger,
		cache:         make(map[cacheKey]cacheEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetSecret returns the named secret, serving from the cache while the
// cached entry is live. Concurrent callers for the same uncached key are
// coalesced into a single store fetch. Fetch failures are never cached.
func (m *Manager) GetSecret(ctx context.Context, name string, decrypt bool) (string, error) {
	key := cacheKey{name: name, decrypt: decrypt}
	if value, ok := m.lookup(key); ok {
		return value, nil
	}

	result, err, _ := m.flight.Do(flightKey(key), func() (interface{}, error) {
		// A concurrent caller may have populated the cache between our
		// miss and acquiring the flight slot.
		if value, ok := m.lookup(key); ok {
			return value, nil
		}

		value, err := m.store.Get(ctx, name, decrypt)
		if err != nil {
			return nil, err
		}
		m.put(key, value)
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// RotateSecret writes the new value to the external store and, only on
// write success, invalidates every cache entry for the secret name. A
// failed write leaves the cache untouched.
func (m *Manager) RotateSecret(ctx context.Context, name, newValue string) error {
	if err := m.store.Put(ctx, name, newValue, true); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.cache, cacheKey{name: name, decrypt: true})
	delete(m.cache, cacheKey{name: name, decrypt: false})
	m.mu.Unlock()

	m.logger.Info("rotated secret %s and invalidated cache", name)
	return nil
}

// Invalidate removes every cache entry for the secret name.
func (m *Manager) Invalidate(name string) {
	m.mu.Lock()
	delete(m.cache, cacheKey{name: name, decrypt: true})
	delete(m.cache, cacheKey{name: name, decrypt: false})
	m.mu.Unlock()
}

// CacheLen returns the number of cached entries, expired or not.
func (m *Manager) CacheLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}

// Start launches the background expiry sweeper.
func (m *Manager) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.done = make(chan struct{})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				m.SweepExpired()
			}
		}
	}()
}

// Stop shuts down the background sweeper and waits for it to exit.
func (m *Manager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.done)
	m.wg.Wait()
}

// SweepExpired removes entries whose expiry has passed. The expired set
// is collected under a read lock; the write lock is held only for the
// deletions, so request-path calls are never blocked for longer than the
// scan of currently-expired entries.
func (m *Manager) SweepExpired() int {
	now := time.Now()

	m.mu.RLock()
	var expired []cacheKey
	for key, entry := range m.cache {
		if !now.Before(entry.expiresAt) {
			expired = append(expired, key)
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return 0
	}

	removed := 0
	m.mu.Lock()
	for _, key := range expired {
		// Re-check: a fresh fetch may have replaced the entry since
		// the scan.
		if entry, ok := m.cache[key]; ok && !now.Before(entry.expiresAt) {
			delete(m.cache, key)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug("swept %d expired secret cache entries", removed)
	}
	return removed
}

// lookup returns the cached value if the entry exists and is live.
func (m *Manager) lookup(key cacheKey) (string, bool) {
	m.mu.RLock()
	entry, ok := m.cache[key]
	m.mu.RUnlock()

	if !ok || !time.Now().Before(entry.expiresAt) {
		return "", false
	}

	locked, err := entry.value.Open()
	if err != nil {
		return "", false
	}
	defer locked.Destroy()
	return string(locked.Bytes()), true
}

func (m *Manager) put(key cacheKey, value string) {
	entry := cacheEntry{
		value:     memguard.NewEnclave([]byte(value)),
		expiresAt: time.Now().Add(m.ttl),
	}
	m.mu.Lock()
	m.cache[key] = entry
	m.mu.Unlock()
}

func flightKey(key cacheKey) string {
	return fmt.Sprintf("%s|%t", key.name, key.decrypt)
}
