// Package auth verifies signed identity tokens against the identity
// provider's published key set, with a bounded client-side signing-key
// cache and derived per-resource authorization decisions.
package auth

import (
	"crypto/rsa"
	"sync"
	"time"
)

// DefaultKeyCacheSize bounds the number of cached signing keys.
const DefaultKeyCacheSize = 10

// DefaultKeyCacheMaxAge bounds how long a cached key may be used.
const DefaultKeyCacheMaxAge = time.Hour

type keyEntry struct {
	key       *rsa.PublicKey
	fetchedAt time.Time
}

// KeyCache is a bounded cache of identity-provider signing keys.
// Eviction is size- or age-triggered, whichever comes first.
type KeyCache struct {
	mu         sync.RWMutex
	entries    map[string]keyEntry
	maxEntries int
	maxAge     time.Duration
}

// NewKeyCache creates a key cache. Non-positive bounds fall back to the
// defaults.
func NewKeyCache(maxEntries int, maxAge time.Duration) *KeyCache {
	if maxEntries <= 0 {
		maxEntries = DefaultKeyCacheSize
	}
	if maxAge <= 0 {
		maxAge = DefaultKeyCacheMaxAge
	}
	return &KeyCache{
		entries:    make(map[string]keyEntry),
		maxEntries: maxEntries,
		maxAge:     maxAge,
	}
}

// Get returns the cached key for kid if present and not past max age.
func (c *KeyCache) Get(kid string) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[kid]
	if !ok {
		return nil, false
	}
	if time.Since(entry.fetchedAt) > c.maxAge {
		return nil, false
	}
	return entry.key, true
}

// Put stores a key, evicting the oldest entries when the cache is over
// capacity.
func (c *KeyCache) Put(kid string, key *rsa.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[kid] = keyEntry{key: key, fetchedAt: time.Now()}

	for len(c.entries) > c.maxEntries {
		oldestKid := ""
		var oldestAt time.Time
		for id, entry := range c.entries {
			if oldestKid == "" || entry.fetchedAt.Before(oldestAt) {
				oldestKid = id
				oldestAt = entry.fetchedAt
			}
		}
		delete(c.entries, oldestKid)
	}
}

// Len returns the number of cached keys, including aged-out ones not
// yet evicted by a Put.
func (c *KeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
