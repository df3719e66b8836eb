package scoreline

import (
	"sync"
	"time"
)

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// TTLCache is a small string-keyed cache with per-entry expiry. Expired
// entries are evicted lazily on read; there is no background sweeper. It backs
// short-lived memoized lookups (participant profiles) and is never on the
// ranking correctness path.
type TTLCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewTTLCache() *TTLCache {
	return &TTLCache{
		entries: map[string]cacheEntry{},
		now:     time.Now,
	}
}

func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len reports the number of live entries, evicting expired ones as it counts.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	return len(c.entries)
}
