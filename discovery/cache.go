package discovery

import (
	"sync"
	"time"

	"github.com/davinciframework/davinci-go/orm"
)

// DefaultCacheTTL bounds how long a resolved endpoint is reused before the
// backend is consulted again.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	value   string
	expires time.Time
}

// Cache is a time-boxed endpoint cache. Entries expire TTL after they are
// stored; the clock is injectable for tests.
type Cache struct {
	ttl   time.Duration
	clock orm.Clock

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache creates a cache with the given TTL. A non-positive TTL falls
// back to DefaultCacheTTL; a nil clock falls back to time.Now.
func NewCache(ttl time.Duration, clock orm.Clock) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !c.clock().Before(entry.expires) {
		delete(c.entries, key)
		return "", false
	}
	return entry.value, true
}

// Put stores a value under key for the cache's TTL.
func (c *Cache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expires: c.clock().Add(c.ttl)}
}

// Remove drops the entry for key, if any.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
