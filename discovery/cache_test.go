package discovery_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/davinciframework/davinci-go/discovery"
)

func TestCacheExpiresEntries(t *testing.T) {
	now := time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)
	cache := discovery.NewCache(time.Minute, func() time.Time { return now })

	cache.Put("table/users", "myapp-dev-users")

	value, ok := cache.Get("table/users")
	assert.True(t, ok)
	assert.Equal(t, "myapp-dev-users", value)

	// Advance past the TTL; the entry must be gone.
	now = now.Add(time.Minute + time.Second)
	_, ok = cache.Get("table/users")
	assert.False(t, ok)
	assert.Zero(t, cache.Len())
}

func TestCacheRemove(t *testing.T) {
	cache := discovery.NewCache(time.Minute, nil)

	cache.Put("table/users", "myapp-dev-users")
	cache.Remove("table/users")

	_, ok := cache.Get("table/users")
	assert.False(t, ok)
}

func TestCacheMiss(t *testing.T) {
	cache := discovery.NewCache(0, nil)

	_, ok := cache.Get("table/unknown")
	assert.False(t, ok)
}
