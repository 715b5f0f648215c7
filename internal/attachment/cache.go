package attachment

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Cache memoizes resolved attachments for one session. Concurrent lookups
// of the same key share a single fetch.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]domain.ResolvedAttachment
	fetches int
	group   singleflight.Group
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]domain.ResolvedAttachment)}
}

func cacheKey(kind domain.SourceKind, locator string) string {
	return string(kind) + "|" + locator
}

// GetOrFetch returns the cached value for key or calls fetch exactly once to
// fill it. Failed fetches are not cached.
func (c *Cache) GetOrFetch(key string, fetch func() (domain.ResolvedAttachment, error)) (domain.ResolvedAttachment, error) {
	c.mu.RLock()
	if v, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.RLock()
		if v, ok := c.entries[key]; ok {
			c.mu.RUnlock()
			return v, nil
		}
		c.mu.RUnlock()

		c.mu.Lock()
		c.fetches++
		c.mu.Unlock()

		res, err := fetch()
		if err != nil {
			return domain.ResolvedAttachment{}, err
		}

		c.mu.Lock()
		c.entries[key] = res
		c.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return domain.ResolvedAttachment{}, err
	}
	return v.(domain.ResolvedAttachment), nil
}

// Fetches returns how many times an underlying source was called.
func (c *Cache) Fetches() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetches
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry and resets the fetch counter.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]domain.ResolvedAttachment)
	c.fetches = 0
	c.mu.Unlock()
}
