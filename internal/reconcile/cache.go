package reconcile

import "sync"

type cacheKey struct {
	query string
	limit int
}

// Cache holds search results for one reconciliation session, keyed by query
// text and result limit. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	results map[cacheKey][]string
	hits    int
}

// NewCache creates an empty session cache.
func NewCache() *Cache {
	return &Cache{results: make(map[cacheKey][]string)}
}

func (c *Cache) get(query string, limit int) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.results[cacheKey{query, limit}]
	if ok {
		c.hits++
	}
	return ids, ok
}

func (c *Cache) put(query string, limit int, ids []string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[cacheKey{query, limit}] = ids
}

// Len returns the number of cached queries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Hits returns how many lookups were served from the cache.
func (c *Cache) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}
