package trigger

import (
	"strings"
	"sync"
)

// ExclusionCache holds principal names whose remote identity lookup failed.
// Firings for an excluded name are dropped without another remote call until
// the name resolves locally or the cache is cleared at stream end.
// Names compare case-insensitively.
type ExclusionCache struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewExclusionCache creates an empty cache.
func NewExclusionCache() *ExclusionCache {
	return &ExclusionCache{names: make(map[string]struct{})}
}

func (c *ExclusionCache) Add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[strings.ToLower(name)] = struct{}{}
}

func (c *ExclusionCache) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.names, strings.ToLower(name))
}

func (c *ExclusionCache) Contains(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.names[strings.ToLower(name)]
	return ok
}

// Clear starts a new cache epoch.
func (c *ExclusionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = make(map[string]struct{})
}

func (c *ExclusionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}
