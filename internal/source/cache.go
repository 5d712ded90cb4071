package source

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache maps video IDs to resolved local paths for one job run. Concurrent
// resolves of the same ID share a single acquisition; failures are not cached.
type Cache struct {
	mu    sync.RWMutex
	paths map[string]string
	group singleflight.Group
}

// NewCache creates an empty cache. A cache must never be shared across jobs.
func NewCache() *Cache {
	return &Cache{paths: make(map[string]string)}
}

// Get returns the cached path for videoID.
func (c *Cache) Get(videoID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.paths[videoID]
	return p, ok
}

// Len returns the number of cached videos.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.paths)
}

// Forget drops videoID, e.g. after its source file was released.
func (c *Cache) Forget(videoID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.paths, videoID)
}

// load returns the cached path or runs acquire exactly once per concurrent
// group of callers, storing the result on success.
func (c *Cache) load(videoID string, acquire func() (string, error)) (path string, hit bool, err error) {
	if p, ok := c.Get(videoID); ok {
		return p, true, nil
	}

	v, err, _ := c.group.Do(videoID, func() (interface{}, error) {
		if p, ok := c.Get(videoID); ok {
			return p, nil
		}
		p, err := acquire()
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.paths[videoID] = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return "", false, err
	}
	return v.(string), false, nil
}
