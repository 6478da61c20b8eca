package watch

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// renameCorrelator pairs moved_from and moved_to notifications by cookie.
// The map is bounded: sources whose destination never arrives (moved out
// of the tree) are evicted oldest first.
type renameCorrelator struct {
	sources *lru.Cache[uint32, string]
}

func newRenameCorrelator(capacity int) (*renameCorrelator, error) {
	cache, err := lru.New[uint32, string](capacity)
	if err != nil {
		return nil, err
	}
	return &renameCorrelator{sources: cache}, nil
}

// recordSource remembers path as the source of the rename identified by cookie.
// A zero cookie never pairs and is not stored.
func (c *renameCorrelator) recordSource(cookie uint32, path string) {
	if cookie == 0 {
		return
	}
	c.sources.Add(cookie, path)
}

// resolve returns and retires the source recorded for cookie.
func (c *renameCorrelator) resolve(cookie uint32) (string, bool) {
	if cookie == 0 {
		return "", false
	}
	path, ok := c.sources.Get(cookie)
	if ok {
		c.sources.Remove(cookie)
	}
	return path, ok
}

func (c *renameCorrelator) pending() int {
	return c.sources.Len()
}
