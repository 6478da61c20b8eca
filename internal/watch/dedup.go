package watch

import (
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"
)

type dedupKey struct {
	kind Kind
	path string
}

// dedupCache remembers which (kind, path) pairs were surfaced recently so a
// path seen by both a snapshot listing and a live notification is reported
// once. Paths are keyed in NFC so a listing and a notification that spell
// the same name in different normal forms collide. Entries expire after
// window; sweep drops them from memory.
type dedupCache struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[dedupKey]time.Time
	now    func() time.Time
}

func newDedupCache(window time.Duration) *dedupCache {
	return &dedupCache{
		window: window,
		seen:   make(map[dedupKey]time.Time),
		now:    time.Now,
	}
}

// admit records (kind, path) and reports true unless a live entry already exists.
func (c *dedupCache) admit(kind Kind, path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := dedupKey{kind: kind, path: norm.NFC.String(path)}
	now := c.now()
	if at, ok := c.seen[key]; ok && now.Sub(at) < c.window {
		return false
	}
	c.seen[key] = now
	return true
}

// sweep removes entries older than the window and returns how many were dropped.
func (c *dedupCache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, at := range c.seen {
		if now.Sub(at) >= c.window {
			delete(c.seen, key)
			removed++
		}
	}
	return removed
}

func (c *dedupCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
