package web

import (
	"strconv"
	"sync"
	"time"

	"eventcal/internal/feed"
	"eventcal/internal/model"
)

type cacheEntry struct {
	events    []model.RawEvent
	errs      []error
	updatedAt time.Time
}

// eventCache holds merged source results per query window.
type eventCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func newEventCache(ttl time.Duration) *eventCache {
	return &eventCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func windowKey(w feed.Window) string {
	key := w.From.UTC().Format(time.RFC3339) + "|"
	if !w.To.IsZero() {
		key += w.To.UTC().Format(time.RFC3339)
	}
	return key + "|" + strconv.Itoa(w.Limit)
}

func (c *eventCache) get(w feed.Window, now time.Time) (cacheEntry, bool) {
	c.mu.RLock()
	e, ok := c.entries[windowKey(w)]
	c.mu.RUnlock()
	if !ok || now.Sub(e.updatedAt) >= c.ttl {
		cacheLookups.WithLabelValues("miss").Inc()
		return cacheEntry{}, false
	}
	cacheLookups.WithLabelValues("hit").Inc()
	return e, true
}

func (c *eventCache) put(w feed.Window, e cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, old := range c.entries {
		if e.updatedAt.Sub(old.updatedAt) >= c.ttl {
			delete(c.entries, k)
		}
	}
	c.entries[windowKey(w)] = e
}

func (c *eventCache) reset(ttl time.Duration) {
	c.mu.Lock()
	c.ttl = ttl
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
