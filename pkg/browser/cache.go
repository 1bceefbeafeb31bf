package browser

import (
	"context"
	"sync"
	"time"

	"github.com/peerbeam/peerbeam/internal/metrics"
)

// ttlCache is an expiring keyed cache. Entries live for a fixed duration
// after they are written; expired entries are treated as absent on read and
// removed for good by periodic sweeps. Values must not be mutated after they
// are stored.
type ttlCache struct {
	name string
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value   any
	expires time.Time
}

func newTTLCache(name string, ttl time.Duration) *ttlCache {
	return &ttlCache{
		name:    name,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// get returns the live value for key, calling load on a miss and storing the
// result. Load failures are returned to the caller and never cached. There
// is no single-flight guard: concurrent misses each run the loader and the
// last result wins.
func (c *ttlCache) get(ctx context.Context, key string, load func(ctx context.Context, key string) (any, error)) (any, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Before(e.expires) {
		c.mu.Unlock()
		metrics.RecordCacheHit(c.name)
		return e.value, nil
	}
	c.mu.Unlock()
	metrics.RecordCacheMiss(c.name)

	value, err := load(ctx, key)
	if err != nil {
		return nil, err
	}
	c.put(key, value)
	return value, nil
}

// put stores value under key with a fresh expiry.
func (c *ttlCache) put(key string, value any) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// invalidateAll drops every entry.
func (c *ttlCache) invalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// sweep removes expired entries and returns how many were dropped.
func (c *ttlCache) sweep() int {
	now := c.now()

	c.mu.Lock()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	metrics.RecordCacheSweep(c.name, removed)
	return removed
}

// updateValues replaces every entry's value with fn(value), keeping each
// entry's expiry. fn must return a fresh value rather than mutate its
// argument, since readers may still hold the old one.
func (c *ttlCache) updateValues(fn func(value any) any) {
	c.mu.Lock()
	for k, e := range c.entries {
		e.value = fn(e.value)
		c.entries[k] = e
	}
	c.mu.Unlock()
}

// len returns the number of entries, counting expired ones not yet swept.
func (c *ttlCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
