// Page-cache collaborator (§5): documented interface only. The core
// never constructs or calls one itself — no index lookup or view read
// consults a Cache — but Engine holds an optional instance so an
// embedding binary has a concrete place to wire an LRU/TTL cache in
// front of repeated Get/Select traffic without this package knowing
// anything about eviction policy or cross-goroutine discipline.
package george

import (
	"sync"
	"time"
)

// Cache returns the engine's configured page-cache collaborator, for
// callers (the RPC dispatch layer, typically) that want to front their
// own read-through caching of Get/Select results. The core never
// consults it.
func (e *Engine) Cache() Cache {
	return e.cache
}

// Cache is the page-cache collaborator's contract. Implementations own
// their own eviction policy and concurrency discipline; george itself
// never calls these methods.
type Cache interface {
	Get(page string, key []byte) ([]byte, bool)
	Put(page string, key, value []byte, ttl time.Duration)
	Remove(page string, key []byte)
}

// memoryCache is a minimal in-process reference implementation: a plain
// map guarded by a mutex, with lazy expiry checked on Get rather than a
// background sweep, matching Config.PageCacheTTL's role as a per-entry
// default rather than a sweep interval. It exists so Engine has
// something concrete to hold when a caller doesn't supply its own Cache;
// george's hot paths (Get/Select/Put/Remove) never reach for it.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	value   []byte
	expires time.Time
}

// newMemoryCache returns a Cache backed by an in-process map, using
// defaultTTL for entries put without an explicit one.
func newMemoryCache(defaultTTL time.Duration) *memoryCache {
	return &memoryCache{entries: map[string]map[string]cacheEntry{}, ttl: defaultTTL}
}

func (c *memoryCache) Get(page string, key []byte) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket, ok := c.entries[page]
	if !ok {
		return nil, false
	}
	e, ok := bucket[string(key)]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(bucket, string(key))
		return nil, false
	}
	return e.value, true
}

func (c *memoryCache) Put(page string, key, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl == 0 {
		ttl = c.ttl
	}
	bucket, ok := c.entries[page]
	if !ok {
		bucket = map[string]cacheEntry{}
		c.entries[page] = bucket
	}
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	bucket[string(key)] = cacheEntry{value: append([]byte(nil), value...), expires: expires}
}

func (c *memoryCache) Remove(page string, key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bucket, ok := c.entries[page]; ok {
		delete(bucket, string(key))
	}
}
