// Package cache holds rendered API responses in memory, keyed by path, with
// ETags for conditional GETs.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// PrefixEntry namespaces cached entry responses. Settlement invalidates
// everything under it.
const PrefixEntry = "entry:"

// sweepEvery is the minimum gap between expiry sweeps triggered by Put.
const sweepEvery = 5 * time.Minute

// Item is one cached response body.
type Item struct {
	Data    []byte
	ETag    string
	Expires time.Time
}

// Stats is a point-in-time view of the cache for the health endpoint.
type Stats struct {
	Enabled     bool  `json:"enabled"`
	Keys        int   `json:"keys"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Invalidated int64 `json:"invalidated"`
}

// Cache is a TTL map safe for concurrent use. A disabled cache stores
// nothing but still computes ETags.
type Cache struct {
	enabled bool
	now     func() time.Time

	mu        sync.Mutex
	items     map[string]Item
	nextSweep time.Time

	hits, misses, invalidated atomic.Int64
}

// New creates a cache.
func New(enabled bool) *Cache {
	return &Cache{
		enabled: enabled,
		now:     time.Now,
		items:   make(map[string]Item),
	}
}

// Get returns the live item for key.
func (c *Cache) Get(key string) (Item, bool) {
	if !c.enabled {
		return Item{}, false
	}
	c.mu.Lock()
	it, ok := c.items[key]
	if ok && !c.now().Before(it.Expires) {
		delete(c.items, key)
		ok = false
	}
	c.mu.Unlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return it, ok
}

// Put stores data under key for ttl and returns the stored item.
func (c *Cache) Put(key string, data []byte, ttl time.Duration) Item {
	now := c.now()
	it := Item{Data: data, ETag: ETag(data), Expires: now.Add(ttl)}
	if !c.enabled {
		return it
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = it
	if now.After(c.nextSweep) {
		c.sweepLocked(now)
		c.nextSweep = now.Add(sweepEvery)
	}
	return it
}

// InvalidatePrefix drops every key starting with prefix and returns how
// many were removed.
func (c *Cache) InvalidatePrefix(prefix string) int {
	if !c.enabled {
		return 0
	}
	c.mu.Lock()
	n := 0
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
			n++
		}
	}
	c.mu.Unlock()
	c.invalidated.Add(int64(n))
	return n
}

// Stats reports key count and counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	keys := len(c.items)
	c.mu.Unlock()
	return Stats{
		Enabled:     c.enabled,
		Keys:        keys,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Invalidated: c.invalidated.Load(),
	}
}

func (c *Cache) sweepLocked(now time.Time) {
	for key, it := range c.items {
		if !now.Before(it.Expires) {
			delete(c.items, key)
		}
	}
}

// ETag returns a weak validator for data.
func ETag(data []byte) string {
	sum := sha256.Sum256(data)
	return `W/"` + hex.EncodeToString(sum[:12]) + `"`
}

// Matches reports whether an If-None-Match header value matches etag using
// weak comparison.
func Matches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == want {
			return true
		}
	}
	return false
}
