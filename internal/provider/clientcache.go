package provider

import (
	"net/http"
	"sync"
	"time"
)

// Clock supplies the current time. Injected so cache eviction is testable
// without real timers.
type Clock func() time.Time

// ClientCache is a bounded cache of per-session HTTP clients. Provider APIs
// are per-tenant endpoints with their own connection pools; reusing a client
// per (base URL, session) keeps connections warm without growing unbounded.
// Expired and excess entries are evicted lazily on access.
type ClientCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	max     int
	now     Clock
	build   func() *http.Client
}

type cacheEntry struct {
	client   *http.Client
	lastUsed time.Time
}

// NewClientCache creates a cache holding at most max clients, each evicted
// after ttl of disuse. A nil clock defaults to time.Now; a nil builder
// defaults to a client with a 15s timeout.
func NewClientCache(max int, ttl time.Duration, now Clock) *ClientCache {
	if max <= 0 {
		max = 64
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &ClientCache{
		entries: map[string]*cacheEntry{},
		ttl:     ttl,
		max:     max,
		now:     now,
		build: func() *http.Client {
			return &http.Client{Timeout: 15 * time.Second}
		},
	}
}

// SetBuilder overrides how new clients are constructed.
func (c *ClientCache) SetBuilder(build func() *http.Client) {
	if build == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.build = build
}

// Get returns the cached client for key, creating one if absent.
func (c *ClientCache) Get(key string) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.evictLocked(now)

	if entry, ok := c.entries[key]; ok {
		entry.lastUsed = now
		return entry.client
	}

	client := c.build()
	c.entries[key] = &cacheEntry{client: client, lastUsed: now}
	return client
}

// Len reports the number of cached clients.
func (c *ClientCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops expired entries, then the oldest entries while over
// capacity. Caller holds c.mu.
func (c *ClientCache) evictLocked(now time.Time) {
	for key, entry := range c.entries {
		if now.Sub(entry.lastUsed) > c.ttl {
			delete(c.entries, key)
		}
	}
	for len(c.entries) >= c.max {
		oldestKey := ""
		var oldest time.Time
		for key, entry := range c.entries {
			if oldestKey == "" || entry.lastUsed.Before(oldest) {
				oldestKey = key
				oldest = entry.lastUsed
			}
		}
		if oldestKey == "" {
			return
		}
		delete(c.entries, oldestKey)
	}
}
