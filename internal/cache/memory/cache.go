// Package memory provides an in-memory TTL cache for derived signing keys.
// Keys are scoped secrets and must never leave process memory, so this cache
// is deliberately not backed by any external store.
package memory

import (
	"errors"
	"sync"
	"time"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Cache implements a synchronized in-memory byte cache with per-item TTL.
// Concurrent signers may race to populate the same entry; last write wins,
// which is safe because derivation is deterministic.
type Cache struct {
	mu      sync.RWMutex
	items   map[string]*cacheItem
	nowFunc func() time.Time
	stopCh  chan struct{}
	stopped bool
}

// cacheItem represents a single cached item.
type cacheItem struct {
	value     []byte
	expiresAt time.Time
	noExpiry  bool
}

// isExpired checks if the item has expired.
func (i *cacheItem) isExpired(now time.Time) bool {
	if i.noExpiry {
		return false
	}
	return now.After(i.expiresAt)
}

// NewCache creates a new in-memory cache.
func NewCache() *Cache {
	c := &Cache{
		items:   make(map[string]*cacheItem),
		nowFunc: time.Now,
		stopCh:  make(chan struct{}),
	}

	// Start cleanup goroutine.
	go c.cleanupLoop()

	return c
}

// cleanupLoop periodically removes expired items.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes expired items. Expired entries hold stale key material and
// are zeroed before release.
func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	for key, item := range c.items {
		if item.isExpired(now) {
			zero(item.value)
			delete(c.items, key)
		}
	}
}

// Stop stops the cleanup goroutine and clears all entries.
func (c *Cache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.stopped {
		close(c.stopCh)
		c.stopped = true
	}

	for key, item := range c.items {
		zero(item.value)
		delete(c.items, key)
	}
}

// Get retrieves a value by key.
func (c *Cache) Get(key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists {
		return nil, ErrCacheMiss
	}

	if item.isExpired(c.nowFunc()) {
		return nil, ErrCacheMiss
	}

	// Return a copy to prevent mutation of the cached bytes.
	result := make([]byte, len(item.value))
	copy(result, item.value)
	return result, nil
}

// Set stores a value with an optional TTL. A non-positive TTL means the entry
// never expires.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Make a copy of the value.
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	item := &cacheItem{
		value: valueCopy,
	}

	if ttl > 0 {
		item.expiresAt = c.nowFunc().Add(ttl)
	} else {
		item.noExpiry = true
	}

	if old, exists := c.items[key]; exists {
		zero(old.value)
	}
	c.items[key] = item
}

// Delete removes a value by key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, exists := c.items[key]; exists {
		zero(item.value)
		delete(c.items, key)
	}
}

// Len returns the number of entries, including any not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
