package saldo

import (
	"time"

	"github.com/maypok86/otter/v2"
)

// OtterCache implements Cache on an otter in-process cache. Compared to
// InMemoryCache it evicts by access frequency rather than insertion order,
// which keeps hot entries resident under heavy read traffic.
type OtterCache struct {
	cache *otter.Cache[string, *CacheEntry]
}

// NewOtterCache creates an otter-backed cache holding up to maxEntries
// entries. maxEntries <= 0 selects the default capacity.
func NewOtterCache(maxEntries int) (*OtterCache, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}

	// Write-based expiry: the clock starts at Set and reads never extend
	// it. Per-entry TTLs are applied after each write.
	cache, err := otter.New(&otter.Options[string, *CacheEntry]{
		MaximumSize:      maxEntries,
		ExpiryCalculator: otter.ExpiryWriting[string, *CacheEntry](time.Hour),
	})
	if err != nil {
		return nil, err
	}
	return &OtterCache{cache: cache}, nil
}

// Get returns the entry for key if present and not expired.
func (c *OtterCache) Get(key string) (*CacheEntry, bool) {
	entry, ok := c.cache.GetIfPresent(key)
	if !ok {
		return nil, false
	}
	if entry.Expired(time.Now()) {
		c.cache.Invalidate(key)
		return nil, false
	}
	return entry, true
}

// Set stores an entry under key with the given ttl.
func (c *OtterCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	entry.StoredAt = time.Now()
	entry.TTL = ttl
	c.cache.Set(key, entry)
	if ttl > 0 {
		c.cache.SetExpiresAfter(key, ttl)
	}
}

// Delete removes the entry for key.
func (c *OtterCache) Delete(key string) {
	c.cache.Invalidate(key)
}

// Clear removes every entry.
func (c *OtterCache) Clear() {
	c.cache.InvalidateAll()
}

// Close stops otter's background goroutines.
func (c *OtterCache) Close() {
	c.cache.StopAllGoroutines()
}
