package saldo

import (
	"bytes"
	"container/list"
	"context"
	"io"
	"net/http"
	"sync"
	"time"
)

// CacheEntry is one stored response. Entries are immutable once stored and
// served only while now < StoredAt + TTL.
type CacheEntry struct {
	Fingerprint string
	StatusCode  int
	Header      http.Header
	Body        []byte
	StoredAt    time.Time
	TTL         time.Duration
}

// Expired reports whether the entry is past its TTL at the given time.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.StoredAt.Add(e.TTL))
}

// Response materializes a fresh http.Response from the entry. Each call
// returns an independent body reader and header copy.
func (e *CacheEntry) Response() *http.Response {
	return &http.Response{
		StatusCode: e.StatusCode,
		Header:     e.Header.Clone(),
		Body:       io.NopCloser(bytes.NewReader(e.Body)),
	}
}

// NewCacheEntry buffers a response into a cache entry. The response body is
// consumed and replaced with a replayable reader; nil is returned when the
// body cannot be read.
func NewCacheEntry(fingerprint string, resp *http.Response) *CacheEntry {
	const maxCacheBody = 10 * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCacheBody))
	if err != nil && err != io.EOF {
		return nil
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &CacheEntry{
		Fingerprint: fingerprint,
		StatusCode:  resp.StatusCode,
		Header:      resp.Header.Clone(),
		Body:        body,
		StoredAt:    time.Now(),
	}
}

// Cache is the response cache interface.
type Cache interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, entry *CacheEntry, ttl time.Duration)
	Delete(key string)
	Clear()
}

type cacheRecord struct {
	entry   *CacheEntry
	element *list.Element
}

// InMemoryCache stores entries in insertion order with lazy expiry on reads
// and oldest-first eviction at capacity. An optional janitor goroutine
// sweeps expired entries to bound memory between reads.
type InMemoryCache struct {
	maxEntries int

	mu      sync.RWMutex
	records map[string]*cacheRecord
	order   *list.List

	stopJanitor chan struct{}
	stopOnce    sync.Once
}

// NewInMemoryCache creates a cache holding up to maxEntries entries.
// maxEntries <= 0 selects the default capacity.
func NewInMemoryCache(maxEntries int) *InMemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &InMemoryCache{
		maxEntries: maxEntries,
		records:    make(map[string]*cacheRecord),
		order:      list.New(),
	}
}

// NewInMemoryCacheWithJanitor creates a cache that also sweeps expired
// entries every sweepInterval. Stop the sweeper with Close.
func NewInMemoryCacheWithJanitor(maxEntries int, sweepInterval time.Duration) *InMemoryCache {
	c := NewInMemoryCache(maxEntries)
	c.stopJanitor = make(chan struct{})
	go c.janitor(sweepInterval)
	return c
}

// Get returns the entry for key if present and not expired.
func (c *InMemoryCache) Get(key string) (*CacheEntry, bool) {
	c.mu.RLock()
	rec, exists := c.records[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if rec.entry.Expired(time.Now()) {
		c.Delete(key)
		return nil, false
	}
	return rec.entry, true
}

// Set stores an entry under key with the given ttl, evicting the oldest
// entry when the cache is full.
func (c *InMemoryCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	entry.StoredAt = time.Now()
	entry.TTL = ttl

	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, exists := c.records[key]; exists {
		rec.entry = entry
		c.order.MoveToBack(rec.element)
		return
	}

	if len(c.records) >= c.maxEntries {
		c.evictOldestLocked()
	}

	c.records[key] = &cacheRecord{
		entry:   entry,
		element: c.order.PushBack(key),
	}
}

// Delete removes the entry for key.
func (c *InMemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteLocked(key)
}

// Clear removes every entry.
func (c *InMemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[string]*cacheRecord)
	c.order.Init()
}

// Len returns the number of stored entries, expired ones included.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Close stops the janitor goroutine if one was started.
func (c *InMemoryCache) Close() {
	if c.stopJanitor == nil {
		return
	}
	c.stopOnce.Do(func() { close(c.stopJanitor) })
}

func (c *InMemoryCache) deleteLocked(key string) {
	rec, exists := c.records[key]
	if !exists {
		return
	}
	c.order.Remove(rec.element)
	delete(c.records, key)
}

// evictOldestLocked drops the front of the insertion order. Caller holds mu.
func (c *InMemoryCache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.deleteLocked(front.Value.(string))
}

func (c *InMemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopJanitor:
			return
		}
	}
}

func (c *InMemoryCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, rec := range c.records {
		if rec.entry.Expired(now) {
			c.deleteLocked(key)
		}
	}
}

// DefaultCacheCondition caches successful GET responses only.
func DefaultCacheCondition(req *http.Request) bool {
	return req.Method == http.MethodGet
}

// WithContextCacheEnabled forces caching for the request carrying this
// context, regardless of the client's cache condition.
func WithContextCacheEnabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, CacheControlKey, &CacheControl{Enabled: true})
}

// WithContextCacheDisabled disables caching for the request carrying this
// context.
func WithContextCacheDisabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, CacheControlKey, &CacheControl{Enabled: false})
}

// WithContextCacheTTL enables caching with a per-request TTL override.
func WithContextCacheTTL(ctx context.Context, ttl time.Duration) context.Context {
	return context.WithValue(ctx, CacheControlKey, &CacheControl{Enabled: true, TTL: ttl})
}
