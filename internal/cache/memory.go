package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMemorySize is the entry limit when none is configured.
const DefaultMemorySize = 1000

// MemoryCache is an in-process LRU cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is most recently used
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	metrics Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

type entry struct {
	key     string
	value   []byte
	expires time.Time
}

// NewMemoryCache creates an LRU cache. A zero ttl keeps entries until
// they are evicted.
func NewMemoryCache(maxSize int, ttl time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = DefaultMemorySize
	}
	return &MemoryCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetMetrics sets the metrics recorder for this cache.
func (c *MemoryCache) SetMetrics(m Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// Get returns a copy of the cached value.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if ok {
		e := el.Value.(*entry)
		if !e.expires.IsZero() && c.now().After(e.expires) {
			c.remove(el)
			ok = false
		} else {
			c.order.MoveToFront(el)
			c.hits.Add(1)
			if c.metrics != nil {
				c.metrics.RecordCacheHit("memory")
			}
			return append([]byte(nil), e.value...), true, nil
		}
	}

	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.RecordCacheMiss("memory")
	}
	return nil, false, nil
}

// Set stores a copy of value.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}
	value = append([]byte(nil), value...)

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.value, e.expires = value, expires
		c.order.MoveToFront(el)
		return nil
	}

	for c.order.Len() >= c.maxSize {
		c.remove(c.order.Back())
	}
	c.entries[key] = c.order.PushFront(&entry{key: key, value: value, expires: expires})

	if c.metrics != nil {
		c.metrics.UpdateCacheSize("memory", len(c.entries))
	}
	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
	return nil
}

// remove drops el. Callers hold mu.
func (c *MemoryCache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*entry).key)
	if c.metrics != nil {
		c.metrics.UpdateCacheSize("memory", len(c.entries))
	}
}

// Len returns the number of cached entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear empties the cache.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	if c.metrics != nil {
		c.metrics.UpdateCacheSize("memory", 0)
	}
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() Stats {
	return Stats{
		Type:    "memory",
		Size:    c.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// Close is a no-op.
func (c *MemoryCache) Close() error {
	return nil
}
