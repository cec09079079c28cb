// Package cache provides the bounded in-memory embedding cache.
package cache

import (
	"container/list"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
)

// ErrInvalidCapacity is returned by New for a capacity below one. A disabled
// cache is expressed by not constructing one at all.
var ErrInvalidCapacity = errors.New("cache capacity must be positive")

// Cache is a capacity-limited key→vector store. When full, the entry inserted
// longest ago is evicted. Lookups never change eviction order, so this is FIFO
// rather than LRU. Safe for concurrent use.
type Cache struct {
	capacity int

	mu      sync.RWMutex
	entries map[Key]*list.Element
	order   *list.List // front is the oldest insertion

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type cacheEntry struct {
	key    Key
	vector []float32
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Size      int
	Capacity  int
	Hits      int64
	Misses    int64
	Evictions int64
}

// New creates a cache holding at most capacity entries.
func New(capacity int) (*Cache, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[Key]*list.Element),
		order:    list.New(),
	}, nil
}

// Get returns a copy of the vector stored under key.
func (c *Cache) Get(key Key) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return slices.Clone(elem.Value.(*cacheEntry).vector), true
}

// Put stores a copy of vector under key. Overwriting an existing key keeps its
// original insertion position. Inserting past capacity evicts the oldest entry.
func (c *Cache) Put(key Key, vector []float32) {
	vector = slices.Clone(vector)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).vector = vector
		return
	}

	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, vector: vector})
	if c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		c.evictions.Add(1)
	}
	if c.order.Len() > c.capacity || len(c.entries) != c.order.Len() {
		panic("cache: size invariant violated")
	}
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// Capacity returns the configured maximum size.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Keys returns the stored keys, oldest insertion first.
func (c *Cache) Keys() []Key {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]Key, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*cacheEntry).key)
	}
	return keys
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Size:      c.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
