// Package cache provides a generic, mutex-guarded LRU cache with hit and
// miss statistics.
package cache

import (
	"sync"
	"time"
)

// Entry is a cache entry with metadata.
type Entry[K comparable, V any] struct {
	Key        K
	Value      V
	AccessedAt time.Time
	CreatedAt  time.Time
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Len       int    `json:"len"`
}

// LRU is an in-memory least-recently-used cache.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	items   map[K]*listItem[K, V]
	lru     *list[K, V] // most recent at front
	maxSize int
	onEvict func(key K, value V)
	now     func() time.Time
	stats   Stats
}

// listItem is an item in the doubly-linked list.
type listItem[K comparable, V any] struct {
	Entry[K, V]
	prev *listItem[K, V]
	next *listItem[K, V]
}

// list is a doubly-linked list of cache items.
type list[K comparable, V any] struct {
	head *listItem[K, V] // most recently accessed
	tail *listItem[K, V] // least recently accessed
	len  int
}

// unlink removes an item from the list.
func (l *list[K, V]) unlink(item *listItem[K, V]) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		l.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		l.tail = item.prev
	}
	item.prev, item.next = nil, nil
	l.len--
}

// pushFront adds an item to the front of the list.
func (l *list[K, V]) pushFront(item *listItem[K, V]) {
	item.next = l.head
	item.prev = nil
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
	l.len++
}

// moveToFront moves an item to the front (most recently used).
func (l *list[K, V]) moveToFront(item *listItem[K, V]) {
	if item == l.head {
		return
	}
	l.unlink(item)
	l.pushFront(item)
}

// Options configures the LRU cache.
type Options[K comparable, V any] struct {
	// MaxSize is the maximum number of entries.
	// 0 means unlimited.
	MaxSize int

	// OnEvict is called when an entry is evicted or deleted. It runs with
	// the cache lock held and must not call back into the cache.
	OnEvict func(key K, value V)

	// Clock stamps entries. Defaults to time.Now.
	Clock func() time.Time
}

// New creates a new LRU cache with the given options.
func New[K comparable, V any](opts Options[K, V]) *LRU[K, V] {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &LRU[K, V]{
		items:   make(map[K]*listItem[K, V]),
		lru:     &list[K, V]{},
		maxSize: opts.MaxSize,
		onEvict: opts.OnEvict,
		now:     now,
	}
}

// Get retrieves a value and marks it recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.stats.Hits++
	item.AccessedAt = c.now()
	c.lru.moveToFront(item)
	return item.Value, true
}

// Peek retrieves a value without touching recency or statistics.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, found := c.items[key]; found {
		return item.Value, true
	}
	var zero V
	return zero, false
}

// Set stores a value, evicting the least recently used entries when full.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if item, exists := c.items[key]; exists {
		item.Value = value
		item.AccessedAt = now
		c.lru.moveToFront(item)
		return
	}

	item := &listItem[K, V]{
		Entry: Entry[K, V]{
			Key:        key,
			Value:      value,
			AccessedAt: now,
			CreatedAt:  now,
		},
	}
	c.items[key] = item
	c.lru.pushFront(item)
	c.evictIfNeeded()
}

// CompareAndDelete removes key only while it still maps to a value for
// which match returns true.
func (c *LRU[K, V]) CompareAndDelete(key K, match func(V) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found || !match(item.Value) {
		return false
	}
	c.remove(item)
	return true
}

// Delete removes a key from the cache.
func (c *LRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, found := c.items[key]; found {
		c.remove(item)
	}
}

func (c *LRU[K, V]) remove(item *listItem[K, V]) {
	c.lru.unlink(item)
	delete(c.items, item.Key)
	if c.onEvict != nil {
		c.onEvict(item.Key, item.Value)
	}
}

// Clear removes all entries from the cache. Statistics are kept.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*listItem[K, V])
	c.lru = &list[K, V]{}
}

// Len returns the number of entries in the cache.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns the keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.items))
	for item := c.lru.head; item != nil; item = item.next {
		keys = append(keys, item.Key)
	}
	return keys
}

// Stats returns a snapshot of the counters.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Len = len(c.items)
	return s
}

// evictIfNeeded evicts entries while the cache exceeds its size limit.
func (c *LRU[K, V]) evictIfNeeded() {
	for c.maxSize > 0 && c.lru.len > c.maxSize {
		item := c.lru.tail
		if item == nil {
			break
		}
		c.stats.Evictions++
		c.remove(item)
	}
}
