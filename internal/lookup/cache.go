// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lookup

import "sync"

// Cache memoizes lookup results for the lifetime of one run, including
// definitive "not found" outcomes so known-absent keys are never re-queried.
//
// Concurrent callers racing on the same uncached key may each fetch; every
// completed fetch stores its result and the last write wins. That keeps the
// number of network calls bounded by the number of racing callers the first
// time and by zero afterwards, without the bookkeeping of true single-flight.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]Option[V]
}

// NewCache returns an empty cache.
func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{entries: make(map[K]Option[V])}
}

// Get returns the cached entry for key and whether the key has been looked
// up before. The entry itself may be None for a cached miss.
func (c *Cache[K, V]) Get(key K) (Option[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	return entry, ok
}

// Put stores the completed lookup result for key, present or absent.
func (c *Cache[K, V]) Put(key K, entry Option[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
}

// Len returns the number of distinct keys looked up so far.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
