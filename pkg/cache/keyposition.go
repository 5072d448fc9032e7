package cache

import "sync"

// KeyPositionCache accelerates binary search on any FixedSizeSerialSet-
// style ordered array (spec.md §3.6, §4.4.7) — the manager's directory
// and ordered indices both hold such arrays. It maps a lookup key to the
// record index last seen at, and is invalidated in full on any mutation
// that could change ordering: spec.md doesn't ask for fine-grained
// invalidation, only that the cache never serve a stale index across a
// mutation.
type KeyPositionCache[K comparable] struct {
	mu    sync.RWMutex
	index map[K]int
}

// NewKeyPositionCache creates an empty cache.
func NewKeyPositionCache[K comparable]() *KeyPositionCache[K] {
	return &KeyPositionCache[K]{index: make(map[K]int)}
}

// Lookup returns the last-known record index for key, if cached.
func (c *KeyPositionCache[K]) Lookup(key K) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.index[key]
	return idx, ok
}

// Put records that key was found at idx.
func (c *KeyPositionCache[K]) Put(key K, idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index[key] = idx
}

// Invalidate drops every cached position. Call on any insert/remove into
// the backing array.
func (c *KeyPositionCache[K]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[K]int)
}

// Len reports how many positions are currently cached (diagnostic / test
// use).
func (c *KeyPositionCache[K]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index)
}
