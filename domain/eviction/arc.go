package eviction

import "sync"

// ARC is an Adaptive Replacement Cache. It balances recency and frequency
// with two resident lists (t1 recent, t2 frequent) and two ghost lists
// (b1, b2) that hold only keys of recently evicted entries. The adaptive
// target p shifts capacity between t1 and t2 as the workload changes.
//
// Invariants: len(t1)+len(t2) <= capacity, len(b1) <= capacity-p,
// len(b2) <= p, and a key lives in at most one of the four lists.
type ARC[V any] struct {
	mu       sync.Mutex
	capacity int
	p        int

	t1 *orderedMap[V]
	t2 *orderedMap[V]
	b1 *orderedMap[struct{}]
	b2 *orderedMap[struct{}]

	loader Loader[V]
}

// NewARC creates an ARC with the given capacity. The optional loader is
// consulted on ghost hits to re-fetch the value from the authoritative store;
// a nil loader turns ghost hits into plain misses (after adapting p).
func NewARC[V any](capacity int, loader Loader[V]) *ARC[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &ARC[V]{
		capacity: capacity,
		t1:       newOrderedMap[V](),
		t2:       newOrderedMap[V](),
		b1:       newOrderedMap[struct{}](),
		b2:       newOrderedMap[struct{}](),
		loader:   loader,
	}
}

// Get looks up key. Hits promote the entry into t2 and adapt p; ghost hits
// adapt p and re-fetch through the loader.
func (c *ARC[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value, ok := c.t1.remove(key); ok {
		c.t2.putMRU(key, value)
		c.p = max(0, c.p-1)
		c.enforce()
		return value, true
	}
	if value, ok := c.t2.get(key); ok {
		c.t2.putMRU(key, value)
		c.p = min(c.capacity, c.p+1)
		c.enforce()
		return value, true
	}
	if c.b1.contains(key) {
		c.b1.remove(key)
		c.p = min(c.capacity, c.p+1)
		c.enforce()
		return c.loadGhost(key)
	}
	if c.b2.contains(key) {
		c.b2.remove(key)
		c.p = max(0, c.p-1)
		c.enforce()
		return c.loadGhost(key)
	}

	var zero V
	return zero, false
}

// loadGhost re-fetches a ghost-hit key and places it at the MRU end of t2.
func (c *ARC[V]) loadGhost(key string) (V, bool) {
	var zero V
	if c.loader == nil {
		return zero, false
	}
	value, ok := c.loader(key)
	if !ok {
		return zero, false
	}
	c.t2.putMRU(key, value)
	c.enforce()
	return value, true
}

// Put inserts key as a fresh single-access entry at the MRU end of t1.
func (c *ARC[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t1.remove(key)
	c.t2.remove(key)
	c.b1.remove(key)
	c.b2.remove(key)

	c.t1.putMRU(key, value)
	c.enforce()
}

// enforce demotes resident entries into the ghost lists until the resident
// size fits, then trims the ghost lists to their bounds. Callers hold mu.
func (c *ARC[V]) enforce() {
	for c.t1.len()+c.t2.len() > c.capacity {
		// t1 over its target: shed its LRU into b1. Otherwise t2 holds the
		// excess (t1 <= p <= capacity < total), so shed t2's LRU into b2.
		if c.t1.len() > c.p {
			key, _, _ := c.t1.popLRU()
			c.b1.putMRU(key, struct{}{})
			continue
		}
		key, _, ok := c.t2.popLRU()
		if !ok {
			return
		}
		c.b2.putMRU(key, struct{}{})
	}
	for c.b1.len() > c.capacity-c.p {
		c.b1.popLRU()
	}
	for c.b2.len() > c.p {
		c.b2.popLRU()
	}
}

// Remove drops key from the resident and ghost lists.
func (c *ARC[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok1 := c.t1.remove(key)
	_, ok2 := c.t2.remove(key)
	_, ok3 := c.b1.remove(key)
	_, ok4 := c.b2.remove(key)
	return ok1 || ok2 || ok3 || ok4
}

// Len reports the resident size; ghosts are not counted.
func (c *ARC[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t1.len() + c.t2.len()
}

// Clear drops everything and resets p.
func (c *ARC[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t1.clear()
	c.t2.clear()
	c.b1.clear()
	c.b2.clear()
	c.p = 0
}

// Stats exposes list sizes and the adaptive target for tests and diagnostics.
func (c *ARC[V]) Stats() (t1, t2, b1, b2, p int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t1.len(), c.t2.len(), c.b1.len(), c.b2.len(), c.p
}

var _ Cache[int] = (*ARC[int])(nil)
