package eviction

import "sync"

// defaultWindowPct is the fraction of capacity given to the admission window.
const defaultWindowPct = 0.01

// WTinyLFU is a windowed TinyLFU cache. Fresh keys land in a small LRU
// window; on overflow the window victim competes against the incoming key by
// estimated frequency for admission into the main area, which is split into
// probation (on trial) and protected (hot) segments.
type WTinyLFU[V any] struct {
	mu sync.Mutex

	capacity      int
	windowSize    int
	probationSize int
	protectedSize int

	window    *orderedMap[V]
	probation *orderedMap[V]
	protected *orderedMap[V]

	sketch *countMinSketch
}

// NewWTinyLFU creates a W-TinyLFU cache with the given capacity and the
// default 1% window.
func NewWTinyLFU[V any](capacity int) *WTinyLFU[V] {
	return NewWTinyLFUWithWindow[V](capacity, defaultWindowPct)
}

// NewWTinyLFUWithWindow creates a W-TinyLFU cache with an explicit window
// fraction in (0, 1].
func NewWTinyLFUWithWindow[V any](capacity int, windowPct float64) *WTinyLFU[V] {
	if capacity < 1 {
		capacity = 1
	}
	if windowPct <= 0 || windowPct > 1 {
		windowPct = defaultWindowPct
	}

	windowSize := int(float64(capacity) * windowPct)
	if windowSize < 1 {
		windowSize = 1
	}
	rest := capacity - windowSize
	probationSize := rest / 2
	protectedSize := rest - probationSize

	return &WTinyLFU[V]{
		capacity:      capacity,
		windowSize:    windowSize,
		probationSize: probationSize,
		protectedSize: protectedSize,
		window:        newOrderedMap[V](),
		probation:     newOrderedMap[V](),
		protected:     newOrderedMap[V](),
		sketch:        newCountMinSketch(0, 0, 0),
	}
}

// Get looks up key, refreshing recency. A probation hit promotes the entry
// into protected, demoting the protected LRU back to probation when full.
func (c *WTinyLFU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value, ok := c.window.get(key); ok {
		c.window.putMRU(key, value)
		return value, true
	}
	if value, ok := c.protected.get(key); ok {
		c.protected.putMRU(key, value)
		return value, true
	}
	if value, ok := c.probation.remove(key); ok {
		if c.protected.len() >= c.protectedSize {
			if demotedKey, demoted, found := c.protected.popLRU(); found {
				c.probation.putMRU(demotedKey, demoted)
			}
		}
		c.protected.putMRU(key, value)
		return value, true
	}

	var zero V
	return zero, false
}

// Put records a touch in the frequency sketch and admits key. A key already
// resident only has its value refreshed. When the window is full its LRU
// victim always moves to the main area; the incoming key follows only if its
// estimated frequency is at least the victim's.
func (c *WTinyLFU[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sketch.add(key)

	if c.refreshResident(key, value) {
		return
	}

	if c.window.len() < c.windowSize {
		c.window.putMRU(key, value)
		return
	}

	victimKey, victimValue, ok := c.window.popLRU()
	if !ok {
		c.window.putMRU(key, value)
		return
	}

	if c.sketch.estimate(key) >= c.sketch.estimate(victimKey) {
		c.admitToMain(victimKey, victimValue)
		c.admitToMain(key, value)
		return
	}
	// Victim is more popular: it keeps its place in main, the newcomer is
	// dropped without ever reaching the main area.
	c.admitToMain(victimKey, victimValue)
}

// refreshResident updates the value of an already-resident key in place.
func (c *WTinyLFU[V]) refreshResident(key string, value V) bool {
	if c.window.contains(key) {
		c.window.putMRU(key, value)
		return true
	}
	if c.probation.contains(key) {
		c.probation.putMRU(key, value)
		return true
	}
	if c.protected.contains(key) {
		c.protected.putMRU(key, value)
		return true
	}
	return false
}

// admitToMain places key in probation, evicting the probation LRU entirely
// when the segment is full. Callers hold mu.
func (c *WTinyLFU[V]) admitToMain(key string, value V) {
	if c.probation.contains(key) || c.protected.contains(key) {
		return
	}
	if c.probationSize == 0 {
		return
	}
	if c.probation.len() >= c.probationSize {
		c.probation.popLRU()
	}
	c.probation.putMRU(key, value)
}

// Remove drops key from all three segments.
func (c *WTinyLFU[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok1 := c.window.remove(key)
	_, ok2 := c.probation.remove(key)
	_, ok3 := c.protected.remove(key)
	return ok1 || ok2 || ok3
}

// Len reports the total resident size across segments.
func (c *WTinyLFU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window.len() + c.probation.len() + c.protected.len()
}

// Clear drops all entries and resets the frequency sketch.
func (c *WTinyLFU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window.clear()
	c.probation.clear()
	c.protected.clear()
	c.sketch.reset()
}

// Segments exposes segment sizes for tests and diagnostics.
func (c *WTinyLFU[V]) Segments() (window, probation, protected int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window.len(), c.probation.len(), c.protected.len()
}

var _ Cache[int] = (*WTinyLFU[int])(nil)
