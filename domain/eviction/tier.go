package eviction

import "sync"

// Tier is the per-model in-memory layer. Each model gets its own bounded
// cache, created lazily on first reference. Capacity is per model, not
// global, and eviction never touches the backing stores.
type Tier[V any] struct {
	mu       sync.Mutex
	policy   Policy
	capacity int
	loaders  func(model string) Loader[V]
	caches   map[string]Cache[V]
}

// TierOption configures a Tier.
type TierOption[V any] func(*Tier[V])

// WithGhostLoader installs a per-model loader factory used by ARC ghost hits.
func WithGhostLoader[V any](factory func(model string) Loader[V]) TierOption[V] {
	return func(t *Tier[V]) {
		t.loaders = factory
	}
}

// NewTier creates a Tier with the given policy and per-model capacity.
func NewTier[V any](policy Policy, capacity int, opts ...TierOption[V]) *Tier[V] {
	if capacity < 1 {
		capacity = 1
	}
	t := &Tier[V]{
		policy:   policy,
		capacity: capacity,
		caches:   make(map[string]Cache[V]),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Policy returns the configured replacement policy.
func (t *Tier[V]) Policy() Policy { return t.policy }

// Cache returns the underlying cache for model, creating it on first use.
func (t *Tier[V]) Cache(model string) Cache[V] {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.caches[model]; ok {
		return c
	}
	c := t.newCache(model)
	t.caches[model] = c
	return c
}

func (t *Tier[V]) newCache(model string) Cache[V] {
	switch t.policy {
	case PolicyWTinyLFU:
		return NewWTinyLFU[V](t.capacity)
	default:
		var loader Loader[V]
		if t.loaders != nil {
			loader = t.loaders(model)
		}
		return NewARC[V](t.capacity, loader)
	}
}

// Get looks up id in the model's cache.
func (t *Tier[V]) Get(id, model string) (V, bool) {
	return t.Cache(model).Get(id)
}

// Put inserts id into the model's cache.
func (t *Tier[V]) Put(id string, value V, model string) {
	t.Cache(model).Put(id, value)
}

// Remove drops id from the model's cache if present.
func (t *Tier[V]) Remove(id, model string) bool {
	return t.Cache(model).Remove(id)
}

// Clear discards the model's cache entirely; the next reference recreates it.
func (t *Tier[V]) Clear(model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.caches, model)
}

// Len reports the resident size of the model's cache without creating it.
func (t *Tier[V]) Len(model string) int {
	t.mu.Lock()
	c, ok := t.caches[model]
	t.mu.Unlock()
	if !ok {
		return 0
	}
	return c.Len()
}
