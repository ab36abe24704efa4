package vector

import (
	"context"
	"sync"

	"github.com/codefuse-ai/modelcache/domain/cache"
	"github.com/codefuse-ai/modelcache/domain/similarity"
)

// MemoryStore is an in-process vector index. It is the default backend for
// tests and single-node deployments without an external index.
type MemoryStore struct {
	mu          sync.RWMutex
	metric      cache.MetricType
	dimension   int
	collections map[string]map[string][]float32
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory vector store.
func NewMemoryStore(metric cache.MetricType, dimension int) *MemoryStore {
	return &MemoryStore{
		metric:      metric,
		dimension:   dimension,
		collections: make(map[string]map[string][]float32),
	}
}

// Create ensures the model's collection exists.
func (s *MemoryStore) Create(_ context.Context, model string) (CreateStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[model]; ok {
		return StatusAlreadyExists, nil
	}
	s.collections[model] = make(map[string][]float32)
	return StatusCreated, nil
}

// MulAdd inserts ids with their vectors, creating the collection on first use.
func (s *MemoryStore) MulAdd(_ context.Context, model string, ids []string, vectors [][]float32) error {
	if err := checkDimension(s.dimension, ids, vectors); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	collection, ok := s.collections[model]
	if !ok {
		collection = make(map[string][]float32)
		s.collections[model] = collection
	}
	for i, id := range ids {
		v := make([]float32, len(vectors[i]))
		copy(v, vectors[i])
		collection[id] = v
	}
	return nil
}

// Search scores every stored vector against the query and returns the topK
// best candidates.
func (s *MemoryStore) Search(_ context.Context, model string, vector []float32, topK int) ([]similarity.Candidate, error) {
	if err := checkQueryDimension(s.dimension, vector); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	collection, ok := s.collections[model]
	if !ok {
		return nil, nil
	}

	results := make([]scored, 0, len(collection))
	for id, stored := range collection {
		results = append(results, scored{id: id, score: score(s.metric, vector, stored)})
	}
	return rank(s.metric, results, topK), nil
}

// Delete removes the given ids and reports how many were present.
func (s *MemoryStore) Delete(_ context.Context, model string, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection, ok := s.collections[model]
	if !ok {
		return 0, nil
	}

	var removed int64
	for _, id := range ids {
		if _, ok := collection[id]; ok {
			delete(collection, id)
			removed++
		}
	}
	return removed, nil
}

// Truncate drops the model's collection.
func (s *MemoryStore) Truncate(_ context.Context, model string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection, ok := s.collections[model]
	if !ok {
		return 0, nil
	}
	delete(s.collections, model)
	return int64(len(collection)), nil
}

// Rebuild is a no-op; the store has no separate index structure.
func (s *MemoryStore) Rebuild(_ context.Context, _ string) error { return nil }

// Flush is a no-op; writes are immediately visible.
func (s *MemoryStore) Flush(_ context.Context) error { return nil }

// Close releases all collections.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string]map[string][]float32)
	return nil
}
