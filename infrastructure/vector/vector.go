// Package vector provides the per-model vector indexes that back similarity
// search. Entry ids are assigned by the scalar store and echoed here; the
// index never owns payloads.
package vector

import (
	"context"
	"fmt"
	"sort"

	"github.com/codefuse-ai/modelcache/domain/cache"
	"github.com/codefuse-ai/modelcache/domain/similarity"
)

// DefaultTopK is the search depth used when the caller passes topK <= 0.
const DefaultTopK = 1

// CreateStatus reports the outcome of an index creation request.
type CreateStatus string

// CreateStatus values.
const (
	StatusCreated       CreateStatus = "created"
	StatusAlreadyExists CreateStatus = "already_exists"
)

// Store is a per-model vector index. All operations are scoped to a model;
// collections are created on first use or explicitly via Create.
type Store interface {
	// Create ensures the model's collection exists.
	Create(ctx context.Context, model string) (CreateStatus, error)

	// MulAdd inserts ids with their vectors. Lengths must match and every
	// vector must have the store's dimension.
	MulAdd(ctx context.Context, model string, ids []string, vectors [][]float32) error

	// Search returns up to topK candidates ordered best-first under the
	// store's metric, ties broken by ascending id. topK <= 0 means
	// DefaultTopK. An unknown model yields no candidates.
	Search(ctx context.Context, model string, vector []float32, topK int) ([]similarity.Candidate, error)

	// Delete removes the given ids and reports how many were present.
	Delete(ctx context.Context, model string, ids []string) (int64, error)

	// Truncate drops the model's collection and reports how many vectors
	// it held.
	Truncate(ctx context.Context, model string) (int64, error)

	// Rebuild re-optimises the model's index. A no-op for stores without
	// a separate index structure.
	Rebuild(ctx context.Context, model string) error

	// Flush blocks until pending writes are durable.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// scored pairs an id with its raw metric score during ranking.
type scored struct {
	id    string
	score float64
}

// rank orders scored results best-first under the metric, ties by ascending
// id, and cuts to topK.
func rank(metric cache.MetricType, results []scored, topK int) []similarity.Candidate {
	if topK <= 0 {
		topK = DefaultTopK
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score == results[j].score {
			return results[i].id < results[j].id
		}
		if metric.HigherIsBetter() {
			return results[i].score > results[j].score
		}
		return results[i].score < results[j].score
	})

	if topK > len(results) {
		topK = len(results)
	}
	candidates := make([]similarity.Candidate, topK)
	for i := range candidates {
		candidates[i] = similarity.NewCandidate(results[i].score, results[i].id)
	}
	return candidates
}

// score computes the raw metric score of a stored vector against the query.
func score(metric cache.MetricType, query, stored []float32) float64 {
	if metric == cache.MetricCosine {
		return similarity.CosineSimilarity(query, stored)
	}
	return similarity.L2Distance(query, stored)
}

// checkQueryDimension validates a search query against the store dimension.
func checkQueryDimension(dimension int, vector []float32) error {
	if len(vector) != dimension {
		return fmt.Errorf("%w: query vector has dimension %d, want %d", cache.ErrValidation, len(vector), dimension)
	}
	return nil
}

// checkDimension validates a MulAdd batch against the store dimension.
func checkDimension(dimension int, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("%w: %d ids for %d vectors", cache.ErrValidation, len(ids), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", cache.ErrValidation, i, len(v), dimension)
		}
	}
	return nil
}
