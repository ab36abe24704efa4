// Package service wires the stores, the memory tier and the embedding
// dispatcher into the cache engine: the DataManager owns the stores, the
// CacheService runs the request state machines on top of it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codefuse-ai/modelcache/domain/cache"
	"github.com/codefuse-ai/modelcache/domain/eviction"
	"github.com/codefuse-ai/modelcache/domain/similarity"
	"github.com/codefuse-ai/modelcache/infrastructure/objectstore"
	"github.com/codefuse-ai/modelcache/infrastructure/persistence"
	"github.com/codefuse-ai/modelcache/infrastructure/vector"
	"github.com/codefuse-ai/modelcache/internal/config"
)

// Store outcome strings reported by Delete and Truncate.
const (
	StoreSuccess = "success"
	StoreFailed  = "failed"
)

// DataManager owns the scalar store, the vector index, the memory tier and
// the optional object store, and coordinates writes across them.
type DataManager struct {
	scalar  *persistence.ScalarStore
	vectors vector.Store
	tier    *eviction.Tier[cache.Entry]
	objects *objectstore.Store

	normalize       bool
	objectThreshold int
	logger          *slog.Logger
}

// DataManagerOption configures a DataManager.
type DataManagerOption func(*DataManager)

// WithNormalize enables L2 normalisation of every stored and searched vector.
func WithNormalize(normalize bool) DataManagerOption {
	return func(m *DataManager) { m.normalize = normalize }
}

// WithObjectStore routes answers longer than threshold bytes through the
// object store, leaving a handle in the scalar row.
func WithObjectStore(store *objectstore.Store, threshold int) DataManagerOption {
	return func(m *DataManager) {
		m.objects = store
		m.objectThreshold = threshold
	}
}

// WithDataManagerLogger sets the logger.
func WithDataManagerLogger(logger *slog.Logger) DataManagerOption {
	return func(m *DataManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewDataManager creates a DataManager. The memory tier is built here so its
// ARC ghost hits can load evicted entries back from the scalar store.
func NewDataManager(scalar *persistence.ScalarStore, vectors vector.Store, evictionCfg config.EvictionConfig, opts ...DataManagerOption) (*DataManager, error) {
	policy, err := eviction.ParsePolicy(evictionCfg.Policy())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrConfig, err)
	}

	m := &DataManager{
		scalar:  scalar,
		vectors: vectors,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.tier = eviction.NewTier[cache.Entry](policy, evictionCfg.Capacity(),
		eviction.WithGhostLoader[cache.Entry](func(model string) eviction.Loader[cache.Entry] {
			return func(id string) (cache.Entry, bool) {
				entry, err := scalar.GetByID(context.Background(), id)
				if err != nil {
					return cache.Entry{}, false
				}
				return entry, true
			}
		}),
	)
	return m, nil
}

// Tier exposes the memory tier for inspection.
func (m *DataManager) Tier() *eviction.Tier[cache.Entry] { return m.tier }

// ImportData persists one batch of prompt/answer/embedding triples for a
// model scope: scalar first (source of truth for ids), then memory tier,
// then vector index. The order is load-bearing; a failure after the scalar
// insert leaves an orphan row that the next delete or truncate reconciles.
func (m *DataManager) ImportData(ctx context.Context, prompts, answers []string, embeddings [][]float32, model string) ([]string, error) {
	if len(prompts) != len(answers) || len(prompts) != len(embeddings) {
		return nil, fmt.Errorf("%w: %d prompts, %d answers, %d embeddings", cache.ErrValidation, len(prompts), len(answers), len(embeddings))
	}
	if len(prompts) == 0 {
		return nil, nil
	}

	entries := make([]cache.Entry, len(prompts))
	for i := range prompts {
		vec := embeddings[i]
		if m.normalize {
			vec = cache.Normalize(vec)
		}

		entry := cache.NewEntry(prompts[i], answers[i], model, vec)
		if m.objects != nil && len(answers[i]) > m.objectThreshold {
			handle, err := m.objects.Put(answers[i])
			if err != nil {
				return nil, err
			}
			entry = entry.WithAnswerHandle(handle)
		}
		entries[i] = entry
	}

	ids, err := m.scalar.BatchInsert(ctx, entries)
	if err != nil {
		return nil, err
	}

	batch := make([][]float32, len(ids))
	for i, id := range ids {
		entry := entries[i].WithID(id)
		m.tier.Put(id, entry, model)
		batch[i] = entry.Embedding()
	}

	if err := m.vectors.MulAdd(ctx, model, ids, batch); err != nil {
		return nil, err
	}
	return ids, nil
}

// Search delegates a top-k nearest-neighbour search to the vector index,
// normalising the query vector when the engine is configured to.
func (m *DataManager) Search(ctx context.Context, vec []float32, topK int, model string) ([]similarity.Candidate, error) {
	if m.normalize {
		vec = cache.Normalize(vec)
	}
	return m.vectors.Search(ctx, model, vec, topK)
}

// GetScalarData hydrates one candidate id: memory tier first, then the
// scalar store, repopulating the tier on a scalar hit. Returns false when
// the id resolves to nothing live.
func (m *DataManager) GetScalarData(ctx context.Context, id, model string) (cache.Entry, bool, error) {
	if entry, ok := m.tier.Get(id, model); ok {
		return entry, true, nil
	}

	entry, err := m.scalar.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, err
	}

	m.tier.Put(id, entry, model)
	return entry, true, nil
}

// ResolveAnswer returns the answer text of an entry, reading through the
// object store when the entry carries a handle.
func (m *DataManager) ResolveAnswer(entry cache.Entry) (string, error) {
	if entry.AnswerType() != cache.AnswerObjectHandle {
		return entry.Answer(), nil
	}
	if m.objects == nil {
		return "", fmt.Errorf("%w: entry %s references an object store that is not configured", cache.ErrConfig, entry.ID())
	}
	return m.objects.Get(entry.Answer())
}

// DeleteResult reports the per-store outcome of a delete, so callers can
// diagnose partial failure.
type DeleteResult struct {
	VectorStatus  string
	VectorDeleted int64
	ScalarStatus  string
	ScalarDeleted int64
}

// Success reports whether both stores completed.
func (r DeleteResult) Success() bool {
	return r.VectorStatus == StoreSuccess && r.ScalarStatus == StoreSuccess
}

// Delete removes entries by id from all three layers: memory tier purge,
// vector index delete, scalar soft-delete. Each store is attempted even if
// an earlier one failed.
func (m *DataManager) Delete(ctx context.Context, ids []string, model string) (DeleteResult, error) {
	result := DeleteResult{VectorStatus: StoreSuccess, ScalarStatus: StoreSuccess}

	for _, id := range ids {
		m.tier.Remove(id, model)
	}

	var firstErr error
	deleted, err := m.vectors.Delete(ctx, model, ids)
	if err != nil {
		result.VectorStatus = StoreFailed
		firstErr = err
		m.logger.Error("vector delete failed", "model", model, "ids", len(ids), "error", err)
	} else {
		result.VectorDeleted = deleted
	}

	marked, err := m.scalar.MarkDeleted(ctx, ids...)
	if err != nil {
		result.ScalarStatus = StoreFailed
		if firstErr == nil {
			firstErr = err
		}
		m.logger.Error("scalar delete failed", "model", model, "ids", len(ids), "error", err)
	} else {
		result.ScalarDeleted = marked
	}

	return result, firstErr
}

// TruncateResult reports the per-store outcome of a model truncation.
type TruncateResult struct {
	VectorStatus  string
	VectorDeleted int64
	ScalarStatus  string
	ScalarDeleted int64
	LogsDeleted   int64
}

// Success reports whether both stores completed.
func (r TruncateResult) Success() bool {
	return r.VectorStatus == StoreSuccess && r.ScalarStatus == StoreSuccess
}

// Truncate drops every trace of a model scope: memory tier cleared, vector
// collection dropped and recreated, scalar rows and query-log rows hard
// deleted.
func (m *DataManager) Truncate(ctx context.Context, model string) (TruncateResult, error) {
	result := TruncateResult{VectorStatus: StoreSuccess, ScalarStatus: StoreSuccess}

	m.tier.Clear(model)

	var firstErr error
	dropped, err := m.vectors.Truncate(ctx, model)
	if err != nil {
		result.VectorStatus = StoreFailed
		firstErr = err
		m.logger.Error("vector truncate failed", "model", model, "error", err)
	} else {
		result.VectorDeleted = dropped
		if _, err := m.vectors.Create(ctx, model); err != nil {
			result.VectorStatus = StoreFailed
			firstErr = err
			m.logger.Error("vector recreate failed", "model", model, "error", err)
		}
	}

	deleted, err := m.scalar.DeleteModel(ctx, model)
	if err != nil {
		result.ScalarStatus = StoreFailed
		if firstErr == nil {
			firstErr = err
		}
		m.logger.Error("scalar truncate failed", "model", model, "error", err)
	} else {
		result.ScalarDeleted = deleted.Entries
		result.LogsDeleted = deleted.Logs
	}

	return result, firstErr
}

// CreateIndex ensures a vector collection exists for the model scope.
func (m *DataManager) CreateIndex(ctx context.Context, model string) (vector.CreateStatus, error) {
	return m.vectors.Create(ctx, model)
}

// UpdateHitCount bumps an entry's hit counter in the scalar store.
func (m *DataManager) UpdateHitCount(ctx context.Context, id string) error {
	return m.scalar.IncrementHitCount(ctx, id)
}

// SaveQueryLog appends one audit row.
func (m *DataManager) SaveQueryLog(ctx context.Context, entry cache.QueryLog) error {
	return m.scalar.InsertQueryLog(ctx, entry)
}

// Flush blocks until pending vector writes are durable.
func (m *DataManager) Flush(ctx context.Context) error {
	return m.vectors.Flush(ctx)
}

// Close releases the vector index. The database connection is owned by the
// caller.
func (m *DataManager) Close() error {
	return m.vectors.Close()
}
