package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/codefuse-ai/modelcache/domain/cache"
	"github.com/codefuse-ai/modelcache/internal/database"
)

// ScalarStore is the durable source of truth for cache entries and the
// append-only query log. Rows are soft-deleted on removal; only a full model
// truncation physically deletes them.
type ScalarStore struct {
	db      database.Database
	entries database.Repository[cache.Entry, EntryModel]
	logs    database.Repository[cache.QueryLog, QueryLogModel]
	logger  *slog.Logger
}

// NewScalarStore creates a ScalarStore over an already-migrated database.
func NewScalarStore(db database.Database, logger *slog.Logger) *ScalarStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScalarStore{
		db:      db,
		entries: database.NewRepository[cache.Entry, EntryModel](db, entryMapper{}, "cache entry"),
		logs:    database.NewRepository[cache.QueryLog, QueryLogModel](db, queryLogMapper{}, "query log"),
		logger:  logger,
	}
}

// BatchInsert persists the given entries, assigning each a fresh id, and
// returns the assigned ids in input order. Duplicate prompts are not
// de-duplicated; every insert creates a new row.
func (s *ScalarStore) BatchInsert(ctx context.Context, entries []cache.Entry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]string, len(entries))
	withIDs := make([]cache.Entry, len(entries))
	for i, entry := range entries {
		ids[i] = uuid.NewString()
		withIDs[i] = entry.WithID(ids[i])
	}

	if err := s.entries.Insert(ctx, withIDs...); err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrStore, err)
	}
	return ids, nil
}

// GetByID fetches a single live entry. Soft-deleted rows are invisible and
// surface as cache.ErrNotFound.
func (s *ScalarStore) GetByID(ctx context.Context, id string) (cache.Entry, error) {
	entry, err := s.entries.FindOne(ctx, database.NewQuery().
		Equal("id", id).
		Equal("is_deleted", false),
	)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return cache.Entry{}, fmt.Errorf("%w: entry %s", cache.ErrNotFound, id)
		}
		return cache.Entry{}, fmt.Errorf("%w: %v", cache.ErrStore, err)
	}
	return entry, nil
}

// GetByIDs fetches all live entries among the given ids. Missing or
// soft-deleted ids are silently absent from the result.
func (s *ScalarStore) GetByIDs(ctx context.Context, ids []string) ([]cache.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	entries, err := s.entries.Find(ctx, database.NewQuery().
		In("id", ids).
		Equal("is_deleted", false),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrStore, err)
	}
	return entries, nil
}

// IncrementHitCount bumps an entry's hit counter. Callers treat failures as
// best-effort; the error is returned for logging only.
func (s *ScalarStore) IncrementHitCount(ctx context.Context, id string) error {
	_, err := s.entries.UpdateColumns(ctx,
		database.NewQuery().Equal("id", id),
		map[string]any{"hit_count": gorm.Expr("hit_count + ?", 1)},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", cache.ErrStore, err)
	}
	return nil
}

// MarkDeleted soft-deletes the given entries and returns how many rows were
// affected. Already-deleted and unknown ids do not count.
func (s *ScalarStore) MarkDeleted(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	affected, err := s.entries.UpdateColumns(ctx,
		database.NewQuery().In("id", ids).Equal("is_deleted", false),
		map[string]any{"is_deleted": true},
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", cache.ErrStore, err)
	}
	return affected, nil
}

// ModelDeleteResult reports how many rows a model truncation removed.
type ModelDeleteResult struct {
	Entries int64
	Logs    int64
}

// DeleteModel physically removes every entry and query log row of a model
// scope in one transaction.
func (s *ScalarStore) DeleteModel(ctx context.Context, model string) (ModelDeleteResult, error) {
	result, err := database.WithTransactionResult(ctx, s.db, func(tx *gorm.DB) (ModelDeleteResult, error) {
		var r ModelDeleteResult

		res := tx.Where("model = ?", model).Delete(&EntryModel{})
		if res.Error != nil {
			return r, res.Error
		}
		r.Entries = res.RowsAffected

		res = tx.Where("model = ?", model).Delete(&QueryLogModel{})
		if res.Error != nil {
			return r, res.Error
		}
		r.Logs = res.RowsAffected
		return r, nil
	})
	if err != nil {
		return ModelDeleteResult{}, fmt.Errorf("%w: delete model %s: %v", cache.ErrStore, model, err)
	}

	s.logger.Info("model truncated", "model", model, "entries", result.Entries, "logs", result.Logs)
	return result, nil
}

// ListByModel returns every live entry in a model scope, oldest first.
func (s *ScalarStore) ListByModel(ctx context.Context, model string) ([]cache.Entry, error) {
	entries, err := s.entries.Find(ctx, database.NewQuery().
		Equal("model", model).
		Equal("is_deleted", false).
		OrderAsc("created_at"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrStore, err)
	}
	return entries, nil
}

// CountByModel returns the number of live entries in a model scope.
func (s *ScalarStore) CountByModel(ctx context.Context, model string) (int64, error) {
	count, err := s.entries.Count(ctx, database.NewQuery().
		Equal("model", model).
		Equal("is_deleted", false),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", cache.ErrStore, err)
	}
	return count, nil
}

// InsertQueryLog appends one audit row.
func (s *ScalarStore) InsertQueryLog(ctx context.Context, entry cache.QueryLog) error {
	if err := s.logs.Insert(ctx, entry); err != nil {
		return fmt.Errorf("%w: %v", cache.ErrStore, err)
	}
	return nil
}

// QueryLogs returns up to limit audit rows for a model scope, newest first.
func (s *ScalarStore) QueryLogs(ctx context.Context, model string, limit int) ([]cache.QueryLog, error) {
	q := database.NewQuery().Equal("model", model).OrderDesc("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	logs, err := s.logs.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrStore, err)
	}
	return logs, nil
}
