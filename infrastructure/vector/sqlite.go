package vector

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/codefuse-ai/modelcache/domain/cache"
	"github.com/codefuse-ai/modelcache/domain/similarity"
	"github.com/codefuse-ai/modelcache/internal/database"
)

// Float32Slice stores a float32 vector as a JSON array in a text column.
type Float32Slice []float32

// Scan implements sql.Scanner.
func (s *Float32Slice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Float32Slice", value)
	}
	return json.Unmarshal(raw, s)
}

// Value implements driver.Valuer.
func (s Float32Slice) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// sqliteVectorRow is one stored vector. The same struct maps to every
// per-model table, so queries always route through a dynamic table name.
type sqliteVectorRow struct {
	ID        string       `gorm:"column:id;primaryKey"`
	Embedding Float32Slice `gorm:"column:embedding;type:text;not null"`
}

// record is the domain view of one stored vector.
type record struct {
	id     string
	vector []float32
}

type sqliteRowMapper struct{}

func (sqliteRowMapper) ToDomain(row sqliteVectorRow) record {
	return record{id: row.ID, vector: []float32(row.Embedding)}
}

func (sqliteRowMapper) ToModel(r record) sqliteVectorRow {
	return sqliteVectorRow{ID: r.id, Embedding: Float32Slice(r.vector)}
}

// SQLiteStore persists vectors in per-model SQLite tables and computes
// similarity in Go over a full scan. Collections of the sizes this cache
// targets fit comfortably in one query.
type SQLiteStore struct {
	db        database.Database
	metric    cache.MetricType
	dimension int
	logger    *slog.Logger

	mu     sync.Mutex
	tables map[string]bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a SQLite-backed vector store.
func NewSQLiteStore(db database.Database, metric cache.MetricType, dimension int, logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{
		db:        db,
		metric:    metric,
		dimension: dimension,
		logger:    logger,
		tables:    make(map[string]bool),
	}
}

// collectionTable derives the per-model table name. Model names are
// normalised at the API boundary, but the result is sanitised again so a
// store used directly can never interpolate arbitrary SQL identifiers.
func collectionTable(model string) string {
	var b strings.Builder
	for _, r := range model {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return "modelcache_" + b.String() + "_vector"
}

// initialize creates the model's table if this store has not seen it yet.
// Returns whether the table already existed.
func (s *SQLiteStore) initialize(ctx context.Context, model string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := collectionTable(model)
	if s.tables[table] {
		return true, nil
	}

	existed, err := s.tableExists(ctx, table)
	if err != nil {
		return false, err
	}
	if !existed {
		createSQL := fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, embedding TEXT NOT NULL)",
			table,
		)
		if err := s.db.Session(ctx).Exec(createSQL).Error; err != nil {
			return false, fmt.Errorf("%w: create vector table %s: %v", cache.ErrStore, table, err)
		}
		s.logger.Debug("created vector table", "table", table, "model", model)
	}

	s.tables[table] = true
	return existed, nil
}

func (s *SQLiteStore) tableExists(ctx context.Context, table string) (bool, error) {
	var count int64
	err := s.db.Session(ctx).
		Raw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).
		Scan(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: check vector table %s: %v", cache.ErrStore, table, err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) repository(model string) database.Repository[record, sqliteVectorRow] {
	return database.NewRepositoryForTable[record, sqliteVectorRow](
		s.db, sqliteRowMapper{}, "vector", collectionTable(model),
	)
}

// Create ensures the model's table exists.
func (s *SQLiteStore) Create(ctx context.Context, model string) (CreateStatus, error) {
	existed, err := s.initialize(ctx, model)
	if err != nil {
		return "", err
	}
	if existed {
		return StatusAlreadyExists, nil
	}
	return StatusCreated, nil
}

// MulAdd inserts ids with their vectors, creating the table on first use.
func (s *SQLiteStore) MulAdd(ctx context.Context, model string, ids []string, vectors [][]float32) error {
	if err := checkDimension(s.dimension, ids, vectors); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.initialize(ctx, model); err != nil {
		return err
	}

	records := make([]record, len(ids))
	for i, id := range ids {
		records[i] = record{id: id, vector: vectors[i]}
	}
	if err := s.repository(model).Insert(ctx, records...); err != nil {
		return fmt.Errorf("%w: %v", cache.ErrStore, err)
	}
	return nil
}

// Search loads the model's vectors and ranks them in Go.
func (s *SQLiteStore) Search(ctx context.Context, model string, vector []float32, topK int) ([]similarity.Candidate, error) {
	if err := checkQueryDimension(s.dimension, vector); err != nil {
		return nil, err
	}

	exists, err := s.tableExists(ctx, collectionTable(model))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	records, err := s.repository(model).Find(ctx, database.NewQuery())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrStore, err)
	}

	results := make([]scored, 0, len(records))
	for _, r := range records {
		results = append(results, scored{id: r.id, score: score(s.metric, vector, r.vector)})
	}
	return rank(s.metric, results, topK), nil
}

// Delete removes the given ids and reports how many rows were present.
func (s *SQLiteStore) Delete(ctx context.Context, model string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	exists, err := s.tableExists(ctx, collectionTable(model))
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	deleted, err := s.repository(model).DeleteBy(ctx, database.NewQuery().In("id", ids))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", cache.ErrStore, err)
	}
	return deleted, nil
}

// Truncate drops the model's table and reports how many vectors it held.
func (s *SQLiteStore) Truncate(ctx context.Context, model string) (int64, error) {
	table := collectionTable(model)
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	count, err := s.repository(model).Count(ctx, database.NewQuery())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", cache.ErrStore, err)
	}

	if err := s.db.Session(ctx).Exec("DROP TABLE IF EXISTS " + table).Error; err != nil {
		return 0, fmt.Errorf("%w: drop vector table %s: %v", cache.ErrStore, table, err)
	}

	s.mu.Lock()
	delete(s.tables, table)
	s.mu.Unlock()

	s.logger.Info("vector collection truncated", "model", model, "vectors", count)
	return count, nil
}

// Rebuild is a no-op; the full scan has no index to rebuild.
func (s *SQLiteStore) Rebuild(_ context.Context, _ string) error { return nil }

// Flush is a no-op; writes commit synchronously.
func (s *SQLiteStore) Flush(_ context.Context) error { return nil }

// Close is a no-op; the database connection is owned by the caller.
func (s *SQLiteStore) Close() error { return nil }
