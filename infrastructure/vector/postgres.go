package vector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codefuse-ai/modelcache/domain/cache"
	"github.com/codefuse-ai/modelcache/domain/similarity"
	"github.com/codefuse-ai/modelcache/internal/database"
)

// ivfflatLists is the list count for the approximate index. 100 is the
// pgvector guidance for collections up to roughly a million rows.
const ivfflatLists = 100

// PostgresStore persists vectors in per-model pgvector tables and delegates
// nearest-neighbour search to the database.
type PostgresStore struct {
	db        database.Database
	metric    cache.MetricType
	dimension int
	logger    *slog.Logger

	mu        sync.Mutex
	extension bool
	tables    map[string]bool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a pgvector-backed vector store.
func NewPostgresStore(db database.Database, metric cache.MetricType, dimension int, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:        db,
		metric:    metric,
		dimension: dimension,
		logger:    logger,
		tables:    make(map[string]bool),
	}
}

// distanceOperator returns the pgvector operator for the configured metric.
// <=> is cosine distance (1 − similarity), <-> is euclidean distance.
func (s *PostgresStore) distanceOperator() string {
	if s.metric == cache.MetricCosine {
		return "<=>"
	}
	return "<->"
}

// operatorClass returns the ivfflat operator class for the configured metric.
func (s *PostgresStore) operatorClass() string {
	if s.metric == cache.MetricCosine {
		return "vector_cosine_ops"
	}
	return "vector_l2_ops"
}

// initialize ensures the pgvector extension and the model's table exist.
// Returns whether the table already existed.
func (s *PostgresStore) initialize(ctx context.Context, model string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.extension {
		if err := s.db.Session(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return false, fmt.Errorf("%w: create vector extension: %v", cache.ErrStore, err)
		}
		s.extension = true
	}

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
			"CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, embedding VECTOR(%d) NOT NULL)",
			table, s.dimension,
		)
		if err := s.db.Session(ctx).Exec(createSQL).Error; err != nil {
			return false, fmt.Errorf("%w: create vector table %s: %v", cache.ErrStore, table, err)
		}
		if err := s.createIndex(ctx, table); err != nil {
			return false, err
		}
		s.logger.Debug("created vector table", "table", table, "model", model, "dimension", s.dimension)
	}

	s.tables[table] = true
	return existed, nil
}

func (s *PostgresStore) createIndex(ctx context.Context, table string) error {
	indexSQL := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING ivfflat (embedding %s) WITH (lists = %d)",
		table, table, s.operatorClass(), ivfflatLists,
	)
	if err := s.db.Session(ctx).Exec(indexSQL).Error; err != nil {
		return fmt.Errorf("%w: create vector index on %s: %v", cache.ErrStore, table, err)
	}
	return nil
}

func (s *PostgresStore) tableExists(ctx context.Context, table string) (bool, error) {
	var regclass *string
	err := s.db.Session(ctx).
		Raw("SELECT to_regclass(?)", table).
		Scan(&regclass).Error
	if err != nil {
		return false, fmt.Errorf("%w: check vector table %s: %v", cache.ErrStore, table, err)
	}
	return regclass != nil, nil
}

// Create ensures the model's table exists.
func (s *PostgresStore) Create(ctx context.Context, model string) (CreateStatus, error) {
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
// An id that already exists has its vector replaced.
func (s *PostgresStore) MulAdd(ctx context.Context, model string, ids []string, vectors [][]float32) error {
	if err := checkDimension(s.dimension, ids, vectors); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.initialize(ctx, model); err != nil {
		return err
	}

	table := collectionTable(model)
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (id, embedding) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding",
		table,
	)
	for i, id := range ids {
		if err := s.db.Session(ctx).Exec(insertSQL, id, database.NewPgVector(vectors[i])).Error; err != nil {
			return fmt.Errorf("%w: insert vector into %s: %v", cache.ErrStore, table, err)
		}
	}
	return nil
}

// Search runs nearest-neighbour search inside Postgres and converts the
// returned distances into metric scores.
func (s *PostgresStore) Search(ctx context.Context, model string, vector []float32, topK int) ([]similarity.Candidate, error) {
	if err := checkQueryDimension(s.dimension, vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	table := collectionTable(model)
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	searchSQL := fmt.Sprintf(
		"SELECT id, embedding %s ? AS distance FROM %s ORDER BY distance ASC, id ASC LIMIT ?",
		s.distanceOperator(), table,
	)

	var rows []struct {
		ID       string
		Distance float64
	}
	err = s.db.Session(ctx).
		Raw(searchSQL, database.NewPgVector(vector), topK).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %v", cache.ErrStore, table, err)
	}

	candidates := make([]similarity.Candidate, len(rows))
	for i, row := range rows {
		rawScore := row.Distance
		if s.metric == cache.MetricCosine {
			rawScore = 1 - row.Distance
		}
		candidates[i] = similarity.NewCandidate(rawScore, row.ID)
	}
	return candidates, nil
}

// Delete removes the given ids and reports how many rows were present.
func (s *PostgresStore) Delete(ctx context.Context, model string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	table := collectionTable(model)
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	result := s.db.Session(ctx).Exec(
		fmt.Sprintf("DELETE FROM %s WHERE id IN ?", table), ids,
	)
	if result.Error != nil {
		return 0, fmt.Errorf("%w: delete from %s: %v", cache.ErrStore, table, result.Error)
	}
	return result.RowsAffected, nil
}

// Truncate drops the model's table and reports how many vectors it held.
func (s *PostgresStore) Truncate(ctx context.Context, model string) (int64, error) {
	table := collectionTable(model)
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var count int64
	if err := s.db.Session(ctx).Raw("SELECT count(*) FROM " + table).Scan(&count).Error; err != nil {
		return 0, fmt.Errorf("%w: count %s: %v", cache.ErrStore, table, err)
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

// Rebuild recreates the ivfflat index so its lists reflect the current data
// distribution.
func (s *PostgresStore) Rebuild(ctx context.Context, model string) error {
	table := collectionTable(model)
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	dropSQL := fmt.Sprintf("DROP INDEX IF EXISTS %s_embedding_idx", table)
	if err := s.db.Session(ctx).Exec(dropSQL).Error; err != nil {
		return fmt.Errorf("%w: drop vector index on %s: %v", cache.ErrStore, table, err)
	}
	return s.createIndex(ctx, table)
}

// Flush is a no-op; writes commit synchronously.
func (s *PostgresStore) Flush(_ context.Context) error { return nil }

// Close is a no-op; the database connection is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// NewStore picks the vector store implementation matching the database
// driver.
func NewStore(db database.Database, metric cache.MetricType, dimension int, logger *slog.Logger) Store {
	if db.IsPostgres() {
		return NewPostgresStore(db, metric, dimension, logger)
	}
	return NewSQLiteStore(db, metric, dimension, logger)
}
