// Package modelcache provides a semantic response cache for LLM
// interactions.
//
// Prompts are embedded, stored alongside their answers, and later queries
// that are semantically close enough to a stored prompt are answered from
// the cache instead of the upstream model.
//
// Basic usage:
//
//	client, err := modelcache.New(
//	    modelcache.WithSQLite(".modelcache/data.db"),
//	    modelcache.WithOpenAIEmbedding(os.Getenv("OPENAI_API_KEY")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.Cache.Insert(ctx, "gpt_4", []service.InsertPair{
//	    {Prompt: cache.NewTextPrompt("what is a goroutine"), Answer: "..."},
//	})
//	result := client.Cache.Query(ctx, "gpt_4", cache.NewTextPrompt("what's a goroutine"))
//	if result.Hit {
//	    fmt.Println(result.Answer)
//	}
package modelcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/codefuse-ai/modelcache/application/service"
	"github.com/codefuse-ai/modelcache/domain/cache"
	"github.com/codefuse-ai/modelcache/infrastructure/embedding"
	"github.com/codefuse-ai/modelcache/infrastructure/objectstore"
	"github.com/codefuse-ai/modelcache/infrastructure/persistence"
	"github.com/codefuse-ai/modelcache/infrastructure/vector"
	"github.com/codefuse-ai/modelcache/internal/config"
	"github.com/codefuse-ai/modelcache/internal/database"
)

// ErrClientClosed is returned by Close on an already-closed client.
var ErrClientClosed = errors.New("modelcache: client already closed")

// Client is the main entry point for the modelcache library.
//
// Access the engine via struct fields:
//
//	client.Cache.Query(ctx, model, prompt)
//	client.Cache.Insert(ctx, model, pairs)
//	client.Data.Tier()
type Client struct {
	// Cache runs the query/insert/remove/register state machines.
	Cache *service.CacheService
	// Data owns the stores underneath the cache, exposed for inspection.
	Data *service.DataManager

	db         database.Database
	dispatcher *embedding.Dispatcher
	logger     *slog.Logger
	cfg        config.AppConfig
	closed     atomic.Bool
}

// New creates a Client with the given options. The embedding dispatcher
// workers start immediately.
func New(opts ...Option) (*Client, error) {
	cc := newClientConfig()
	for _, opt := range opts {
		opt(cc)
	}
	cfg := cc.app.Apply(cc.appOpts...)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrConfig, err)
	}

	logger := cc.logger
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := config.PrepareDataDir(cfg.DataDir()); err != nil {
		return nil, err
	}

	metric, err := cache.ParseMetricType(cfg.Similarity().Metric())
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	db, err := database.NewDatabase(ctx, cfg.DBURL())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if db.IsPostgres() {
		if err := db.ConfigurePool(25, 5, 30*time.Minute); err != nil {
			errClose := db.Close()
			return nil, errors.Join(fmt.Errorf("configure pool: %w", err), errClose)
		}
	}
	if err := persistence.AutoMigrate(db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("auto migrate: %w", err), errClose)
	}

	scalar := persistence.NewScalarStore(db, logger)

	vectors := cc.vectors
	if vectors == nil {
		vectors = vector.NewStore(db, metric, cfg.Embedding().Dimension(), logger)
	}

	base := cc.embedder
	if base == nil {
		base, err = embedding.NewFromConfig(cfg.Embedding())
		if err != nil {
			errClose := db.Close()
			return nil, errors.Join(err, errClose)
		}
	}
	dispatcher := embedding.NewDispatcher(base, cfg.Embedding(), logger)

	managerOpts := []service.DataManagerOption{
		service.WithNormalize(cfg.Similarity().Normalize()),
		service.WithDataManagerLogger(logger),
	}
	if cc.objectThreshold > 0 {
		objects, err := objectstore.NewStore(cfg.ObjectStoreDir())
		if err != nil {
			errClose := errors.Join(dispatcher.Close(), db.Close())
			return nil, errors.Join(fmt.Errorf("object store: %w", err), errClose)
		}
		managerOpts = append(managerOpts, service.WithObjectStore(objects, cc.objectThreshold))
	}

	manager, err := service.NewDataManager(scalar, vectors, cfg.Eviction(), managerOpts...)
	if err != nil {
		errClose := errors.Join(dispatcher.Close(), db.Close())
		return nil, errors.Join(err, errClose)
	}

	cacheService, err := service.NewCacheService(manager, dispatcher, cfg.Similarity(),
		cfg.Embedding().PreProcess(), cfg.ModelBlacklist(), logger)
	if err != nil {
		errClose := errors.Join(dispatcher.Close(), db.Close())
		return nil, errors.Join(err, errClose)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "modelcache client ready", cfg.LogAttrs()...)

	return &Client{
		Cache:      cacheService,
		Data:       manager,
		db:         db,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}, nil
}

// Config returns the resolved configuration.
func (c *Client) Config() config.AppConfig {
	return c.cfg
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Flush blocks until scheduled background writes are durable.
func (c *Client) Flush(ctx context.Context) error {
	return c.Cache.Flush(ctx)
}

// Close drains background writes, stops the embedding workers and closes
// the database.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	var errs []error
	if err := c.Cache.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.dispatcher.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.logger.Info("modelcache client closed")
	return nil
}
