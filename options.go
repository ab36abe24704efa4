package modelcache

import (
	"log/slog"

	"github.com/codefuse-ai/modelcache/infrastructure/embedding"
	"github.com/codefuse-ai/modelcache/infrastructure/vector"
	"github.com/codefuse-ai/modelcache/internal/config"
)

// clientConfig holds configuration for Client construction.
// Use newClientConfig() to create with defaults from internal/config.
type clientConfig struct {
	app     config.AppConfig
	appOpts []config.AppConfigOption

	embedder        embedding.Embedder
	vectors         vector.Store
	logger          *slog.Logger
	objectThreshold int
}

// newClientConfig creates a clientConfig with defaults from internal/config.
func newClientConfig() *clientConfig {
	return &clientConfig{
		app: config.NewAppConfig(),
	}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithConfig replaces the base configuration, e.g. one loaded from the
// environment. Options applied after it still override individual fields.
func WithConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) {
		c.app = cfg
	}
}

// WithSQLite configures SQLite as the scalar and vector database.
func WithSQLite(path string) Option {
	return func(c *clientConfig) {
		c.appOpts = append(c.appOpts, config.WithDBURL("sqlite:///"+path))
	}
}

// WithPostgres configures PostgreSQL with the pgvector extension as the
// scalar and vector database.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.appOpts = append(c.appOpts, config.WithDBURL(dsn))
	}
}

// WithDataDir sets the data directory for database and object storage.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.appOpts = append(c.appOpts, config.WithDataDir(dir))
	}
}

// WithOpenAIEmbedding selects the OpenAI embedding backend.
func WithOpenAIEmbedding(apiKey string) Option {
	return func(c *clientConfig) {
		c.appOpts = append(c.appOpts, config.WithEmbeddingOptions(
			config.WithProvider(embedding.ProviderOpenAI),
			config.WithAPIKey(apiKey),
		))
	}
}

// WithHugotEmbedding selects the local ONNX embedding backend with models
// loaded from dir.
func WithHugotEmbedding(dir string) Option {
	return func(c *clientConfig) {
		c.appOpts = append(c.appOpts, config.WithEmbeddingOptions(
			config.WithProvider(embedding.ProviderHugot),
			config.WithModelDir(dir),
		))
	}
}

// WithEmbeddingConfig replaces the whole embedding configuration.
func WithEmbeddingConfig(cfg config.EmbeddingConfig) Option {
	return func(c *clientConfig) {
		c.appOpts = append(c.appOpts, config.WithEmbeddingConfig(cfg))
	}
}

// WithEmbedder sets a custom embedding backend, bypassing the configured
// provider. The dispatcher still wraps it.
func WithEmbedder(e embedding.Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithVectorStore sets a custom vector index, bypassing the database-backed
// one. Useful with vector.NewMemoryStore in tests.
func WithVectorStore(s vector.Store) Option {
	return func(c *clientConfig) {
		c.vectors = s
	}
}

// WithSimilarityConfig sets the metric and hit thresholds.
func WithSimilarityConfig(cfg config.SimilarityConfig) Option {
	return func(c *clientConfig) {
		c.appOpts = append(c.appOpts, config.WithSimilarityConfig(cfg))
	}
}

// WithEvictionConfig sets the memory tier policy and capacity.
func WithEvictionConfig(cfg config.EvictionConfig) Option {
	return func(c *clientConfig) {
		c.appOpts = append(c.appOpts, config.WithEvictionConfig(cfg))
	}
}

// WithModelBlacklist blocks the given model scopes at ingress.
func WithModelBlacklist(models ...string) Option {
	return func(c *clientConfig) {
		c.appOpts = append(c.appOpts, config.WithModelBlacklist(models))
	}
}

// WithObjectStore routes answers larger than threshold bytes through the
// filesystem object store. A threshold of 0 disables it;
// config.DefaultObjectStoreThreshold is a reasonable value.
func WithObjectStore(threshold int) Option {
	return func(c *clientConfig) {
		c.objectThreshold = threshold
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}
