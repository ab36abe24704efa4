// Package config provides application configuration.
package config

import (
	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Field names map to environment variables with the MODELCACHE_ prefix.
// Nested structs use underscore delimiter (e.g., MODELCACHE_EMBEDDING_MODEL).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: MODELCACHE_HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: MODELCACHE_PORT (default: 5000)
	Port int `envconfig:"PORT" default:"5000"`

	// DataDir is the data directory path.
	// Env: MODELCACHE_DATA_DIR
	// Default: ~/.modelcache
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the scalar database connection URL.
	// Env: MODELCACHE_DB_URL
	// Default: sqlite:///{data_dir}/modelcache.db
	DBURL string `envconfig:"DB_URL"`

	// LogLevel is the log verbosity level.
	// Env: MODELCACHE_LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: MODELCACHE_LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// Embedding configures the embedding backend.
	Embedding EmbeddingEnv `envconfig:"EMBEDDING"`

	// Similarity configures the metric and thresholds.
	Similarity SimilarityEnv `envconfig:"SIMILARITY"`

	// Eviction configures the in-memory tier.
	Eviction EvictionEnv `envconfig:"EVICTION"`

	// ModelBlacklist is a comma-separated list of blocked model scopes.
	// Env: MODELCACHE_MODEL_BLACKLIST
	ModelBlacklist string `envconfig:"MODEL_BLACKLIST"`

	// ObjectStoreDir is the filesystem object store directory.
	// Env: MODELCACHE_OBJECT_STORE_DIR
	// Default: {data_dir}/objects
	ObjectStoreDir string `envconfig:"OBJECT_STORE_DIR"`
}

// EmbeddingEnv holds environment configuration for the embedding backend.
type EmbeddingEnv struct {
	// Provider selects the embedder backend: openai or hugot.
	// Env: MODELCACHE_EMBEDDING_PROVIDER (default: hugot)
	Provider string `envconfig:"PROVIDER" default:"hugot"`

	// Model is the embedding model identifier.
	// Env: MODELCACHE_EMBEDDING_MODEL
	Model string `envconfig:"MODEL"`

	// BaseURL is the base URL for remote providers.
	// Env: MODELCACHE_EMBEDDING_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// APIKey is the API key for remote providers.
	// Env: MODELCACHE_EMBEDDING_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Dimension is the fixed embedding dimension.
	// Env: MODELCACHE_EMBEDDING_DIMENSION (default: 768)
	Dimension int `envconfig:"DIMENSION" default:"768"`

	// Workers is the dispatcher worker count.
	// Env: MODELCACHE_EMBEDDING_WORKERS (default: 2)
	Workers int `envconfig:"WORKERS" default:"2"`

	// QueueSize bounds the dispatcher job queue.
	// Env: MODELCACHE_EMBEDDING_QUEUE_SIZE (default: 64)
	QueueSize int `envconfig:"QUEUE_SIZE" default:"64"`

	// ModelDir is the local model directory for the hugot backend.
	// Env: MODELCACHE_EMBEDDING_MODEL_DIR
	ModelDir string `envconfig:"MODEL_DIR"`

	// PreProcess selects the prompt serialisation mode.
	// Env: MODELCACHE_EMBEDDING_PRE_PROCESS (default: last_content_with_role)
	PreProcess string `envconfig:"PRE_PROCESS" default:"last_content_with_role"`

	// Timeout is the request timeout in seconds.
	// Env: MODELCACHE_EMBEDDING_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// MaxRetries is the maximum number of retries.
	// Env: MODELCACHE_EMBEDDING_MAX_RETRIES (default: 5)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"5"`

	// InitialDelay is the initial retry delay in seconds.
	// Env: MODELCACHE_EMBEDDING_INITIAL_DELAY (default: 2.0)
	InitialDelay float64 `envconfig:"INITIAL_DELAY" default:"2.0"`

	// BackoffFactor is the retry backoff multiplier.
	// Env: MODELCACHE_EMBEDDING_BACKOFF_FACTOR (default: 2.0)
	BackoffFactor float64 `envconfig:"BACKOFF_FACTOR" default:"2.0"`
}

// SimilarityEnv holds environment configuration for similarity evaluation.
type SimilarityEnv struct {
	// Metric is the vector index metric: COSINE or L2.
	// Env: MODELCACHE_SIMILARITY_METRIC (default: COSINE)
	Metric string `envconfig:"METRIC" default:"COSINE"`

	// Threshold is the base similarity threshold for short prompts.
	// Env: MODELCACHE_SIMILARITY_THRESHOLD (default: 0.9)
	Threshold float64 `envconfig:"THRESHOLD" default:"0.9"`

	// ThresholdLong is the similarity threshold for long prompts.
	// Env: MODELCACHE_SIMILARITY_THRESHOLD_LONG (default: 0.9)
	ThresholdLong float64 `envconfig:"THRESHOLD_LONG" default:"0.9"`

	// CacheFactor scales both thresholds at runtime.
	// Env: MODELCACHE_SIMILARITY_CACHE_FACTOR (default: 1.0)
	CacheFactor float64 `envconfig:"CACHE_FACTOR" default:"1.0"`

	// Normalize controls L2-normalisation of stored and searched vectors.
	// Env: MODELCACHE_SIMILARITY_NORMALIZE (default: false)
	Normalize bool `envconfig:"NORMALIZE" default:"false"`

	// TopK is the default vector search depth.
	// Env: MODELCACHE_SIMILARITY_TOP_K (default: 1)
	TopK int `envconfig:"TOP_K" default:"1"`
}

// EvictionEnv holds environment configuration for the in-memory tier.
type EvictionEnv struct {
	// Policy selects the replacement algorithm: ARC or WTINYLFU.
	// Env: MODELCACHE_EVICTION_POLICY (default: ARC)
	Policy string `envconfig:"POLICY" default:"ARC"`

	// Capacity is the per-model tier capacity.
	// Env: MODELCACHE_EVICTION_CAPACITY (default: 10000)
	Capacity int `envconfig:"CAPACITY" default:"10000"`
}

// LoadFromEnv loads configuration from environment variables with the
// MODELCACHE prefix.
func LoadFromEnv() (EnvConfig, error) {
	return LoadFromEnvWithPrefix("MODELCACHE")
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig()

	// Apply overrides from environment
	if e.Host != "" {
		cfg = cfg.Apply(WithHost(e.Host))
	}
	if e.Port != 0 {
		cfg = cfg.Apply(WithPort(e.Port))
	}
	if e.DataDir != "" {
		cfg = cfg.Apply(WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		cfg = cfg.Apply(WithDBURL(e.DBURL))
	}
	if e.LogLevel != "" {
		cfg = cfg.Apply(WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		cfg = cfg.Apply(WithLogFormat(parseLogFormat(e.LogFormat)))
	}

	cfg = cfg.Apply(
		WithEmbeddingConfig(e.Embedding.ToEmbeddingConfig()),
		WithSimilarityConfig(e.Similarity.ToSimilarityConfig()),
		WithEvictionConfig(e.Eviction.ToEvictionConfig()),
	)

	if e.ModelBlacklist != "" {
		cfg = cfg.Apply(WithModelBlacklist(ParseModelBlacklist(e.ModelBlacklist)))
	}
	if e.ObjectStoreDir != "" {
		cfg = cfg.Apply(WithObjectStoreDir(e.ObjectStoreDir))
	}

	return cfg
}

// ToEmbeddingConfig converts EmbeddingEnv to EmbeddingConfig.
func (e EmbeddingEnv) ToEmbeddingConfig() EmbeddingConfig {
	opts := []EmbeddingOption{
		WithProvider(e.Provider),
		WithDimension(e.Dimension),
		WithWorkers(e.Workers),
		WithQueueSize(e.QueueSize),
		WithPreProcess(e.PreProcess),
		WithTimeout(secondsToDuration(e.Timeout)),
		WithMaxRetries(e.MaxRetries),
		WithInitialDelay(secondsToDuration(e.InitialDelay)),
		WithBackoffFactor(e.BackoffFactor),
	}

	if e.Model != "" {
		opts = append(opts, WithModel(e.Model))
	}
	if e.BaseURL != "" {
		opts = append(opts, WithBaseURL(e.BaseURL))
	}
	if e.APIKey != "" {
		opts = append(opts, WithAPIKey(e.APIKey))
	}
	if e.ModelDir != "" {
		opts = append(opts, WithModelDir(e.ModelDir))
	}

	return NewEmbeddingConfigWithOptions(opts...)
}

// ToSimilarityConfig converts SimilarityEnv to SimilarityConfig.
func (s SimilarityEnv) ToSimilarityConfig() SimilarityConfig {
	return NewSimilarityConfigWithOptions(
		WithMetric(s.Metric),
		WithThreshold(s.Threshold),
		WithThresholdLong(s.ThresholdLong),
		WithCacheFactor(s.CacheFactor),
		WithNormalize(s.Normalize),
		WithTopK(s.TopK),
	)
}

// ToEvictionConfig converts EvictionEnv to EvictionConfig.
func (e EvictionEnv) ToEvictionConfig() EvictionConfig {
	return NewEvictionConfigWithOptions(
		WithPolicy(e.Policy),
		WithCapacity(e.Capacity),
	)
}
