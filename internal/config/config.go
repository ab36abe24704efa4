// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost                 = "0.0.0.0"
	DefaultPort                 = 5000
	DefaultLogLevel             = "INFO"
	DefaultEmbeddingDimension   = 768
	DefaultEmbeddingWorkers     = 2
	DefaultEmbeddingQueueSize   = 64
	DefaultEmbeddingTimeout     = 60 * time.Second
	DefaultEmbeddingMaxRetries  = 5
	DefaultEmbeddingDelay       = 2 * time.Second
	DefaultEmbeddingBackoff     = 2.0
	DefaultSimilarityThreshold  = 0.9
	DefaultCacheFactor          = 1.0
	DefaultTopK                 = 1
	DefaultEvictionCapacity     = 10000
	DefaultObjectStoreSubdir    = "objects"
	DefaultObjectStoreThreshold = 64 * 1024
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// EmbeddingConfig configures the embedding backend and its dispatcher.
type EmbeddingConfig struct {
	provider      string
	model         string
	baseURL       string
	apiKey        string
	dimension     int
	workers       int
	queueSize     int
	modelDir      string
	preProcess    string
	timeout       time.Duration
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
}

// NewEmbeddingConfig creates a new EmbeddingConfig with defaults.
func NewEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		provider:      "hugot",
		dimension:     DefaultEmbeddingDimension,
		workers:       DefaultEmbeddingWorkers,
		queueSize:     DefaultEmbeddingQueueSize,
		preProcess:    "last_content_with_role",
		timeout:       DefaultEmbeddingTimeout,
		maxRetries:    DefaultEmbeddingMaxRetries,
		initialDelay:  DefaultEmbeddingDelay,
		backoffFactor: DefaultEmbeddingBackoff,
	}
}

// Provider returns the embedder backend name (openai or hugot).
func (e EmbeddingConfig) Provider() string { return e.provider }

// Model returns the embedding model identifier.
func (e EmbeddingConfig) Model() string { return e.model }

// BaseURL returns the base URL for remote providers.
func (e EmbeddingConfig) BaseURL() string { return e.baseURL }

// APIKey returns the API key for remote providers.
func (e EmbeddingConfig) APIKey() string { return e.apiKey }

// Dimension returns the fixed embedding dimension.
func (e EmbeddingConfig) Dimension() int { return e.dimension }

// Workers returns the dispatcher worker count.
func (e EmbeddingConfig) Workers() int { return e.workers }

// QueueSize returns the dispatcher queue bound.
func (e EmbeddingConfig) QueueSize() int { return e.queueSize }

// ModelDir returns the local model directory for the hugot backend.
func (e EmbeddingConfig) ModelDir() string { return e.modelDir }

// PreProcess returns the prompt serialisation mode name.
func (e EmbeddingConfig) PreProcess() string { return e.preProcess }

// Timeout returns the request timeout.
func (e EmbeddingConfig) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the maximum retry count.
func (e EmbeddingConfig) MaxRetries() int { return e.maxRetries }

// InitialDelay returns the initial retry delay.
func (e EmbeddingConfig) InitialDelay() time.Duration { return e.initialDelay }

// BackoffFactor returns the retry backoff multiplier.
func (e EmbeddingConfig) BackoffFactor() float64 { return e.backoffFactor }

// EmbeddingOption is a functional option for EmbeddingConfig.
type EmbeddingOption func(*EmbeddingConfig)

// WithProvider sets the embedder backend.
func WithProvider(provider string) EmbeddingOption {
	return func(e *EmbeddingConfig) { e.provider = provider }
}

// WithModel sets the embedding model identifier.
func WithModel(model string) EmbeddingOption {
	return func(e *EmbeddingConfig) { e.model = model }
}

// WithBaseURL sets the base URL.
func WithBaseURL(url string) EmbeddingOption {
	return func(e *EmbeddingConfig) { e.baseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) EmbeddingOption {
	return func(e *EmbeddingConfig) { e.apiKey = key }
}

// WithDimension sets the embedding dimension.
func WithDimension(n int) EmbeddingOption {
	return func(e *EmbeddingConfig) { e.dimension = n }
}

// WithWorkers sets the dispatcher worker count.
func WithWorkers(n int) EmbeddingOption {
	return func(e *EmbeddingConfig) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithQueueSize sets the dispatcher queue bound.
func WithQueueSize(n int) EmbeddingOption {
	return func(e *EmbeddingConfig) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// WithModelDir sets the local model directory.
func WithModelDir(dir string) EmbeddingOption {
	return func(e *EmbeddingConfig) { e.modelDir = dir }
}

// WithPreProcess sets the prompt serialisation mode.
func WithPreProcess(mode string) EmbeddingOption {
	return func(e *EmbeddingConfig) { e.preProcess = mode }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) EmbeddingOption {
	return func(e *EmbeddingConfig) { e.timeout = d }
}

// WithMaxRetries sets the maximum retry count.
func WithMaxRetries(n int) EmbeddingOption {
	return func(e *EmbeddingConfig) { e.maxRetries = n }
}

// WithInitialDelay sets the initial retry delay.
func WithInitialDelay(d time.Duration) EmbeddingOption {
	return func(e *EmbeddingConfig) { e.initialDelay = d }
}

// WithBackoffFactor sets the retry backoff multiplier.
func WithBackoffFactor(f float64) EmbeddingOption {
	return func(e *EmbeddingConfig) { e.backoffFactor = f }
}

// NewEmbeddingConfigWithOptions creates an EmbeddingConfig with options.
func NewEmbeddingConfigWithOptions(opts ...EmbeddingOption) EmbeddingConfig {
	e := NewEmbeddingConfig()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Apply returns a copy of the config with the given options applied.
func (e EmbeddingConfig) Apply(opts ...EmbeddingOption) EmbeddingConfig {
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// SimilarityConfig configures the metric and the hit thresholds.
type SimilarityConfig struct {
	metric        string
	threshold     float64
	thresholdLong float64
	cacheFactor   float64
	normalize     bool
	topK          int
}

// NewSimilarityConfig creates a new SimilarityConfig with defaults.
func NewSimilarityConfig() SimilarityConfig {
	return SimilarityConfig{
		metric:        "COSINE",
		threshold:     DefaultSimilarityThreshold,
		thresholdLong: DefaultSimilarityThreshold,
		cacheFactor:   DefaultCacheFactor,
		topK:          DefaultTopK,
	}
}

// Metric returns the vector index metric name.
func (s SimilarityConfig) Metric() string { return s.metric }

// Threshold returns the base threshold for short prompts.
func (s SimilarityConfig) Threshold() float64 { return s.threshold }

// ThresholdLong returns the threshold for long prompts.
func (s SimilarityConfig) ThresholdLong() float64 { return s.thresholdLong }

// CacheFactor returns the runtime threshold scaling factor.
func (s SimilarityConfig) CacheFactor() float64 { return s.cacheFactor }

// Normalize returns whether vectors are L2-normalised before storage and search.
func (s SimilarityConfig) Normalize() bool { return s.normalize }

// TopK returns the default vector search depth.
func (s SimilarityConfig) TopK() int { return s.topK }

// SimilarityOption is a functional option for SimilarityConfig.
type SimilarityOption func(*SimilarityConfig)

// WithMetric sets the vector index metric.
func WithMetric(metric string) SimilarityOption {
	return func(s *SimilarityConfig) { s.metric = metric }
}

// WithThreshold sets the short-prompt threshold.
func WithThreshold(t float64) SimilarityOption {
	return func(s *SimilarityConfig) { s.threshold = t }
}

// WithThresholdLong sets the long-prompt threshold.
func WithThresholdLong(t float64) SimilarityOption {
	return func(s *SimilarityConfig) { s.thresholdLong = t }
}

// WithCacheFactor sets the runtime threshold scaling factor.
func WithCacheFactor(f float64) SimilarityOption {
	return func(s *SimilarityConfig) { s.cacheFactor = f }
}

// WithNormalize sets vector normalisation.
func WithNormalize(normalize bool) SimilarityOption {
	return func(s *SimilarityConfig) { s.normalize = normalize }
}

// WithTopK sets the default search depth.
func WithTopK(k int) SimilarityOption {
	return func(s *SimilarityConfig) {
		if k > 0 {
			s.topK = k
		}
	}
}

// NewSimilarityConfigWithOptions creates a SimilarityConfig with options.
func NewSimilarityConfigWithOptions(opts ...SimilarityOption) SimilarityConfig {
	s := NewSimilarityConfig()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// EvictionConfig configures the in-memory tier.
type EvictionConfig struct {
	policy   string
	capacity int
}

// NewEvictionConfig creates a new EvictionConfig with defaults.
func NewEvictionConfig() EvictionConfig {
	return EvictionConfig{
		policy:   "ARC",
		capacity: DefaultEvictionCapacity,
	}
}

// Policy returns the replacement algorithm name.
func (e EvictionConfig) Policy() string { return e.policy }

// Capacity returns the per-model tier capacity.
func (e EvictionConfig) Capacity() int { return e.capacity }

// EvictionOption is a functional option for EvictionConfig.
type EvictionOption func(*EvictionConfig)

// WithPolicy sets the replacement algorithm.
func WithPolicy(policy string) EvictionOption {
	return func(e *EvictionConfig) { e.policy = policy }
}

// WithCapacity sets the per-model tier capacity.
func WithCapacity(n int) EvictionOption {
	return func(e *EvictionConfig) {
		if n > 0 {
			e.capacity = n
		}
	}
}

// NewEvictionConfigWithOptions creates an EvictionConfig with options.
func NewEvictionConfigWithOptions(opts ...EvictionOption) EvictionConfig {
	e := NewEvictionConfig()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host           string
	port           int
	dataDir        string
	dbURL          string
	logLevel       string
	logFormat      LogFormat
	embedding      EmbeddingConfig
	similarity     SimilarityConfig
	eviction       EvictionConfig
	modelBlacklist []string
	objectStoreDir string
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".modelcache"
	}
	return filepath.Join(home, ".modelcache")
}

// PrepareDataDir creates the data directory if it does not exist and returns it.
func PrepareDataDir(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dataDir, nil
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		host:       DefaultHost,
		port:       DefaultPort,
		dataDir:    dataDir,
		dbURL:      "sqlite:///" + filepath.Join(dataDir, "modelcache.db"),
		logLevel:   DefaultLogLevel,
		logFormat:  LogFormatPretty,
		embedding:  NewEmbeddingConfig(),
		similarity: NewSimilarityConfig(),
		eviction:   NewEvictionConfig(),
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// Embedding returns the embedding config.
func (c AppConfig) Embedding() EmbeddingConfig { return c.embedding }

// Similarity returns the similarity config.
func (c AppConfig) Similarity() SimilarityConfig { return c.similarity }

// Eviction returns the eviction config.
func (c AppConfig) Eviction() EvictionConfig { return c.eviction }

// ModelBlacklist returns the blocked model scopes.
func (c AppConfig) ModelBlacklist() []string {
	models := make([]string, len(c.modelBlacklist))
	copy(models, c.modelBlacklist)
	return models
}

// ObjectStoreDir returns the object store directory, defaulting under the
// data directory when unset.
func (c AppConfig) ObjectStoreDir() string {
	if c.objectStoreDir != "" {
		return c.objectStoreDir
	}
	return filepath.Join(c.dataDir, DefaultObjectStoreSubdir)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// Validate checks invariants that options alone cannot enforce.
func (c AppConfig) Validate() error {
	if c.similarity.Threshold() < 0 || c.similarity.Threshold() > 1 {
		return fmt.Errorf("similarity threshold %v out of [0,1]", c.similarity.Threshold())
	}
	if c.similarity.ThresholdLong() < 0 || c.similarity.ThresholdLong() > 1 {
		return fmt.Errorf("long similarity threshold %v out of [0,1]", c.similarity.ThresholdLong())
	}
	if c.embedding.Dimension() <= 0 {
		return fmt.Errorf("embedding dimension %d must be positive", c.embedding.Dimension())
	}
	if c.eviction.Capacity() <= 0 {
		return fmt.Errorf("eviction capacity %d must be positive", c.eviction.Capacity())
	}
	return nil
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		c.dataDir = dir
		// Update default DB URL when data dir changes
		if c.dbURL == "" || strings.Contains(c.dbURL, "modelcache.db") {
			c.dbURL = "sqlite:///" + filepath.Join(dir, "modelcache.db")
		}
	}
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithEmbeddingConfig sets the embedding config.
func WithEmbeddingConfig(e EmbeddingConfig) AppConfigOption {
	return func(c *AppConfig) { c.embedding = e }
}

// WithEmbeddingOptions applies options on top of the current embedding config.
func WithEmbeddingOptions(opts ...EmbeddingOption) AppConfigOption {
	return func(c *AppConfig) { c.embedding = c.embedding.Apply(opts...) }
}

// WithSimilarityConfig sets the similarity config.
func WithSimilarityConfig(s SimilarityConfig) AppConfigOption {
	return func(c *AppConfig) { c.similarity = s }
}

// WithEvictionConfig sets the eviction config.
func WithEvictionConfig(e EvictionConfig) AppConfigOption {
	return func(c *AppConfig) { c.eviction = e }
}

// WithModelBlacklist sets the blocked model scopes.
func WithModelBlacklist(models []string) AppConfigOption {
	return func(c *AppConfig) {
		c.modelBlacklist = make([]string, len(models))
		copy(c.modelBlacklist, models)
	}
}

// WithObjectStoreDir sets the object store directory.
func WithObjectStoreDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.objectStoreDir = dir }
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// Sensitive values like API keys are masked.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("embedding_provider", c.embedding.Provider()),
		slog.String("embedding_model", c.embedding.Model()),
		slog.Int("embedding_dimension", c.embedding.Dimension()),
		slog.String("metric", c.similarity.Metric()),
		slog.String("eviction_policy", c.eviction.Policy()),
		slog.Int("eviction_capacity", c.eviction.Capacity()),
		slog.Int("model_blacklist_count", len(c.modelBlacklist)),
	}
}

func (c AppConfig) maskedDBURL() string {
	if c.dbURL == "" {
		return "(default)"
	}
	if len(c.dbURL) >= 7 && c.dbURL[:7] == "sqlite:" {
		return c.dbURL
	}
	return "postgres://***@***"
}

// ParseModelBlacklist parses a comma-separated list of model scopes.
func ParseModelBlacklist(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	models := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			models = append(models, trimmed)
		}
	}
	return models
}

// secondsToDuration converts a fractional second count to a Duration.
func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}
