package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	// Clear any existing env vars that might interfere
	clearEnvVars(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	// Check defaults
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "", cfg.DataDir)
	assert.Equal(t, "", cfg.DBURL)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Equal(t, "", cfg.ModelBlacklist)

	// Nested struct defaults
	assert.Equal(t, "hugot", cfg.Embedding.Provider)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 2, cfg.Embedding.Workers)
	assert.Equal(t, 64, cfg.Embedding.QueueSize)
	assert.Equal(t, "last_content_with_role", cfg.Embedding.PreProcess)
	assert.Equal(t, "COSINE", cfg.Similarity.Metric)
	assert.Equal(t, 0.9, cfg.Similarity.Threshold)
	assert.Equal(t, 0.9, cfg.Similarity.ThresholdLong)
	assert.Equal(t, 1.0, cfg.Similarity.CacheFactor)
	assert.False(t, cfg.Similarity.Normalize)
	assert.Equal(t, 1, cfg.Similarity.TopK)
	assert.Equal(t, "ARC", cfg.Eviction.Policy)
	assert.Equal(t, 10000, cfg.Eviction.Capacity)
}

func TestEnvDefaults_MatchConfigDefaults(t *testing.T) {
	// This test verifies that struct tag defaults in env.go match the constants in config.go.
	// Go's struct tag defaults must be literals, so this test ensures they stay in sync.
	clearEnvVars(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Host, "Host struct tag default should match DefaultHost")
	assert.Equal(t, DefaultPort, cfg.Port, "Port struct tag default should match DefaultPort")
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel, "LogLevel struct tag default should match DefaultLogLevel")
	assert.Equal(t, DefaultEmbeddingDimension, cfg.Embedding.Dimension, "Dimension struct tag default should match DefaultEmbeddingDimension")
	assert.Equal(t, DefaultEmbeddingWorkers, cfg.Embedding.Workers, "Workers struct tag default should match DefaultEmbeddingWorkers")
	assert.Equal(t, DefaultEmbeddingQueueSize, cfg.Embedding.QueueSize, "QueueSize struct tag default should match DefaultEmbeddingQueueSize")
	assert.Equal(t, DefaultEmbeddingTimeout.Seconds(), cfg.Embedding.Timeout, "Timeout struct tag default should match DefaultEmbeddingTimeout")
	assert.Equal(t, DefaultEmbeddingMaxRetries, cfg.Embedding.MaxRetries, "MaxRetries struct tag default should match DefaultEmbeddingMaxRetries")
	assert.Equal(t, DefaultEmbeddingDelay.Seconds(), cfg.Embedding.InitialDelay, "InitialDelay struct tag default should match DefaultEmbeddingDelay")
	assert.Equal(t, DefaultEmbeddingBackoff, cfg.Embedding.BackoffFactor, "BackoffFactor struct tag default should match DefaultEmbeddingBackoff")
	assert.Equal(t, DefaultSimilarityThreshold, cfg.Similarity.Threshold, "Threshold struct tag default should match DefaultSimilarityThreshold")
	assert.Equal(t, DefaultCacheFactor, cfg.Similarity.CacheFactor, "CacheFactor struct tag default should match DefaultCacheFactor")
	assert.Equal(t, DefaultTopK, cfg.Similarity.TopK, "TopK struct tag default should match DefaultTopK")
	assert.Equal(t, DefaultEvictionCapacity, cfg.Eviction.Capacity, "Capacity struct tag default should match DefaultEvictionCapacity")
}

func TestLoadFromEnv_OverrideValues(t *testing.T) {
	clearEnvVars(t)

	// Set environment variables
	t.Setenv("MODELCACHE_HOST", "127.0.0.1")
	t.Setenv("MODELCACHE_PORT", "9000")
	t.Setenv("MODELCACHE_DATA_DIR", "/custom/data")
	t.Setenv("MODELCACHE_DB_URL", "postgres://localhost/modelcache")
	t.Setenv("MODELCACHE_LOG_LEVEL", "DEBUG")
	t.Setenv("MODELCACHE_LOG_FORMAT", "json")
	t.Setenv("MODELCACHE_MODEL_BLACKLIST", "m1,m2")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "/custom/data", cfg.DataDir)
	assert.Equal(t, "postgres://localhost/modelcache", cfg.DBURL)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "m1,m2", cfg.ModelBlacklist)
}

func TestLoadFromEnv_Embedding(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("MODELCACHE_EMBEDDING_PROVIDER", "openai")
	t.Setenv("MODELCACHE_EMBEDDING_BASE_URL", "https://api.openai.com/v1")
	t.Setenv("MODELCACHE_EMBEDDING_MODEL", "text-embedding-3-small")
	t.Setenv("MODELCACHE_EMBEDDING_API_KEY", "sk-test-key")
	t.Setenv("MODELCACHE_EMBEDDING_DIMENSION", "1536")
	t.Setenv("MODELCACHE_EMBEDDING_WORKERS", "5")
	t.Setenv("MODELCACHE_EMBEDDING_TIMEOUT", "120")
	t.Setenv("MODELCACHE_EMBEDDING_MAX_RETRIES", "3")
	t.Setenv("MODELCACHE_EMBEDDING_INITIAL_DELAY", "1.5")
	t.Setenv("MODELCACHE_EMBEDDING_PRE_PROCESS", "multi_splicing")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedding.BaseURL)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, "sk-test-key", cfg.Embedding.APIKey)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, 5, cfg.Embedding.Workers)
	assert.Equal(t, 120.0, cfg.Embedding.Timeout)
	assert.Equal(t, 3, cfg.Embedding.MaxRetries)
	assert.Equal(t, 1.5, cfg.Embedding.InitialDelay)
	assert.Equal(t, "multi_splicing", cfg.Embedding.PreProcess)
}

func TestToAppConfig(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("MODELCACHE_PORT", "9000")
	t.Setenv("MODELCACHE_SIMILARITY_METRIC", "L2")
	t.Setenv("MODELCACHE_SIMILARITY_THRESHOLD", "0.95")
	t.Setenv("MODELCACHE_EVICTION_POLICY", "WTINYLFU")
	t.Setenv("MODELCACHE_EVICTION_CAPACITY", "500")
	t.Setenv("MODELCACHE_MODEL_BLACKLIST", "m1, m2")

	envCfg, err := LoadFromEnv()
	require.NoError(t, err)

	cfg := envCfg.ToAppConfig()
	assert.Equal(t, 9000, cfg.Port())
	assert.Equal(t, "L2", cfg.Similarity().Metric())
	assert.Equal(t, 0.95, cfg.Similarity().Threshold())
	assert.Equal(t, "WTINYLFU", cfg.Eviction().Policy())
	assert.Equal(t, 500, cfg.Eviction().Capacity())
	assert.Equal(t, []string{"m1", "m2"}, cfg.ModelBlacklist())
	require.NoError(t, cfg.Validate())
}

func TestToAppConfig_EmbeddingDurations(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("MODELCACHE_EMBEDDING_TIMEOUT", "1.5")
	t.Setenv("MODELCACHE_EMBEDDING_INITIAL_DELAY", "0.5")

	envCfg, err := LoadFromEnv()
	require.NoError(t, err)

	cfg := envCfg.ToAppConfig()
	assert.Equal(t, 1500*time.Millisecond, cfg.Embedding().Timeout())
	assert.Equal(t, 500*time.Millisecond, cfg.Embedding().InitialDelay())
}

func TestLoadConfig_DotEnv(t *testing.T) {
	clearEnvVars(t)

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "MODELCACHE_PORT=7000\nMODELCACHE_SIMILARITY_THRESHOLD=0.85\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o600))

	cfg, err := LoadConfig(envPath)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port())
	assert.Equal(t, 0.85, cfg.Similarity().Threshold())
}

func TestLoadConfig_MissingDotEnvIsNotAnError(t *testing.T) {
	clearEnvVars(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.env"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port())
}

func TestLoadConfig_InvalidThreshold(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("MODELCACHE_SIMILARITY_THRESHOLD", "1.5")

	_, err := LoadConfig("")
	require.Error(t, err)
}

// clearEnvVars unsets every MODELCACHE_ variable for the duration of a test.
func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"MODELCACHE_HOST", "MODELCACHE_PORT", "MODELCACHE_DATA_DIR",
		"MODELCACHE_DB_URL", "MODELCACHE_LOG_LEVEL", "MODELCACHE_LOG_FORMAT",
		"MODELCACHE_MODEL_BLACKLIST", "MODELCACHE_OBJECT_STORE_DIR",
		"MODELCACHE_EMBEDDING_PROVIDER", "MODELCACHE_EMBEDDING_MODEL",
		"MODELCACHE_EMBEDDING_BASE_URL", "MODELCACHE_EMBEDDING_API_KEY",
		"MODELCACHE_EMBEDDING_DIMENSION", "MODELCACHE_EMBEDDING_WORKERS",
		"MODELCACHE_EMBEDDING_QUEUE_SIZE", "MODELCACHE_EMBEDDING_MODEL_DIR",
		"MODELCACHE_EMBEDDING_PRE_PROCESS", "MODELCACHE_EMBEDDING_TIMEOUT",
		"MODELCACHE_EMBEDDING_MAX_RETRIES", "MODELCACHE_EMBEDDING_INITIAL_DELAY",
		"MODELCACHE_EMBEDDING_BACKOFF_FACTOR",
		"MODELCACHE_SIMILARITY_METRIC", "MODELCACHE_SIMILARITY_THRESHOLD",
		"MODELCACHE_SIMILARITY_THRESHOLD_LONG", "MODELCACHE_SIMILARITY_CACHE_FACTOR",
		"MODELCACHE_SIMILARITY_NORMALIZE", "MODELCACHE_SIMILARITY_TOP_K",
		"MODELCACHE_EVICTION_POLICY", "MODELCACHE_EVICTION_CAPACITY",
	}
	for _, v := range vars {
		t.Setenv(v, "")
		require.NoError(t, os.Unsetenv(v))
	}
}
