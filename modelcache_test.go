package modelcache_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modelcache "github.com/codefuse-ai/modelcache"
	"github.com/codefuse-ai/modelcache/application/service"
	"github.com/codefuse-ai/modelcache/domain/cache"
	"github.com/codefuse-ai/modelcache/infrastructure/vector"
	"github.com/codefuse-ai/modelcache/internal/config"
)

const testDimension = 8

// stubEmbedder maps each distinct text onto its own basis vector.
type stubEmbedder struct {
	mu      sync.Mutex
	next    int
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vectors == nil {
		s.vectors = make(map[string][]float32)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := s.vectors[text]
		if !ok {
			v = make([]float32, testDimension)
			v[s.next%testDimension] = 1
			s.next++
			s.vectors[text] = v
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return testDimension }
func (s *stubEmbedder) Close() error   { return nil }

func newTestClient(t *testing.T, opts ...modelcache.Option) *modelcache.Client {
	t.Helper()
	dir := t.TempDir()

	base := []modelcache.Option{
		modelcache.WithDataDir(dir),
		modelcache.WithSQLite(filepath.Join(dir, "data.db")),
		modelcache.WithEmbedder(&stubEmbedder{}),
		modelcache.WithVectorStore(vector.NewMemoryStore(cache.MetricCosine, testDimension)),
		modelcache.WithEvictionConfig(config.NewEvictionConfigWithOptions(config.WithCapacity(4))),
	}
	client, err := modelcache.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_EndToEnd(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	register := client.Cache.Register(ctx, "m1")
	require.Equal(t, service.CodeSuccess, register.Code)
	assert.Equal(t, "create_success", register.Response)

	insert := client.Cache.Insert(ctx, "m1", []service.InsertPair{
		{Prompt: cache.NewTextPrompt("what is a goroutine"), Answer: "a lightweight thread"},
	})
	require.Equal(t, service.CodeSuccess, insert.Code)
	require.Len(t, insert.IDs, 1)

	query := client.Cache.Query(ctx, "m1", cache.NewTextPrompt("what is a goroutine"))
	assert.Equal(t, service.CodeSuccess, query.Code)
	assert.True(t, query.Hit)
	assert.Equal(t, "a lightweight thread", query.Answer)

	require.NoError(t, client.Flush(ctx))
}

func TestClient_QueryMiss(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	client.Cache.Insert(ctx, "m1", []service.InsertPair{
		{Prompt: cache.NewTextPrompt("hello"), Answer: "hi"},
	})

	query := client.Cache.Query(ctx, "m1", cache.NewTextPrompt("unrelated bananas"))
	assert.Equal(t, service.CodeSuccess, query.Code)
	assert.False(t, query.Hit)
	assert.Empty(t, query.Answer)
}

func TestClient_Blacklist(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, modelcache.WithModelBlacklist("blocked"))

	query := client.Cache.Query(ctx, "blocked", cache.NewTextPrompt("hello"))
	assert.Equal(t, service.CodeModelBlacklisted, query.Code)
}

func TestClient_DoubleClose(t *testing.T) {
	client := newTestClient(t)

	require.NoError(t, client.Close())
	assert.True(t, errors.Is(client.Close(), modelcache.ErrClientClosed))
}

func TestClient_RejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	_, err := modelcache.New(
		modelcache.WithDataDir(dir),
		modelcache.WithSQLite(filepath.Join(dir, "data.db")),
		modelcache.WithEmbedder(&stubEmbedder{}),
		modelcache.WithSimilarityConfig(config.NewSimilarityConfigWithOptions(config.WithThreshold(1.5))),
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cache.ErrConfig))
}
