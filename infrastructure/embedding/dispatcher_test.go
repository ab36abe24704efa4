package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefuse-ai/modelcache/domain/cache"
	"github.com/codefuse-ai/modelcache/internal/config"
)

// stubEmbedder returns a fixed-dimension vector derived from each text's
// length, optionally blocking until released.
type stubEmbedder struct {
	dimension int
	block     chan struct{}
	calls     atomic.Int64
	fail      error
	mu        sync.Mutex
	closed    bool
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.fail != nil {
		return nil, s.fail
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, s.dimension)
		for j := range v {
			v[j] = float32(len(text))
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (s *stubEmbedder) Dimension() int { return s.dimension }

func (s *stubEmbedder) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func newTestDispatcher(t *testing.T, stub *stubEmbedder) *Dispatcher {
	t.Helper()
	d := NewDispatcher(stub, config.NewEmbeddingConfig(), nil)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDispatcher_EmbedsThroughWorkers(t *testing.T) {
	stub := &stubEmbedder{dimension: 4}
	d := newTestDispatcher(t, stub)

	vectors, err := d.Embed(context.Background(), []string{"ab", "cdef"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{2, 2, 2, 2}, vectors[0])
	assert.Equal(t, []float32{4, 4, 4, 4}, vectors[1])
	assert.Equal(t, 4, d.Dimension())
}

func TestDispatcher_RejectsEmptyText(t *testing.T) {
	stub := &stubEmbedder{dimension: 4}
	d := newTestDispatcher(t, stub)

	_, err := d.Embed(context.Background(), []string{"ok", "   "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, cache.ErrEmbed))
	assert.Equal(t, int64(0), stub.calls.Load())

	_, err = d.Embed(context.Background(), nil)
	assert.True(t, errors.Is(err, cache.ErrEmbed))
}

func TestDispatcher_PropagatesBackendError(t *testing.T) {
	stub := &stubEmbedder{dimension: 4, fail: fmt.Errorf("%w: backend down", cache.ErrEmbed)}
	d := newTestDispatcher(t, stub)

	_, err := d.Embed(context.Background(), []string{"x"})
	assert.True(t, errors.Is(err, cache.ErrEmbed))
}

func TestDispatcher_ConcurrentSubmissions(t *testing.T) {
	stub := &stubEmbedder{dimension: 2}
	d := newTestDispatcher(t, stub)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			vectors, err := d.Embed(context.Background(), []string{fmt.Sprintf("text-%d", n)})
			assert.NoError(t, err)
			assert.Len(t, vectors, 1)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(20), stub.calls.Load())
}

func TestDispatcher_CancelledContext(t *testing.T) {
	stub := &stubEmbedder{dimension: 2, block: make(chan struct{})}
	defer close(stub.block)
	d := newTestDispatcher(t, stub)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Embed(ctx, []string{"slow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcher_CloseStopsNewWork(t *testing.T) {
	stub := &stubEmbedder{dimension: 2}
	d := NewDispatcher(stub, config.NewEmbeddingConfig(), nil)

	require.NoError(t, d.Close())
	assert.True(t, stub.closed)

	_, err := d.Embed(context.Background(), []string{"x"})
	assert.True(t, errors.Is(err, cache.ErrEmbed))

	// Closing twice is safe.
	require.NoError(t, d.Close())
}

func TestNewFromConfig(t *testing.T) {
	_, err := NewFromConfig(config.NewEmbeddingConfig().Apply(config.WithProvider("nope")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, cache.ErrConfig))

	_, err = NewFromConfig(config.NewEmbeddingConfig().Apply(config.WithProvider("openai")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, cache.ErrConfig), "openai without api key must be a config error")

	embedder, err := NewFromConfig(config.NewEmbeddingConfig().
		Apply(config.WithProvider("hugot"), config.WithModelDir(t.TempDir()), config.WithDimension(16)))
	require.NoError(t, err)
	assert.Equal(t, 16, embedder.Dimension())
}
