package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/codefuse-ai/modelcache/domain/cache"
	"github.com/codefuse-ai/modelcache/internal/config"
)

// job is one embedding request in flight. The result channel is buffered so
// a worker never blocks on a caller that gave up.
type job struct {
	id     string
	ctx    context.Context
	texts  []string
	result chan jobResult
}

type jobResult struct {
	vectors [][]float32
	err     error
}

// Dispatcher bounds embedding concurrency with a fixed worker pool over a
// bounded queue. Submit blocks while the queue is full, which backpressures
// API handlers instead of stacking unbounded goroutines on the backend.
type Dispatcher struct {
	embedder Embedder
	queue    chan job
	group    *errgroup.Group
	logger   *slog.Logger

	mu        sync.Mutex
	closed    bool
	producers sync.WaitGroup
}

// NewDispatcher starts workers for the given embedder. Worker count and
// queue bound come from the embedding configuration.
func NewDispatcher(embedder Embedder, cfg config.EmbeddingConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	workers := cfg.Workers()
	if workers <= 0 {
		workers = config.DefaultEmbeddingWorkers
	}
	queueSize := cfg.QueueSize()
	if queueSize <= 0 {
		queueSize = config.DefaultEmbeddingQueueSize
	}

	d := &Dispatcher{
		embedder: embedder,
		queue:    make(chan job, queueSize),
		group:    &errgroup.Group{},
		logger:   logger,
	}

	for i := 0; i < workers; i++ {
		d.group.Go(d.work)
	}
	return d
}

func (d *Dispatcher) work() error {
	for j := range d.queue {
		if err := j.ctx.Err(); err != nil {
			j.result <- jobResult{err: err}
			continue
		}

		started := time.Now()
		vectors, err := d.embedder.Embed(j.ctx, j.texts)
		if err != nil {
			d.logger.Warn("embedding job failed", "job", j.id, "texts", len(j.texts), "error", err)
		} else {
			d.logger.Debug("embedding job done", "job", j.id, "texts", len(j.texts), "duration", time.Since(started))
		}
		j.result <- jobResult{vectors: vectors, err: err}
	}
	return nil
}

// Embed queues the texts and waits for a worker to embed them. It blocks
// while the queue is full until either space frees up or the context ends.
func (d *Dispatcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	// Register as a producer before releasing the lock; Close waits for
	// producers before closing the queue, so the send below can never hit
	// a closed channel.
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: embedding dispatcher is stopped", cache.ErrEmbed)
	}
	d.producers.Add(1)
	d.mu.Unlock()
	defer d.producers.Done()

	j := job{
		id:     uuid.NewString(),
		ctx:    ctx,
		texts:  texts,
		result: make(chan jobResult, 1),
	}

	select {
	case d.queue <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-j.result:
		return res.vectors, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dimension returns the backend's embedding dimension.
func (d *Dispatcher) Dimension() int { return d.embedder.Dimension() }

// Close stops accepting work, waits for in-flight jobs, and closes the
// backend.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.producers.Wait()
	close(d.queue)
	_ = d.group.Wait()
	return d.embedder.Close()
}

var _ Embedder = (*Dispatcher)(nil)
