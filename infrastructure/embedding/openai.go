package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"

	"github.com/codefuse-ai/modelcache/domain/cache"
	"github.com/codefuse-ai/modelcache/internal/config"
)

// DefaultOpenAIModel is the embedding model used when none is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// errCountMismatch indicates the API returned fewer embedding vectors than
// requested. This is retryable because transient upstream issues (e.g.
// rate-limiting behind a 200 status) can produce partial responses.
var errCountMismatch = errors.New("embedding response count mismatch")

// errUpstreamFailure indicates the API returned HTTP 200 but the response
// body contained an error instead of embedding data. Routing providers like
// OpenRouter do this when all upstream providers fail; retrying is futile.
var errUpstreamFailure = errors.New("upstream provider failure")

// OpenAIEmbedder generates embeddings via the OpenAI embeddings API. Calls
// retry with exponential backoff and run behind a circuit breaker so a dead
// upstream fails fast instead of stacking timeouts.
type OpenAIEmbedder struct {
	client        *openai.Client
	model         string
	dimension     int
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
	breaker       *gobreaker.CircuitBreaker[openai.EmbeddingResponse]
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder from configuration.
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey() == "" {
		return nil, fmt.Errorf("%w: openai embedding provider requires an api key", cache.ErrConfig)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey())
	if cfg.BaseURL() != "" {
		clientConfig.BaseURL = cfg.BaseURL()
	}
	if cfg.Timeout() > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout()}
	}

	model := cfg.Model()
	if model == "" {
		model = DefaultOpenAIModel
	}

	breaker := gobreaker.NewCircuitBreaker[openai.EmbeddingResponse](gobreaker.Settings{
		Name: "openai-embeddings",
	})

	return &OpenAIEmbedder{
		client:        openai.NewClientWithConfig(clientConfig),
		model:         model,
		dimension:     cfg.Dimension(),
		maxRetries:    cfg.MaxRetries(),
		initialDelay:  cfg.InitialDelay(),
		backoffFactor: cfg.BackoffFactor(),
		breaker:       breaker,
	}, nil
}

// Embed generates embeddings for the given texts in a single API call.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	req := openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(e.model),
		Input:      texts,
		Dimensions: e.dimension,
	}

	var resp openai.EmbeddingResponse
	err := e.withRetry(ctx, func() error {
		var callErr error
		resp, callErr = e.breaker.Execute(func() (openai.EmbeddingResponse, error) {
			return e.client.CreateEmbeddings(ctx, req)
		})
		if callErr != nil {
			return callErr
		}
		// Routing providers can return HTTP 200 with an error body that the
		// client parses as an empty response. Zero data with zero usage and
		// no model means the upstream is down, not transiently overloaded.
		if len(resp.Data) == 0 && string(resp.Model) == "" && resp.Usage.TotalTokens == 0 {
			return fmt.Errorf("%w: HTTP 200 with no embedding data, no model, and zero usage", errUpstreamFailure)
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d texts", errCountMismatch, len(resp.Data), len(texts))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrEmbed, err)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

// Dimension returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

// Close is a no-op for the OpenAI embedder.
func (e *OpenAIEmbedder) Close() error { return nil }

// withRetry executes the function with exponential backoff retry.
func (e *OpenAIEmbedder) withRetry(ctx context.Context, fn func() error) error {
	delay := e.initialDelay
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !e.isRetryable(lastErr) {
			return lastErr
		}

		if attempt < e.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * e.backoffFactor)
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable determines if an error should be retried.
func (e *OpenAIEmbedder) isRetryable(err error) bool {
	// Partial embedding responses are retryable; upstream providers can
	// return 200 with missing data under transient load.
	if errors.Is(err, errCountMismatch) {
		return true
	}

	// An open breaker means recent calls already failed; do not burn the
	// retry budget waiting for it to half-open.
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return true
	}

	return false
}
