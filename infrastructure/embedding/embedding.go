// Package embedding provides the embedding backends that turn serialised
// prompts into vectors, and the dispatcher that bounds their concurrency.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/codefuse-ai/modelcache/domain/cache"
	"github.com/codefuse-ai/modelcache/internal/config"
)

// Embedder converts texts into embedding vectors.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the fixed vector dimension this embedder produces.
	Dimension() int

	// Close releases backend resources.
	Close() error
}

// Provider names accepted by NewFromConfig.
const (
	ProviderOpenAI = "openai"
	ProviderHugot  = "hugot"
)

// NewFromConfig builds the embedder named by the configuration.
func NewFromConfig(cfg config.EmbeddingConfig) (Embedder, error) {
	switch strings.ToLower(cfg.Provider()) {
	case ProviderOpenAI:
		return NewOpenAIEmbedder(cfg)
	case ProviderHugot:
		return NewHugotEmbedder(cfg.ModelDir(), cfg.Dimension()), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", cache.ErrConfig, cfg.Provider())
	}
}

// validateTexts rejects empty batches and blank texts before they reach a
// backend.
func validateTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts to embed", cache.ErrEmbed)
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: text %d is empty", cache.ErrEmbed, i)
		}
	}
	return nil
}
