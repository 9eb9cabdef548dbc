package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"manual-rag/internal/config"
	"manual-rag/internal/helper"
	"manual-rag/internal/models"
)

// Embedder maps text to vectors. Embed returns one vector per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Model identifies the provider and model, e.g. "gemini/text-embedding-004".
	Model() string
	Close() error
}

// New builds the embedder selected by cfg.Provider, wrapped with the
// configured retry policy.
func New(ctx context.Context, cfg *config.LLMConfig) (Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider": cfg.Provider,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
	}).Msg("Initializing embedder")

	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case config.ProviderGemini:
		e, err = NewGeminiEmbedder(ctx, cfg.Key, cfg.Model, cfg.BatchSize)
	case config.ProviderOpenAI:
		e, err = NewOpenAIEmbedder(cfg.Key, cfg.BaseURL, cfg.Model, cfg.BatchSize)
	case config.ProviderOllama:
		e, err = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.BatchSize)
	case config.ProviderHash:
		e = NewHashEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithRetry(e, helper.RetryPolicy{
		Attempts: cfg.MaxAttempts,
		Backoff:  2 * time.Second,
		Timeout:  time.Duration(cfg.TimeoutSecs) * time.Second,
	}), nil
}

func serviceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrEmbeddingService, op, err)
}

func checkCount(got, want int) error {
	if got != want {
		return fmt.Errorf("%w: got %d embeddings for %d texts", models.ErrEmbeddingService, got, want)
	}
	return nil
}
