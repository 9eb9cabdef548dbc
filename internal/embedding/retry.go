package embedding

import (
	"context"

	"manual-rag/internal/helper"
)

type retryingEmbedder struct {
	Embedder
	policy helper.RetryPolicy
}

// WithRetry retries failed calls of e according to policy.
func WithRetry(e Embedder, policy helper.RetryPolicy) Embedder {
	if policy.Attempts <= 1 && policy.Timeout <= 0 {
		return e
	}
	return &retryingEmbedder{Embedder: e, policy: policy}
}

func (r *retryingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := helper.Retry(ctx, r.policy, "embed", func(ctx context.Context) error {
		var err error
		vectors, err = r.Embedder.Embed(ctx, texts)
		return err
	})
	return vectors, err
}

func (r *retryingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := helper.Retry(ctx, r.policy, "embed query", func(ctx context.Context) error {
		var err error
		vector, err = r.Embedder.EmbedQuery(ctx, text)
		return err
	})
	return vector, err
}
