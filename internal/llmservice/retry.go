package llmservice

import (
	"context"

	"manual-rag/internal/helper"
)

type retryingGenerator struct {
	Generator
	policy helper.RetryPolicy
}

// WithRetry retries failed generations according to policy.
func WithRetry(g Generator, policy helper.RetryPolicy) Generator {
	if policy.Attempts <= 1 && policy.Timeout <= 0 {
		return g
	}
	return &retryingGenerator{Generator: g, policy: policy}
}

func (r *retryingGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	var answer string
	err := helper.Retry(ctx, r.policy, "generate", func(ctx context.Context) error {
		var err error
		answer, err = r.Generator.Generate(ctx, system, prompt)
		return err
	})
	return answer, err
}
