package embedding

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangchainEmbedder adapts a langchaingo embedder (OpenAI-compatible or Ollama).
type LangchainEmbedder struct {
	embedder *embeddings.EmbedderImpl
	model    string
}

// NewOpenAIEmbedder works with any OpenAI-compatible endpoint, e.g. OpenRouter.
func NewOpenAIEmbedder(apiKey, baseURL, embeddingModel string, batchSize int) (*LangchainEmbedder, error) {
	llm, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(strings.TrimPrefix(apiKey, "Bearer ")),
		openai.WithEmbeddingModel(embeddingModel),
	)
	if err != nil {
		return nil, err
	}
	return newLangchainEmbedder(llm, "openai/"+embeddingModel, batchSize)
}

// new ollama embedder
func NewOllamaEmbedder(serverURL, model string, batchSize int) (*LangchainEmbedder, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return newLangchainEmbedder(llm, "ollama/"+model, batchSize)
}

func newLangchainEmbedder(client embeddings.EmbedderClient, model string, batchSize int) (*LangchainEmbedder, error) {
	opts := []embeddings.Option{}
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, err
	}
	return &LangchainEmbedder{embedder: embedder, model: model}, nil
}

func (e *LangchainEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, serviceError("embed documents", err)
	}
	if err := checkCount(len(vectors), len(texts)); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *LangchainEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, serviceError("embed query", err)
	}
	return vector, nil
}

func (e *LangchainEmbedder) Model() string {
	return e.model
}

func (e *LangchainEmbedder) Close() error {
	return nil
}
