package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"manual-rag/internal/models"
)

// geminiMaxBatch is the request limit of batchEmbedContents.
const geminiMaxBatch = 100

// GeminiEmbedder embeds with the Gemini API. Documents and queries use the
// matching retrieval task types.
type GeminiEmbedder struct {
	client    *genai.Client
	docModel  *genai.EmbeddingModel
	queryMdl  *genai.EmbeddingModel
	model     string
	batchSize int
}

func NewGeminiEmbedder(ctx context.Context, apiKey, model string, batchSize int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini API key is empty", models.ErrInvalidConfig)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	docModel := client.EmbeddingModel(model)
	docModel.TaskType = genai.TaskTypeRetrievalDocument
	queryModel := client.EmbeddingModel(model)
	queryModel.TaskType = genai.TaskTypeRetrievalQuery

	if batchSize <= 0 || batchSize > geminiMaxBatch {
		batchSize = geminiMaxBatch
	}
	return &GeminiEmbedder{
		client:    client,
		docModel:  docModel,
		queryMdl:  queryModel,
		model:     model,
		batchSize: batchSize,
	}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := e.docModel.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}
		resp, err := e.docModel.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, serviceError("batch embed", err)
		}
		if err := checkCount(len(resp.Embeddings), end-start); err != nil {
			return nil, err
		}
		for _, emb := range resp.Embeddings {
			vectors = append(vectors, toFloat32(emb.Values))
		}
	}
	return vectors, nil
}

func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.queryMdl.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, serviceError("embed query", err)
	}
	if resp.Embedding == nil {
		return nil, serviceError("embed query", errors.New("empty embedding in response"))
	}
	return toFloat32(resp.Embedding.Values), nil
}

func (e *GeminiEmbedder) Model() string {
	return "gemini/" + e.model
}

func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}

func toFloat32(values []float32) []float32 {
	result := make([]float32, len(values))
	copy(result, values)
	return result
}
