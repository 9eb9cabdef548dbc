package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"manual-rag/internal/embedding"
	"manual-rag/internal/llmservice"
	"manual-rag/internal/models"
	"manual-rag/internal/vectorstore"
)

type Stage string

const (
	StageReceived   Stage = "RECEIVED"
	StageEmbedding  Stage = "EMBEDDING"
	StageRetrieving Stage = "RETRIEVING"
	StageGenerating Stage = "GENERATING"
	StageDone       Stage = "DONE"
	StageFailed     Stage = "FAILED"
)

type Option func(*Engine)

func WithTopK(k int) Option {
	return func(e *Engine) { e.topK = k }
}

// WithOnStage registers a hook called on every stage transition of Answer.
func WithOnStage(fn func(Stage)) Option {
	return func(e *Engine) { e.onStage = fn }
}

// Engine answers questions from the chunks stored in a vector store.
// It is stateless between calls.
type Engine struct {
	embedder  embedding.Embedder
	store     vectorstore.Store
	generator llmservice.Generator
	topK      int
	onStage   func(Stage)
}

func NewEngine(embedder embedding.Embedder, store vectorstore.Store, generator llmservice.Generator, opts ...Option) (*Engine, error) {
	e := &Engine{
		embedder:  embedder,
		store:     store,
		generator: generator,
		topK:      models.DefaultTopK,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", models.ErrInvalidConfig, e.topK)
	}
	return e, nil
}

func (e *Engine) TopK() int { return e.topK }

// Answer embeds the question, retrieves the top-k chunks, and asks the
// generator. Either a full answer with its sources or an error is returned.
func (e *Engine) Answer(ctx context.Context, question string) (answer *models.Answer, err error) {
	e.stage(StageReceived)
	defer func() {
		if err != nil {
			e.stage(StageFailed)
			log.Error().Err(err).Str("question", question).Msg("Failed to answer question")
		}
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, models.ErrEmptyQuestion
	}

	e.stage(StageEmbedding)
	vector, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	e.stage(StageRetrieving)
	sources, err := e.store.Query(ctx, vector, e.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	log.Debug().Int("sources", len(sources)).Msg("Retrieved chunks")

	e.stage(StageGenerating)
	content, err := e.generator.Generate(ctx, models.SystemInstruction, BuildPrompt(question, sources))
	if err != nil {
		return nil, err
	}

	e.stage(StageDone)
	return &models.Answer{
		Question: question,
		Content:  strings.TrimSpace(content),
		Sources:  sources,
	}, nil
}

func (e *Engine) stage(s Stage) {
	log.Debug().Str("stage", string(s)).Msg("Query stage")
	if e.onStage != nil {
		e.onStage(s)
	}
}

// BuildContext joins the retrieved chunks, labelled with their 1-based page.
func BuildContext(sources []models.Result) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = fmt.Sprintf(models.ContextChunkTemplate, i+1, s.PageNumber+1, s.Content)
	}
	return strings.Join(parts, models.ContextSeparator)
}

func BuildPrompt(question string, sources []models.Result) string {
	return fmt.Sprintf(models.QAPromptTemplate, BuildContext(sources), question)
}
