package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"manual-rag/internal/config"
	"manual-rag/internal/helper"
	"manual-rag/internal/models"
)

// Generator produces an answer from a system instruction and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Model() string
	Close() error
}

// New builds the generator selected by cfg.Provider.
func New(ctx context.Context, cfg *config.LLMConfig) (Generator, error) {
	log.Debug().Interface("config", map[string]string{
		"provider": cfg.Provider,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
	}).Msg("Initializing generator")

	var (
		g   Generator
		err error
	)
	switch cfg.Provider {
	case config.ProviderGemini:
		g, err = NewGeminiGenerator(ctx, cfg.Key, cfg.Model, cfg.Temperature)
	case config.ProviderOpenAI:
		var llm *openai.LLM
		llm, err = openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		)
		if err == nil {
			g = NewLangchainGenerator(llm, "openai/"+cfg.Model, cfg.Temperature)
		}
	case config.ProviderOllama:
		var llm *ollama.LLM
		llm, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err == nil {
			g = NewLangchainGenerator(llm, "ollama/"+cfg.Model, cfg.Temperature)
		}
	default:
		return nil, fmt.Errorf("%w: unknown inference provider %q", models.ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}
	return WithRetry(g, helper.RetryPolicy{
		Attempts: cfg.MaxAttempts,
		Backoff:  2 * time.Second,
		Timeout:  time.Duration(cfg.TimeoutSecs) * time.Second,
	}), nil
}

// LangchainGenerator calls any langchaingo chat model.
type LangchainGenerator struct {
	llm         llms.Model
	model       string
	temperature float64
}

func NewLangchainGenerator(llm llms.Model, model string, temperature float64) *LangchainGenerator {
	return &LangchainGenerator{llm: llm, model: model, temperature: temperature}
}

func (g *LangchainGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := g.llm.GenerateContent(ctx, messages, llms.WithTemperature(g.temperature))
	if err != nil {
		return "", generationError(err)
	}
	if len(resp.Choices) == 0 {
		return "", generationError(errors.New("no choices in response"))
	}
	return resp.Choices[0].Content, nil
}

func (g *LangchainGenerator) Model() string {
	return g.model
}

func (g *LangchainGenerator) Close() error {
	return nil
}

func generationError(err error) error {
	return fmt.Errorf("%w: %w", models.ErrGeneration, err)
}
