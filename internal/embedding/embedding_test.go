package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"manual-rag/internal/config"
	"manual-rag/internal/helper"
	"manual-rag/internal/models"
)

func TestHashEmbedderDeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	texts := []string{"The maximum number of local I/O modules is 8.", "Digital inputs are wired to the terminal block."}
	first, err := e.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	second, err := e.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(first) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(first), len(texts))
	}

	for i := range first {
		if len(first[i]) != 64 {
			t.Errorf("vector %d has %d dims, want 64", i, len(first[i]))
		}
		var norm float64
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("vector %d differs between calls at %d", i, j)
			}
			norm += float64(first[i][j]) * float64(first[i][j])
		}
		if math.Abs(norm-1) > 1e-4 {
			t.Errorf("vector %d norm = %f, want 1", i, norm)
		}
	}

	query, err := e.EmbedQuery(ctx, texts[0])
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	for j := range query {
		if query[j] != first[0][j] {
			t.Fatal("query and document embeddings of the same text differ")
		}
	}
}

func TestHashEmbedderEmptyText(t *testing.T) {
	vec, err := NewHashEmbedder(8).EmbedQuery(context.Background(), "  ... ")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if vec[0] != 1 {
		t.Errorf("empty text vector = %v, want unit vector on axis 0", vec)
	}
}

func TestHashEmbedderLexicalSimilarity(t *testing.T) {
	e := NewHashEmbedder(512)
	ctx := context.Background()
	docs, _ := e.Embed(ctx, []string{
		"The maximum number of local I/O modules is 8.",
		"Digital inputs are wired to the terminal block using 24 V DC.",
	})
	q, _ := e.EmbedQuery(ctx, "maximum number of local I/O modules")

	if dot(q, docs[0]) <= dot(q, docs[1]) {
		t.Errorf("expected the expansion sentence to score higher: %f vs %f", dot(q, docs[0]), dot(q, docs[1]))
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), &config.LLMConfig{Provider: "nope"})
	if !errors.Is(err, models.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestNewHashProvider(t *testing.T) {
	e, err := New(context.Background(), &config.LLMConfig{Provider: config.ProviderHash, Dimensions: 32, MaxAttempts: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()
	if e.Model() != "hash/32" {
		t.Errorf("Model() = %q, want hash/32", e.Model())
	}
}

type flakyEmbedder struct {
	HashEmbedder
	failures int
	calls    int
}

func (f *flakyEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, serviceError("embed query", errors.New("unavailable"))
	}
	return f.HashEmbedder.EmbedQuery(ctx, text)
}

func TestWithRetry(t *testing.T) {
	flaky := &flakyEmbedder{HashEmbedder: HashEmbedder{dims: 8}, failures: 1}
	e := WithRetry(flaky, helper.RetryPolicy{Attempts: 2})

	if _, err := e.EmbedQuery(context.Background(), "cpu"); err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if flaky.calls != 2 {
		t.Errorf("calls = %d, want 2", flaky.calls)
	}

	flaky = &flakyEmbedder{HashEmbedder: HashEmbedder{dims: 8}, failures: 5}
	e = WithRetry(flaky, helper.RetryPolicy{Attempts: 2})
	_, err := e.EmbedQuery(context.Background(), "cpu")
	if !errors.Is(err, models.ErrEmbeddingService) {
		t.Fatalf("err = %v, want ErrEmbeddingService", err)
	}
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
