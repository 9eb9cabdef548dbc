package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"manual-rag/internal/chromemdb"
	"manual-rag/internal/embedding"
	"manual-rag/internal/models"
)

type fakeGenerator struct {
	system string
	prompt string
	reply  string
	err    error
	calls  int
}

func (g *fakeGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	g.calls++
	g.system, g.prompt = system, prompt
	return g.reply, g.err
}

func (g *fakeGenerator) Model() string { return "fake" }
func (g *fakeGenerator) Close() error  { return nil }

type failingEmbedder struct {
	*embedding.HashEmbedder
}

func (failingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, models.ErrEmbeddingService
}

func seededStore(t *testing.T, e embedding.Embedder, texts []string) *chromemdb.VectorDBManager {
	t.Helper()
	store, err := chromemdb.NewVectorDBManager("", "manual", false)
	if err != nil {
		t.Fatalf("NewVectorDBManager: %v", err)
	}
	vectors, err := e.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	records := make([]models.Record, len(texts))
	for i, text := range texts {
		chunk := models.Chunk{Content: text, PageNumber: i, ChunkIndex: i}
		records[i] = models.Record{
			ID:       chunk.Content,
			Vector:   vectors[i],
			Content:  text,
			Metadata: models.ChunkMetadata(chunk, "manual.pdf", i),
		}
	}
	if err := store.Upsert(context.Background(), records); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return store
}

var pages = []string{
	"This manual describes the programmable controller.",
	"The maximum number of local I/O modules is 8.",
	"Digital inputs are wired to the terminal block.",
}

func TestAnswer(t *testing.T) {
	embedder := embedding.NewHashEmbedder(256)
	store := seededStore(t, embedder, pages)
	gen := &fakeGenerator{reply: "  Up to 8 local I/O modules.\n"}

	var stages []Stage
	engine, err := NewEngine(embedder, store, gen, WithTopK(2), WithOnStage(func(s Stage) { stages = append(stages, s) }))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	answer, err := engine.Answer(context.Background(), "What is the maximum number of local I/O modules?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer.Content != "Up to 8 local I/O modules." {
		t.Errorf("content = %q", answer.Content)
	}
	if len(answer.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(answer.Sources))
	}
	if answer.Sources[0].PageNumber != 1 {
		t.Errorf("top source page = %d, want 1", answer.Sources[0].PageNumber)
	}
	if gen.system != models.SystemInstruction {
		t.Error("system instruction not passed to the generator")
	}
	if !strings.Contains(gen.prompt, "[Source 1, page 2]\nThe maximum number of local I/O modules is 8.") {
		t.Errorf("prompt missing labelled context:\n%s", gen.prompt)
	}
	if !strings.HasSuffix(gen.prompt, "Question: What is the maximum number of local I/O modules?\nHelpful answer:") {
		t.Errorf("prompt missing question:\n%s", gen.prompt)
	}

	want := []Stage{StageReceived, StageEmbedding, StageRetrieving, StageGenerating, StageDone}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage %d = %s, want %s", i, stages[i], want[i])
		}
	}
}

func TestAnswerErrors(t *testing.T) {
	hash := embedding.NewHashEmbedder(64)

	tests := []struct {
		name     string
		embedder embedding.Embedder
		texts    []string
		gen      *fakeGenerator
		question string
		want     error
	}{
		{name: "empty question", embedder: hash, texts: pages, gen: &fakeGenerator{}, question: "   ", want: models.ErrEmptyQuestion},
		{name: "empty store", embedder: hash, texts: nil, gen: &fakeGenerator{}, question: "modules?", want: models.ErrEmptyStore},
		{name: "embedding failure", embedder: failingEmbedder{hash}, texts: nil, gen: &fakeGenerator{}, question: "modules?", want: models.ErrEmbeddingService},
		{name: "generation failure", embedder: hash, texts: pages, gen: &fakeGenerator{err: models.ErrGeneration}, question: "modules?", want: models.ErrGeneration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seededStore(t, hash, tt.texts)
			var last Stage
			engine, err := NewEngine(tt.embedder, store, tt.gen, WithOnStage(func(s Stage) { last = s }))
			if err != nil {
				t.Fatalf("NewEngine: %v", err)
			}
			answer, err := engine.Answer(context.Background(), tt.question)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if answer != nil {
				t.Errorf("partial answer returned: %+v", answer)
			}
			if last != StageFailed {
				t.Errorf("last stage = %s, want FAILED", last)
			}
			if tt.want != models.ErrGeneration && tt.gen.calls != 0 {
				t.Errorf("generator called %d times", tt.gen.calls)
			}
		})
	}
}

func TestNewEngineInvalidTopK(t *testing.T) {
	_, err := NewEngine(embedding.NewHashEmbedder(8), nil, &fakeGenerator{}, WithTopK(0))
	if !errors.Is(err, models.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestBuildContext(t *testing.T) {
	got := BuildContext([]models.Result{
		{Content: "alpha", PageNumber: 0},
		{Content: "beta", PageNumber: 4},
	})
	want := "[Source 1, page 1]\nalpha\n---\n[Source 2, page 5]\nbeta"
	if got != want {
		t.Errorf("BuildContext = %q, want %q", got, want)
	}
}
