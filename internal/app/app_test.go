package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"manual-rag/internal/config"
	"manual-rag/internal/models"
	"manual-rag/internal/vectorstore"
)

const manualPDF = "../../testdata/manual_3p.pdf"

// scriptedGenerator answers from the prompt context like a grounded model would.
type scriptedGenerator struct {
	prompts []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if strings.Contains(prompt, "The maximum number of local I/O modules is 8.") {
		return "The CPU supports a maximum of 8 local I/O modules.", nil
	}
	return "I don't know.", nil
}

func (g *scriptedGenerator) Model() string { return "scripted" }
func (g *scriptedGenerator) Close() error  { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Document.Path = manualPDF
	cfg.EmbedLLM.Provider = config.ProviderHash
	cfg.EmbedLLM.Dimensions = 256
	cfg.InferenceLLM.Provider = config.ProviderOllama
	cfg.VectorStore.Path = filepath.Join(t.TempDir(), "industrial_db")
	config.ApplyDefaults(cfg)
	return cfg
}

func newRuntime(t *testing.T, cfg *config.Config, opts ...Option) *Runtime {
	t.Helper()
	r, err := New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestAnswerFromManual(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	gen := &scriptedGenerator{}
	r := newRuntime(t, cfg, WithGenerator(gen))

	if err := r.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if !vectorstore.ManifestExists(cfg.VectorStore.Path) {
		t.Fatal("manifest not written after ingestion")
	}

	answer, err := r.Ask(ctx, "What is the maximum number of local I/O modules?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(answer.Content, "8") {
		t.Errorf("answer %q does not mention 8", answer.Content)
	}
	if len(answer.Sources) != 3 {
		t.Errorf("got %d sources, want min(top_k, records) = 3", len(answer.Sources))
	}
	found := false
	for _, s := range answer.Sources {
		if s.Metadata[models.MetaPageNumber] == "1" {
			found = true
		}
	}
	if !found {
		t.Errorf("no source from page index 1: %+v", answer.Sources)
	}
	if answer.Sources[0].PageNumber != 1 {
		t.Errorf("top source page = %d, want 1", answer.Sources[0].PageNumber)
	}

	turns := r.History.Turns()
	if len(turns) != 2 || turns[0].Role != models.RoleUser || turns[1].Role != models.RoleAssistant {
		t.Errorf("history = %+v", turns)
	}
}

func TestBootstrapReusesExistingStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	first := newRuntime(t, cfg, WithGenerator(&scriptedGenerator{}))
	if err := first.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	before, err := vectorstore.ReadManifest(cfg.VectorStore.Path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if before.Records != 3 || before.Pages != 3 || before.EmbeddingModel != "hash/256" || before.Dimensions != 256 {
		t.Errorf("manifest = %+v", before)
	}

	// the document is gone, so a second ingestion would fail
	cfg.Document.Path = filepath.Join(t.TempDir(), "missing.pdf")
	second := newRuntime(t, cfg, WithGenerator(&scriptedGenerator{}))
	if err := second.Bootstrap(ctx); err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	after, _ := vectorstore.ReadManifest(cfg.VectorStore.Path)
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Error("store was rebuilt although the manifest existed")
	}
	status, err := second.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Built || status.Records != 3 {
		t.Errorf("status = %+v", status)
	}
}

func TestBootstrapErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("auto ingest disabled", func(t *testing.T) {
		cfg := testConfig(t)
		off := false
		cfg.Document.AutoIngest = &off
		r := newRuntime(t, cfg, WithGenerator(&scriptedGenerator{}))
		if err := r.Bootstrap(ctx); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("missing document", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Document.Path = filepath.Join(t.TempDir(), "missing.pdf")
		r := newRuntime(t, cfg, WithGenerator(&scriptedGenerator{}))
		if err := r.Bootstrap(ctx); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
		if vectorstore.ManifestExists(cfg.VectorStore.Path) {
			t.Error("manifest written for a failed ingestion")
		}
	})

	t.Run("different embedding model", func(t *testing.T) {
		cfg := testConfig(t)
		r := newRuntime(t, cfg, WithGenerator(&scriptedGenerator{}))
		if err := r.Bootstrap(ctx); err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
		cfg.EmbedLLM.Dimensions = 128
		other := newRuntime(t, cfg, WithGenerator(&scriptedGenerator{}))
		if err := other.Bootstrap(ctx); !errors.Is(err, models.ErrInvalidConfig) {
			t.Fatalf("err = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("ingestion already running", func(t *testing.T) {
		cfg := testConfig(t)
		if err := os.MkdirAll(cfg.VectorStore.Path, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(cfg.VectorStore.Path, lockFile), []byte("1"), 0o644); err != nil {
			t.Fatal(err)
		}
		r := newRuntime(t, cfg, WithGenerator(&scriptedGenerator{}))
		if err := r.Bootstrap(ctx); !errors.Is(err, models.ErrIngestInProgress) {
			t.Fatalf("err = %v, want ErrIngestInProgress", err)
		}
	})
}

func TestAskEmptyStoreKeepsSession(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	r := newRuntime(t, cfg, WithGenerator(&scriptedGenerator{}))

	_, err := r.Ask(ctx, "How many modules?")
	if !errors.Is(err, models.ErrEmptyStore) {
		t.Fatalf("err = %v, want ErrEmptyStore", err)
	}
	turns := r.History.Turns()
	if len(turns) != 2 || turns[1].Role != models.RoleError {
		t.Errorf("history = %+v", turns)
	}
}

func TestPreviewAndReset(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	r := newRuntime(t, cfg, IndexOnly())
	if r.Engine() != nil {
		t.Error("index-only runtime should have no engine")
	}

	report, err := r.Preview(ctx, manualPDF)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !report.DryRun || len(report.Preview) != 3 {
		t.Errorf("preview = %+v", report)
	}
	if n, _ := r.Store.Count(ctx); n != 0 {
		t.Errorf("preview stored %d records", n)
	}

	if _, err := r.Ingest(ctx, manualPDF); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	backup := filepath.Join(t.TempDir(), "backup.gob.enc")
	cfg.RAG.EncryptionKey = strings.Repeat("x", 32)
	if err := r.Reset(ctx, backup); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := os.Stat(backup); err != nil {
		t.Errorf("backup not written: %v", err)
	}
	status, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Built || status.Records != 0 {
		t.Errorf("status after reset = %+v", status)
	}
}

func TestHistoryResumesAcrossRuntimes(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")

	first := newRuntime(t, cfg, WithGenerator(&scriptedGenerator{}))
	if err := first.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if _, err := first.Ask(ctx, "What is the maximum number of local I/O modules?"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	first.Close()

	second := newRuntime(t, cfg, WithGenerator(&scriptedGenerator{}))
	turns := second.History.Turns()
	if len(turns) != 2 || turns[1].Role != models.RoleAssistant || len(turns[1].Sources) == 0 {
		t.Errorf("resumed history = %+v", turns)
	}
}

func TestResetBackupAndRestore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.RAG.EncryptionKey = strings.Repeat("x", 32)
	r := newRuntime(t, cfg, WithGenerator(&scriptedGenerator{}))
	if err := r.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	backup := filepath.Join(t.TempDir(), "manual.gob.enc")
	if err := r.Reset(ctx, backup); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := os.Stat(BackupManifestPath(backup)); err != nil {
		t.Fatalf("backup manifest not written: %v", err)
	}

	m, err := r.Restore(ctx, backup)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if m.Records != 3 {
		t.Errorf("restored %d records, want 3", m.Records)
	}
	if !vectorstore.ManifestExists(cfg.VectorStore.Path) {
		t.Error("manifest not written after restore")
	}

	answer, err := r.Ask(ctx, "What is the maximum number of local I/O modules?")
	if err != nil {
		t.Fatalf("Ask after restore: %v", err)
	}
	if !strings.Contains(answer.Content, "8") {
		t.Errorf("answer = %q", answer.Content)
	}

	if _, err := r.Restore(ctx, filepath.Join(t.TempDir(), "missing.gob")); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("restore of a missing backup: err = %v, want ErrNotFound", err)
	}
}
