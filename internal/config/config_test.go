package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"manual-rag/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RAG.ChunkSize != 1000 || cfg.RAG.ChunkOverlap != 200 {
		t.Errorf("chunking defaults = %d/%d, want 1000/200", cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}
	if cfg.RAG.TopK != 5 {
		t.Errorf("TopK = %d, want 5", cfg.RAG.TopK)
	}
	if cfg.EmbedLLM.Model != "text-embedding-004" {
		t.Errorf("embed model = %q", cfg.EmbedLLM.Model)
	}
	if cfg.InferenceLLM.Model != "gemini-2.5-flash" || cfg.InferenceLLM.Temperature != 0 {
		t.Errorf("inference = %q temp %v", cfg.InferenceLLM.Model, cfg.InferenceLLM.Temperature)
	}
	if cfg.VectorStore.Path != "industrial_db" || cfg.VectorStore.Backend != BackendChromem {
		t.Errorf("vector store = %+v", cfg.VectorStore)
	}
	if !cfg.ShouldAutoIngest() {
		t.Error("auto ingest should default to true")
	}
}

func TestLoadConfigResolvesKeyFromEnv(t *testing.T) {
	t.Setenv("MY_GEMINI_KEY", "secret")
	path := writeConfig(t, `
embed_llm:
  provider: gemini
  key_env: MY_GEMINI_KEY
inference_llm:
  provider: gemini
  key_env: MY_GEMINI_KEY
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EmbedLLM.Key != "secret" || cfg.InferenceLLM.Key != "secret" {
		t.Fatalf("keys not resolved: %q %q", cfg.EmbedLLM.Key, cfg.InferenceLLM.Key)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap equals size", func(c *Config) { c.RAG.ChunkOverlap = c.RAG.ChunkSize }},
		{"overlap above size", func(c *Config) { c.RAG.ChunkSize = 100; c.RAG.ChunkOverlap = 150 }},
		{"negative overlap", func(c *Config) { c.RAG.ChunkOverlap = -1 }},
		{"zero top k", func(c *Config) { c.RAG.TopK = 0 }},
		{"missing credential", func(c *Config) { c.InferenceLLM.Key = "" }},
		{"unknown provider", func(c *Config) { c.EmbedLLM.Provider = "acme" }},
		{"hash cannot generate", func(c *Config) { c.InferenceLLM.Provider = ProviderHash }},
		{"pgvector without dsn", func(c *Config) { c.VectorStore.Backend = BackendPGVector }},
		{"unknown backend", func(c *Config) { c.VectorStore.Backend = "faiss" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.EmbedLLM.Key = "k"
			cfg.InferenceLLM.Key = "k"
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, models.ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "rag: [unclosed")
	if _, err := LoadConfig(path); !errors.Is(err, models.ErrInvalidConfig) {
		t.Fatalf("LoadConfig() = %v, want ErrInvalidConfig", err)
	}
}

func TestAutoIngestCanBeDisabled(t *testing.T) {
	path := writeConfig(t, "document:\n  auto_ingest: false\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ShouldAutoIngest() {
		t.Error("ShouldAutoIngest() = true, want false")
	}
}

func TestValidateIndexIgnoresInferenceModel(t *testing.T) {
	cfg := Default()
	cfg.EmbedLLM.Provider = ProviderHash
	ApplyDefaults(cfg)
	if err := cfg.ValidateIndex(); err != nil {
		t.Fatalf("ValidateIndex() = %v", err)
	}
	if err := cfg.Validate(); !errors.Is(err, models.ErrInvalidConfig) {
		t.Fatalf("Validate() = %v, want ErrInvalidConfig for the missing inference key", err)
	}
}

func TestLoadConfigProviderDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	path := writeConfig(t, `
rag:
  chunk_size: 150
embed_llm:
  provider: ollama
inference_llm:
  provider: openai
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		got     LLMConfig
		model   string
		keyEnv  string
		baseURL string
	}{
		{"embed ollama", cfg.EmbedLLM, "nomic-embed-text", "", "http://localhost:11434"},
		{"inference openai", cfg.InferenceLLM, "gpt-4o-mini", "OPENAI_API_KEY", "https://api.openai.com/v1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.Model != tt.model {
				t.Errorf("model = %q, want %q", tt.got.Model, tt.model)
			}
			if tt.got.KeyEnv != tt.keyEnv {
				t.Errorf("key env = %q, want %q", tt.got.KeyEnv, tt.keyEnv)
			}
			if tt.got.BaseURL != tt.baseURL {
				t.Errorf("base url = %q, want %q", tt.got.BaseURL, tt.baseURL)
			}
		})
	}
	if cfg.InferenceLLM.Key != "sk-test" {
		t.Errorf("inference key = %q, want the OPENAI_API_KEY value", cfg.InferenceLLM.Key)
	}

	if cfg.RAG.ChunkOverlap != 0 {
		t.Errorf("overlap = %d, want 0 for a chunk size below the default overlap", cfg.RAG.ChunkOverlap)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}
