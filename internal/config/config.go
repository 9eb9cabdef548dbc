package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"manual-rag/internal/models"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderHash   = "hash"

	BackendChromem  = "chromem"
	BackendPGVector = "pgvector"
)

type Config struct {
	Document     DocumentConfig    `yaml:"document"`
	RAG          RAGConfig         `yaml:"rag"`
	EmbedLLM     LLMConfig         `yaml:"embed_llm"`
	InferenceLLM LLMConfig         `yaml:"inference_llm"`
	VectorStore  VectorStoreConfig `yaml:"vector_store"`
	Database     DatabaseConfig    `yaml:"database"`
	History      HistoryConfig     `yaml:"history"`
	Log          LogConfig         `yaml:"log"`
}

type DocumentConfig struct {
	Path string `yaml:"path"`
	// AutoIngest builds the store on startup when no manifest is found.
	AutoIngest *bool `yaml:"auto_ingest,omitempty"`
}

type RAGConfig struct {
	ChunkSize     int    `yaml:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	SpanPages     bool   `yaml:"span_pages"`
	TopK          int    `yaml:"top_k"`
	EncryptionKey string `yaml:"encryption_key"`
}

// LLMConfig configures either the embedding or the inference model.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	KeyEnv      string  `yaml:"key_env"`
	Key         string  `yaml:"-"`
	Model       string  `yaml:"model"`
	BatchSize   int     `yaml:"batch_size"`
	Dimensions  int     `yaml:"dimensions"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	MaxAttempts int     `yaml:"max_attempts"`
}

type VectorStoreConfig struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	Compress   bool   `yaml:"compress"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // pgdriver or pq
	DSN         string `yaml:"dsn"`
	PasswordEnv string `yaml:"password_env"`
	Password    string `yaml:"-"`
	Table       string `yaml:"table"`
	Debug       bool   `yaml:"debug"`
}

type HistoryConfig struct {
	// Path of the SQLite history database; empty keeps history in memory.
	Path string `yaml:"path"`
	// Session to resume. Empty resumes the most recent one; "new" starts a fresh session.
	Session string `yaml:"session"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig reads the YAML config at path. A missing file yields the defaults.
// Variables from a .env file in the working directory are loaded first.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	// defaults depend on the chosen providers, so they are applied after parsing
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", models.ErrInvalidConfig, path, err)
		}
	}
	ApplyDefaults(cfg)
	cfg.resolveSecrets()
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func ApplyDefaults(cfg *Config) {
	if cfg.Document.Path == "" {
		cfg.Document.Path = "data/manual.pdf"
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = models.DefaultChunkSize
	}
	if cfg.RAG.ChunkOverlap == 0 && cfg.RAG.ChunkSize > models.DefaultChunkOverlap {
		cfg.RAG.ChunkOverlap = models.DefaultChunkOverlap
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = models.DefaultTopK
	}

	applyLLMDefaults(&cfg.EmbedLLM, "text-embedding-004", "nomic-embed-text", "text-embedding-3-small")
	applyLLMDefaults(&cfg.InferenceLLM, "gemini-2.5-flash", "llama3.1", "gpt-4o-mini")
	if cfg.EmbedLLM.BatchSize == 0 {
		cfg.EmbedLLM.BatchSize = 100
	}
	if cfg.EmbedLLM.Provider == ProviderHash && cfg.EmbedLLM.Dimensions == 0 {
		cfg.EmbedLLM.Dimensions = 256
	}

	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = BackendChromem
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = "industrial_db"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "manual"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}
	if cfg.Database.Table == "" {
		cfg.Database.Table = "manual_chunks"
	}
	if cfg.Database.PasswordEnv == "" {
		cfg.Database.PasswordEnv = "PGPASSWORD"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

func applyLLMDefaults(c *LLMConfig, geminiModel, ollamaModel, openaiModel string) {
	if c.Provider == "" {
		c.Provider = ProviderGemini
	}
	switch c.Provider {
	case ProviderGemini:
		if c.Model == "" {
			c.Model = geminiModel
		}
		if c.KeyEnv == "" {
			c.KeyEnv = "GOOGLE_API_KEY"
		}
	case ProviderOpenAI:
		if c.Model == "" {
			c.Model = openaiModel
		}
		if c.BaseURL == "" {
			c.BaseURL = "https://api.openai.com/v1"
		}
		if c.KeyEnv == "" {
			c.KeyEnv = "OPENAI_API_KEY"
		}
	case ProviderOllama:
		if c.Model == "" {
			c.Model = ollamaModel
		}
		if c.BaseURL == "" {
			c.BaseURL = "http://localhost:11434"
		}
	case ProviderHash:
		if c.Model == "" {
			c.Model = "hash"
		}
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 60
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 1
	}
}

func (cfg *Config) resolveSecrets() {
	for _, c := range []*LLMConfig{&cfg.EmbedLLM, &cfg.InferenceLLM} {
		if c.KeyEnv != "" && c.Key == "" {
			c.Key = os.Getenv(c.KeyEnv)
		}
	}
	if cfg.Database.Password == "" {
		cfg.Database.Password = os.Getenv(cfg.Database.PasswordEnv)
	}
}

// ShouldAutoIngest reports whether a missing store is built on startup.
func (cfg *Config) ShouldAutoIngest() bool {
	return cfg.Document.AutoIngest == nil || *cfg.Document.AutoIngest
}

// Validate checks the settings that must be right before anything runs.
func (cfg *Config) Validate() error {
	if err := cfg.ValidateIndex(); err != nil {
		return err
	}
	return cfg.InferenceLLM.validate("inference_llm")
}

// ValidateIndex checks everything except the inference model, for commands
// that only build or inspect the vector store.
func (cfg *Config) ValidateIndex() error {
	if cfg.RAG.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", models.ErrInvalidConfig, cfg.RAG.ChunkSize)
	}
	if cfg.RAG.ChunkOverlap < 0 || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap (%d) must be in [0, chunk_size=%d)", models.ErrInvalidConfig, cfg.RAG.ChunkOverlap, cfg.RAG.ChunkSize)
	}
	if cfg.RAG.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", models.ErrInvalidConfig, cfg.RAG.TopK)
	}
	if err := cfg.EmbedLLM.validate("embed_llm"); err != nil {
		return err
	}
	switch cfg.VectorStore.Backend {
	case BackendChromem:
	case BackendPGVector:
		if cfg.Database.DSN == "" {
			return fmt.Errorf("%w: database.dsn is required for the pgvector backend", models.ErrInvalidConfig)
		}
		if cfg.Database.Driver != "pgdriver" && cfg.Database.Driver != "pq" {
			return fmt.Errorf("%w: unknown database driver %q", models.ErrInvalidConfig, cfg.Database.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown vector store backend %q", models.ErrInvalidConfig, cfg.VectorStore.Backend)
	}
	return nil
}

func (c *LLMConfig) validate(section string) error {
	switch c.Provider {
	case ProviderGemini, ProviderOpenAI:
		if c.Key == "" {
			return fmt.Errorf("%w: %s: API key not set (export %s or add it to .env)", models.ErrInvalidConfig, section, c.KeyEnv)
		}
	case ProviderOllama:
	case ProviderHash:
		if section == "inference_llm" {
			return fmt.Errorf("%w: %s: the hash provider cannot generate text", models.ErrInvalidConfig, section)
		}
	default:
		return fmt.Errorf("%w: %s: unknown provider %q", models.ErrInvalidConfig, section, c.Provider)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: %s: max_attempts must be at least 1", models.ErrInvalidConfig, section)
	}
	return nil
}
