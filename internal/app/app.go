package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"manual-rag/internal/chromemdb"
	"manual-rag/internal/chunker"
	"manual-rag/internal/config"
	"manual-rag/internal/db"
	"manual-rag/internal/embedding"
	"manual-rag/internal/helper"
	"manual-rag/internal/history"
	"manual-rag/internal/ingest"
	"manual-rag/internal/llmservice"
	"manual-rag/internal/models"
	"manual-rag/internal/parser"
	"manual-rag/internal/rag"
	"manual-rag/internal/vectorstore"
)

// ingestAttempts is one try plus one retry.
const ingestAttempts = 2

type Option func(*Runtime)

// WithEmbedder replaces the embedder built from config.
func WithEmbedder(e embedding.Embedder) Option {
	return func(r *Runtime) { r.Embedder = e }
}

// WithGenerator replaces the generator built from config.
func WithGenerator(g llmservice.Generator) Option {
	return func(r *Runtime) { r.Generator = g }
}

// IndexOnly skips the generator, for commands that never answer questions.
func IndexOnly() Option {
	return func(r *Runtime) { r.indexOnly = true }
}

// Runtime owns every long-lived component of a session and is the only
// place that builds them. Close tears them down.
type Runtime struct {
	Config    *config.Config
	Embedder  embedding.Embedder
	Store     vectorstore.Store
	Generator llmservice.Generator
	History   *history.Log

	engine    *rag.Engine
	indexOnly bool
}

// Status describes the vector store on disk.
type Status struct {
	Backend  string                `json:"backend"`
	Path     string                `json:"path"`
	Built    bool                  `json:"built"`
	Manifest *vectorstore.Manifest `json:"manifest,omitempty"`
	Records  int                   `json:"records"`
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (rt *Runtime, err error) {
	r := &Runtime{Config: cfg}
	for _, opt := range opts {
		opt(r)
	}

	if r.indexOnly {
		err = cfg.ValidateIndex()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			r.Close()
		}
	}()

	if r.Embedder == nil {
		if r.Embedder, err = embedding.New(ctx, &cfg.EmbedLLM); err != nil {
			return nil, err
		}
	}
	if r.Store, err = OpenStore(ctx, cfg); err != nil {
		return nil, err
	}
	if !r.indexOnly {
		if r.Generator == nil {
			if r.Generator, err = llmservice.New(ctx, &cfg.InferenceLLM); err != nil {
				return nil, err
			}
		}
		r.engine, err = rag.NewEngine(r.Embedder, r.Store, r.Generator, rag.WithTopK(cfg.RAG.TopK))
		if err != nil {
			return nil, err
		}
	}
	if r.History, err = openHistory(cfg.History); err != nil {
		return nil, err
	}

	log.Debug().
		Str("embedder", r.Embedder.Model()).
		Str("backend", cfg.VectorStore.Backend).
		Bool("index_only", r.indexOnly).
		Msg("Runtime ready")
	return r, nil
}

// OpenStore opens the configured vector store backend.
func OpenStore(ctx context.Context, cfg *config.Config) (vectorstore.Store, error) {
	switch cfg.VectorStore.Backend {
	case config.BackendChromem:
		store, err := chromemdb.NewVectorDBManager(cfg.VectorStore.Path, cfg.VectorStore.Collection, cfg.VectorStore.Compress)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendPGVector:
		store, err := db.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store backend %q", models.ErrInvalidConfig, cfg.VectorStore.Backend)
	}
}

func openHistory(cfg config.HistoryConfig) (*history.Log, error) {
	if cfg.Path == "" {
		return history.New(), nil
	}
	return history.OpenSQLite(cfg.Path, cfg.Session)
}

// Engine returns the query engine, or nil for an IndexOnly runtime.
func (r *Runtime) Engine() *rag.Engine {
	return r.engine
}

// Bootstrap makes sure the vector store is built. An existing store is
// checked against the configured embedding model; a missing one is ingested
// from the configured document unless auto ingestion is disabled.
func (r *Runtime) Bootstrap(ctx context.Context) error {
	dir := r.Config.VectorStore.Path
	if vectorstore.ManifestExists(dir) {
		m, err := vectorstore.ReadManifest(dir)
		if err != nil {
			return err
		}
		if err := m.CheckModel(r.Embedder.Model()); err != nil {
			return err
		}
		log.Info().Str("path", dir).Int("records", m.Records).Msg("Using existing vector store")
		return nil
	}

	if !r.Config.ShouldAutoIngest() {
		return fmt.Errorf("%w: no vector store at %s; run the ingest command first", models.ErrNotFound, dir)
	}
	log.Info().Str("document", r.Config.Document.Path).Msg("Vector store not found, ingesting document")
	_, err := r.Ingest(ctx, r.Config.Document.Path)
	return err
}

func (r *Runtime) newPipeline(opts ...ingest.Option) (*ingest.Pipeline, error) {
	c, err := chunker.New(r.Config.RAG.ChunkSize, r.Config.RAG.ChunkOverlap, chunker.WithSpanPages(r.Config.RAG.SpanPages))
	if err != nil {
		return nil, err
	}
	opts = append([]ingest.Option{ingest.WithBatchSize(r.Config.EmbedLLM.BatchSize)}, opts...)
	return ingest.New(parser.New(), c, r.Embedder, r.Store, opts...), nil
}

// Ingest rebuilds the store from the document at path under the ingestion
// lock, retrying once, and writes the manifest when it succeeds.
func (r *Runtime) Ingest(ctx context.Context, path string) (*ingest.Report, error) {
	dir := r.Config.VectorStore.Path
	release, err := acquireLock(dir)
	if err != nil {
		return nil, err
	}
	defer release()

	pipeline, err := r.newPipeline()
	if err != nil {
		return nil, err
	}
	if err := vectorstore.RemoveManifest(dir); err != nil {
		return nil, err
	}

	var report *ingest.Report
	policy := helper.RetryPolicy{Attempts: ingestAttempts, Backoff: time.Second}
	err = helper.Retry(ctx, policy, "ingest", func(ctx context.Context) error {
		if err := r.Store.Reset(ctx); err != nil {
			return err
		}
		var err error
		report, err = pipeline.Run(ctx, path)
		if isPermanent(err) {
			return helper.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ingestion failed: %w", err)
	}

	m := &vectorstore.Manifest{
		Backend:        r.Config.VectorStore.Backend,
		EmbeddingModel: r.Embedder.Model(),
		Dimensions:     report.Dimensions,
		ChunkSize:      r.Config.RAG.ChunkSize,
		ChunkOverlap:   r.Config.RAG.ChunkOverlap,
		SpanPages:      r.Config.RAG.SpanPages,
		Source:         report.Source,
		Pages:          report.Pages,
		Records:        report.Records,
		CreatedAt:      time.Now().UTC(),
	}
	if err := vectorstore.WriteManifest(dir, m); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return report, nil
}

// Preview loads and chunks the document without touching the store.
func (r *Runtime) Preview(ctx context.Context, path string) (*ingest.Report, error) {
	pipeline, err := r.newPipeline(ingest.WithDryRun(true))
	if err != nil {
		return nil, err
	}
	return pipeline.Run(ctx, path)
}

func isPermanent(err error) bool {
	return errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrUnsupportedFormat) ||
		errors.Is(err, models.ErrNoContent) ||
		errors.Is(err, models.ErrInvalidConfig)
}

// Ask answers a question and records both sides of the turn in the history.
// A failed answer is recorded as an error turn; the session goes on.
func (r *Runtime) Ask(ctx context.Context, question string) (*models.Answer, error) {
	if r.engine == nil {
		return nil, errors.New("runtime was opened without a generator")
	}
	if err := r.History.Append(models.Turn{Role: models.RoleUser, Content: question}); err != nil {
		log.Warn().Err(err).Msg("Failed to record question")
	}

	answer, err := r.engine.Answer(ctx, question)
	turn := models.Turn{Role: models.RoleAssistant}
	if err != nil {
		turn = models.Turn{Role: models.RoleError, Content: err.Error()}
	} else {
		turn.Content = answer.Content
		turn.Sources = answer.Sources
	}
	if herr := r.History.Append(turn); herr != nil {
		log.Warn().Err(herr).Msg("Failed to record answer")
	}
	return answer, err
}

func (r *Runtime) Status(ctx context.Context) (*Status, error) {
	s := &Status{
		Backend: r.Config.VectorStore.Backend,
		Path:    r.Config.VectorStore.Path,
		Built:   vectorstore.ManifestExists(r.Config.VectorStore.Path),
	}
	if s.Built {
		m, err := vectorstore.ReadManifest(s.Path)
		if err != nil {
			return nil, err
		}
		s.Manifest = m
	}
	n, err := r.Store.Count(ctx)
	if err != nil {
		return nil, err
	}
	s.Records = n
	return s, nil
}

// BackupManifestPath is where a backup's manifest is kept, next to the export.
func BackupManifestPath(backupPath string) string {
	return backupPath + "." + vectorstore.ManifestFile
}

func (r *Runtime) chromemStore(op string) (*chromemdb.VectorDBManager, error) {
	store, ok := r.Store.(*chromemdb.VectorDBManager)
	if !ok {
		return nil, fmt.Errorf("%w: %s is only supported by the chromem backend", models.ErrInvalidConfig, op)
	}
	return store, nil
}

// Reset empties the store and removes the manifest and any stale lock. When
// backupPath is set the chromem collection is exported there first, along
// with a copy of the manifest.
func (r *Runtime) Reset(ctx context.Context, backupPath string) error {
	dir := r.Config.VectorStore.Path
	if backupPath != "" {
		exporter, err := r.chromemStore("backup")
		if err != nil {
			return err
		}
		if err := exporter.Export(backupPath, r.Config.RAG.EncryptionKey); err != nil {
			return err
		}
		if vectorstore.ManifestExists(dir) {
			m, err := vectorstore.ReadManifest(dir)
			if err != nil {
				return err
			}
			if err := vectorstore.WriteManifestFile(BackupManifestPath(backupPath), m); err != nil {
				return err
			}
		}
		log.Info().Str("file", backupPath).Msg("Exported vector store")
	}
	if err := r.Store.Reset(ctx); err != nil {
		return err
	}
	if err := vectorstore.RemoveManifest(dir); err != nil {
		return err
	}
	return removeLock(dir)
}

// Restore replaces the store with a backup written by Reset. The backup must
// have been built with the configured embedding model.
func (r *Runtime) Restore(ctx context.Context, backupPath string) (*vectorstore.Manifest, error) {
	importer, err := r.chromemStore("restore")
	if err != nil {
		return nil, err
	}
	m, err := vectorstore.ReadManifestFile(BackupManifestPath(backupPath))
	if err != nil {
		return nil, err
	}
	if err := m.CheckModel(r.Embedder.Model()); err != nil {
		return nil, err
	}

	dir := r.Config.VectorStore.Path
	release, err := acquireLock(dir)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := vectorstore.RemoveManifest(dir); err != nil {
		return nil, err
	}
	if err := r.Store.Reset(ctx); err != nil {
		return nil, err
	}
	if err := importer.Import(backupPath, r.Config.RAG.EncryptionKey); err != nil {
		return nil, err
	}
	if m.Records, err = r.Store.Count(ctx); err != nil {
		return nil, err
	}
	if err := vectorstore.WriteManifest(dir, m); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	log.Info().Str("file", backupPath).Int("records", m.Records).Msg("Restored vector store")
	return m, nil
}

func (r *Runtime) Close() error {
	var errs []error
	if r.History != nil {
		errs = append(errs, r.History.Close())
	}
	if r.Generator != nil {
		errs = append(errs, r.Generator.Close())
	}
	if r.Store != nil {
		errs = append(errs, r.Store.Close())
	}
	if r.Embedder != nil {
		errs = append(errs, r.Embedder.Close())
	}
	return errors.Join(errs...)
}
