package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"manual-rag/internal/chunker"
	"manual-rag/internal/embedding"
	"manual-rag/internal/helper"
	"manual-rag/internal/models"
	"manual-rag/internal/vectorstore"
)

// Loader turns a document into pages.
type Loader interface {
	LoadPages(filePath string) ([]models.Page, error)
}

// Report summarises one ingestion run.
type Report struct {
	Source     string         `json:"source"`
	Pages      int            `json:"pages"`
	Chunks     int            `json:"chunks"`
	Records    int            `json:"records"`
	Dimensions int            `json:"dimensions"`
	Duration   time.Duration  `json:"duration"`
	DryRun     bool           `json:"dry_run"`
	Preview    []models.Chunk `json:"preview,omitempty"`
}

type Option func(*Pipeline)

func WithBatchSize(n int) Option {
	return func(p *Pipeline) { p.batchSize = n }
}

// WithDryRun stops after chunking; the chunks are returned in Report.Preview.
func WithDryRun(dryRun bool) Option {
	return func(p *Pipeline) { p.dryRun = dryRun }
}

// Pipeline is the one-shot job that fills the vector store from a document:
// load, chunk, then embed and upsert batch by batch.
type Pipeline struct {
	loader    Loader
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	store     vectorstore.Store
	batchSize int
	dryRun    bool
}

func New(loader Loader, c *chunker.Chunker, embedder embedding.Embedder, store vectorstore.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		loader:    loader,
		chunker:   c,
		embedder:  embedder,
		store:     store,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.batchSize <= 0 {
		p.batchSize = 100
	}
	return p
}

// Run ingests the document at path. A failure in any batch fails the run;
// batches already written stay in the store.
func (p *Pipeline) Run(ctx context.Context, path string) (*Report, error) {
	start := time.Now()
	source := filepath.Base(path)

	pages, err := p.loader.LoadPages(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	log.Info().Str("source", source).Int("pages", len(pages)).Msg("Loaded document")

	chunks := p.chunker.Split(pages)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrNoContent, path)
	}
	log.Info().Int("chunks", len(chunks)).Int("size", p.chunker.Size()).Int("overlap", p.chunker.Overlap()).Msg("Split document")

	report := &Report{
		Source: source,
		Pages:  len(pages),
		Chunks: len(chunks),
		DryRun: p.dryRun,
	}
	if p.dryRun {
		report.Preview = chunks
		report.Duration = time.Since(start)
		return report, nil
	}

	for begin := 0; begin < len(chunks); begin += p.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(begin+p.batchSize, len(chunks))
		batch := chunks[begin:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", begin, end, err)
		}
		if len(vectors) > 0 {
			report.Dimensions = len(vectors[0])
		}

		records := make([]models.Record, len(batch))
		for i, c := range batch {
			seq := begin + i
			records[i] = models.Record{
				ID:       helper.RecordID(source, seq, c.Content),
				Vector:   vectors[i],
				Content:  c.Content,
				Metadata: models.ChunkMetadata(c, source, seq),
			}
		}
		if err := p.store.Upsert(ctx, records); err != nil {
			return nil, fmt.Errorf("store batch %d-%d: %w", begin, end, err)
		}
		report.Records += len(records)
		log.Debug().Int("from", begin).Int("to", end).Msg("Stored batch")
	}

	report.Duration = time.Since(start)
	log.Info().
		Str("source", source).
		Int("records", report.Records).
		Dur("duration", report.Duration).
		Msg("Ingestion complete")
	return report, nil
}
