package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"manual-rag/internal/config"
	"manual-rag/internal/models"
	"manual-rag/internal/vectorstore"
)

type Chunk struct {
	bun.BaseModel `bun:"table:manual_chunks,alias:c"`
	ID            string            `bun:"id,pk"`
	Seq           int               `bun:"seq,notnull"`
	Content       string            `bun:"content,notnull"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	Embedding     pgvector.Vector   `bun:"embedding,type:vector"`
	Distance      float64           `bun:"distance,scanonly"`
}

// PGVectorStore keeps chunk vectors in a Postgres table with the pgvector extension.
type PGVectorStore struct {
	db    *bun.DB
	table string
}

var _ vectorstore.Store = (*PGVectorStore)(nil)

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the configured driver: bun's pgdriver or lib/pq.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "pq":
		return sql.Open("postgres", cfg.DSN)
	case "pgdriver", "":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", models.ErrInvalidConfig, cfg.Driver)
	}
}

// Open connects and makes sure the extension and table exist.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*PGVectorStore, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	s := &PGVectorStore{db: NewDB(sqldb, cfg.Debug), table: cfg.Table}
	if err := s.InitDB(ctx); err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGVectorStore) InitDB(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	_, err := s.db.NewCreateTable().
		Model((*Chunk)(nil)).
		ModelTableExpr("?", bun.Ident(s.table)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

func (s *PGVectorStore) Upsert(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]Chunk, len(records))
	for i, r := range records {
		rows[i] = Chunk{
			ID:        r.ID,
			Seq:       models.MetaInt(r.Metadata, models.MetaSeq),
			Content:   r.Content,
			Metadata:  r.Metadata,
			Embedding: pgvector.NewVector(r.Vector),
		}
	}
	_, err := s.db.NewInsert().
		Model(&rows).
		ModelTableExpr("?", bun.Ident(s.table)).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	log.Debug().Int("records", len(rows)).Str("table", s.table).Msg("Upserted records")
	return nil
}

func (s *PGVectorStore) searchQuery(vector []float32, k int, rows *[]Chunk) *bun.SelectQuery {
	return s.db.NewSelect().
		Model(rows).
		ModelTableExpr("? AS c", bun.Ident(s.table)).
		Column("id", "seq", "content", "metadata").
		ColumnExpr("embedding <=> ? AS distance", pgvector.NewVector(vector)).
		OrderExpr("distance ASC, seq ASC").
		Limit(k)
}

func (s *PGVectorStore) Query(ctx context.Context, vector []float32, k int) ([]models.Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrInvalidConfig, k)
	}
	count, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, models.ErrEmptyStore
	}

	var rows []Chunk
	if err := s.searchQuery(vector, k, &rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	results := make([]models.Result, len(rows))
	for i, row := range rows {
		results[i] = vectorstore.NewResult(row.ID, row.Content, row.Metadata, row.Distance)
	}
	return results, nil
}

func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.NewRaw("SELECT count(*) FROM ?", bun.Ident(s.table)).Scan(ctx, &n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Reset drops the table and creates it again.
func (s *PGVectorStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS ?", bun.Ident(s.table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", s.table, err)
	}
	return s.InitDB(ctx)
}

func (s *PGVectorStore) Close() error {
	return s.db.Close()
}
