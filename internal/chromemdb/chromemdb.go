package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"manual-rag/internal/models"
	"manual-rag/internal/vectorstore"
)

// VectorDBManager stores chunk vectors in a chromem-go collection, persisted
// as gob files under dbPath.
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
	dbPath     string
	compress   bool
	name       string
}

var _ vectorstore.Store = (*VectorDBManager)(nil)

// NewVectorDBManager opens (or creates) the persistent database at dbPath.
// An empty dbPath keeps everything in memory.
func NewVectorDBManager(dbPath, collectionName string, compress bool) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if dbPath == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:       db,
		dbPath:   dbPath,
		compress: compress,
		name:     collectionName,
	}
	if _, err := m.getOrCreateCollection(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *VectorDBManager) getOrCreateCollection() (*chromem.Collection, error) {
	// vectors are always supplied, so no embedding func is configured
	c, err := m.db.GetOrCreateCollection(m.name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

func (m *VectorDBManager) Upsert(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Metadata:  r.Metadata,
			Embedding: r.Vector,
		}
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Int("records", len(docs)).Str("collection", m.name).Msg("Upserted records")
	return nil
}

func (m *VectorDBManager) Query(ctx context.Context, vector []float32, k int) ([]models.Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrInvalidConfig, k)
	}
	if len(vector) == 0 {
		return nil, errors.New("query vector is empty")
	}
	count := m.collection.Count()
	if count == 0 {
		return nil, models.ErrEmptyStore
	}

	// over-fetch so equal-distance neighbours can be ordered by insertion
	// sequence; widen to the whole collection while the tie group at the
	// cut-off may continue past the fetched candidates
	n := min(2*k, count)
	var results []models.Result
	for {
		found, err := m.collection.QueryEmbedding(ctx, vector, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to query by similarity: %w", err)
		}
		results = make([]models.Result, len(found))
		for i, r := range found {
			results[i] = vectorstore.NewResult(r.ID, r.Content, r.Metadata, 1-float64(r.Similarity))
		}
		if n >= count || !tieAtCutoff(results, k) {
			break
		}
		n = count
	}
	vectorstore.SortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *VectorDBManager) Count(ctx context.Context) (int, error) {
	return m.collection.Count(), nil
}

// Reset drops the collection and recreates it empty.
func (m *VectorDBManager) Reset(ctx context.Context) error {
	if err := m.db.DeleteCollection(m.name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	_, err := m.getOrCreateCollection()
	return err
}

func (m *VectorDBManager) Close() error {
	return nil
}

// Export writes the collection to a single file, AES-GCM encrypted when
// encryptionKey is set (it must then be 32 bytes long).
func (m *VectorDBManager) Export(filePath, encryptionKey string) error {
	log.Debug().
		Str("collection", m.name).
		Str("file", filePath).
		Bool("compress", m.compress).
		Bool("encrypted", encryptionKey != "").
		Msg("Exporting collection")

	if err := m.db.ExportToFile(filePath, m.compress, encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads the collection from a file written by Export.
func (m *VectorDBManager) Import(filePath, encryptionKey string) error {
	if err := m.db.ImportFromFile(filePath, encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	_, err := m.getOrCreateCollection()
	return err
}

// tieAtCutoff reports whether the farthest candidate is as close as the k-th
// nearest one, meaning unfetched records may share that distance.
func tieAtCutoff(results []models.Result, k int) bool {
	if len(results) < k {
		return false
	}
	distances := make([]float64, len(results))
	for i, r := range results {
		distances[i] = r.Distance
	}
	sort.Float64s(distances)
	return distances[k-1] >= distances[len(distances)-1]
}
