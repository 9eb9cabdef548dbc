package vectorstore

import (
	"context"
	"sort"

	"manual-rag/internal/models"
)

// Store persists chunk vectors and answers nearest-neighbour queries.
type Store interface {
	// Upsert is idempotent by record ID.
	Upsert(ctx context.Context, records []models.Record) error
	// Query returns min(k, Count) results ordered by ascending cosine distance.
	Query(ctx context.Context, vector []float32, k int) ([]models.Result, error)
	Count(ctx context.Context) (int, error)
	// Reset removes every record.
	Reset(ctx context.Context) error
	Close() error
}

// SortResults orders results by distance, breaking ties by insertion sequence.
func SortResults(results []models.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return models.MetaInt(results[i].Metadata, models.MetaSeq) < models.MetaInt(results[j].Metadata, models.MetaSeq)
	})
}

// NewResult fills the typed fields of a result from its metadata.
func NewResult(id, content string, metadata map[string]string, distance float64) models.Result {
	return models.Result{
		ID:         id,
		Content:    content,
		Metadata:   metadata,
		PageNumber: models.MetaInt(metadata, models.MetaPageNumber),
		ChunkIndex: models.MetaInt(metadata, models.MetaChunkIndex),
		Distance:   distance,
	}
}
