package repos

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/types"
)

// ErrDimensionMismatch is returned when a stored vector and the query vector
// disagree on dimensionality for the same embedding model.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// SimilarityMatch is one chunk-level hit from a vector search.
type SimilarityMatch struct {
	Embedding *types.FabricEmbedding
	Score     float64
}

type FabricEmbeddingRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, embeddings []*types.FabricEmbedding) error
	GetByFabricID(ctx context.Context, tx *gorm.DB, fabricID uuid.UUID) ([]*types.FabricEmbedding, error)
	DeleteByFabricID(ctx context.Context, tx *gorm.DB, fabricID uuid.UUID) error
	SimilaritySearch(ctx context.Context, tx *gorm.DB, query []float32, model string, topK int, minSimilarity float64) ([]SimilarityMatch, error)
}

type fabricEmbeddingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFabricEmbeddingRepo(db *gorm.DB, baseLog *logger.Logger) FabricEmbeddingRepo {
	repoLog := baseLog.With("repo", "FabricEmbeddingRepo")
	return &fabricEmbeddingRepo{db: db, log: repoLog}
}

// Upsert writes chunk embeddings keyed by chunk_id so re-processing a fabric
// replaces its vectors instead of accumulating stale ones.
func (r *fabricEmbeddingRepo) Upsert(ctx context.Context, tx *gorm.DB, embeddings []*types.FabricEmbedding) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(embeddings) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chunk_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"fabric_id", "chunk_type", "content", "embedding", "model", "metadata", "updated_at",
		}),
	}).Create(embeddings).Error
}

func (r *fabricEmbeddingRepo) GetByFabricID(ctx context.Context, tx *gorm.DB, fabricID uuid.UUID) ([]*types.FabricEmbedding, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.FabricEmbedding
	if err := transaction.WithContext(ctx).
		Where("fabric_id = ?", fabricID).
		Order("chunk_id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *fabricEmbeddingRepo) DeleteByFabricID(ctx context.Context, tx *gorm.DB, fabricID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("fabric_id = ?", fabricID).
		Delete(&types.FabricEmbedding{}).Error
}

// SimilaritySearch scores every stored vector for the given model against the
// query with cosine similarity. Only scores strictly above minSimilarity
// qualify; results come back best first, ties broken by most recent update.
func (r *fabricEmbeddingRepo) SimilaritySearch(ctx context.Context, tx *gorm.DB, query []float32, model string, topK int, minSimilarity float64) ([]SimilarityMatch, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("similarity search: empty query vector")
	}
	if topK <= 0 {
		return []SimilarityMatch{}, nil
	}

	var rows []*types.FabricEmbedding
	if err := transaction.WithContext(ctx).
		Where("model = ?", model).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	matches := make([]SimilarityMatch, 0, len(rows))
	for _, row := range rows {
		vec, err := row.Vector()
		if err != nil {
			return nil, err
		}
		if len(vec) == 0 {
			continue
		}
		if len(vec) != len(query) {
			return nil, fmt.Errorf("%w: chunk %s has %d dims, query has %d", ErrDimensionMismatch, row.ChunkID, len(vec), len(query))
		}
		score := cosine(query, vec)
		if score > minSimilarity {
			matches = append(matches, SimilarityMatch{Embedding: row, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Embedding.UpdatedAt.After(matches[j].Embedding.UpdatedAt)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}
