package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/types"
)

type GeneratedOutfitRepo interface {
	Create(ctx context.Context, tx *gorm.DB, outfit *types.GeneratedOutfit, fabrics []types.OutfitFabric) (*types.GeneratedOutfit, error)
	GetByOutfitID(ctx context.Context, tx *gorm.DB, outfitID string) (*types.GeneratedOutfit, error)
	List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.GeneratedOutfit, error)
}

type generatedOutfitRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGeneratedOutfitRepo(db *gorm.DB, baseLog *logger.Logger) GeneratedOutfitRepo {
	repoLog := baseLog.With("repo", "GeneratedOutfitRepo")
	return &generatedOutfitRepo{db: db, log: repoLog}
}

// Create persists the outfit and its fabric association rows in one
// transaction. Association rows record the fabric code alongside the id so
// outfit history stays readable after a fabric is deleted.
func (r *generatedOutfitRepo) Create(ctx context.Context, tx *gorm.DB, outfit *types.GeneratedOutfit, fabrics []types.OutfitFabric) (*types.GeneratedOutfit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(ctx).Transaction(func(t *gorm.DB) error {
		if err := t.Create(outfit).Error; err != nil {
			return err
		}
		for i := range fabrics {
			fabrics[i].OutfitID = outfit.ID
			if err := t.Clauses(clause.OnConflict{DoNothing: true}).Create(&fabrics[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByOutfitID(ctx, transaction, outfit.OutfitID)
}

func (r *generatedOutfitRepo) GetByOutfitID(ctx context.Context, tx *gorm.DB, outfitID string) (*types.GeneratedOutfit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var outfit types.GeneratedOutfit
	if err := transaction.WithContext(ctx).
		Preload("Fabrics").
		Where("outfit_id = ?", outfitID).
		First(&outfit).Error; err != nil {
		return nil, err
	}
	return &outfit, nil
}

func (r *generatedOutfitRepo) List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.GeneratedOutfit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Preload("Fabrics").
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var results []*types.GeneratedOutfit
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
