package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/types"
)

type FabricCategoryRepo interface {
	List(ctx context.Context, tx *gorm.DB) ([]*types.FabricCategory, error)
	GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.FabricCategory, error)
}

type fabricCategoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFabricCategoryRepo(db *gorm.DB, baseLog *logger.Logger) FabricCategoryRepo {
	repoLog := baseLog.With("repo", "FabricCategoryRepo")
	return &fabricCategoryRepo{db: db, log: repoLog}
}

func (r *fabricCategoryRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.FabricCategory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.FabricCategory
	if err := transaction.WithContext(ctx).
		Order("slug ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *fabricCategoryRepo) GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.FabricCategory, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var category types.FabricCategory
	if err := transaction.WithContext(ctx).
		Where("slug = ?", slug).
		First(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}
