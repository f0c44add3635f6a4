package repos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/types"
)

type FabricRecommendationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rec *types.FabricRecommendation) (*types.FabricRecommendation, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FabricRecommendation, error)
	AttachFeedback(ctx context.Context, tx *gorm.DB, id uuid.UUID, feedback int, selectedFabricID *uuid.UUID) error
}

type fabricRecommendationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFabricRecommendationRepo(db *gorm.DB, baseLog *logger.Logger) FabricRecommendationRepo {
	repoLog := baseLog.With("repo", "FabricRecommendationRepo")
	return &fabricRecommendationRepo{db: db, log: repoLog}
}

func (r *fabricRecommendationRepo) Create(ctx context.Context, tx *gorm.DB, rec *types.FabricRecommendation) (*types.FabricRecommendation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *fabricRecommendationRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FabricRecommendation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rec types.FabricRecommendation
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// AttachFeedback sets the user rating on an existing audit row. Ratings are
// clamped to the 1..5 scale at the handler; out of range here is a caller bug.
func (r *fabricRecommendationRepo) AttachFeedback(ctx context.Context, tx *gorm.DB, id uuid.UUID, feedback int, selectedFabricID *uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if feedback < 1 || feedback > 5 {
		return fmt.Errorf("feedback must be between 1 and 5, got %d", feedback)
	}
	updates := map[string]interface{}{"user_feedback": feedback}
	if selectedFabricID != nil {
		updates["selected_fabric_id"] = *selectedFabricID
	}
	result := transaction.WithContext(ctx).
		Model(&types.FabricRecommendation{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
