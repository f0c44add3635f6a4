package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/types"
)

// FabricFilter narrows List results. Zero values mean "no constraint".
type FabricFilter struct {
	Category string
	Season   string
	Color    string
	Pattern  string
	Limit    int
}

// FabricStats summarizes the catalog for the stats endpoint.
type FabricStats struct {
	TotalFabrics    int64            `json:"total_fabrics"`
	TotalEmbeddings int64            `json:"total_embeddings"`
	TotalOutfits    int64            `json:"total_outfits"`
	ByCategory      map[string]int64 `json:"by_category"`
	BySeason        map[string]int64 `json:"by_season"`
	LastScrapeDate  *time.Time       `json:"last_scrape_date,omitempty"`
}

type FabricRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, fabric *types.Fabric, seasons []string, images []types.FabricImage) (*types.Fabric, error)
	GetByCode(ctx context.Context, tx *gorm.DB, code string) (*types.Fabric, error)
	GetByCodes(ctx context.Context, tx *gorm.DB, codes []string) ([]*types.Fabric, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Fabric, error)
	List(ctx context.Context, tx *gorm.DB, filter FabricFilter) ([]*types.Fabric, error)
	AddImage(ctx context.Context, tx *gorm.DB, image *types.FabricImage) error
	Delete(ctx context.Context, tx *gorm.DB, code string) error
	Stats(ctx context.Context, tx *gorm.DB) (*FabricStats, error)
}

type fabricRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFabricRepo(db *gorm.DB, baseLog *logger.Logger) FabricRepo {
	repoLog := baseLog.With("repo", "FabricRepo")
	return &fabricRepo{db: db, log: repoLog}
}

// Upsert writes one fabric keyed by fabric_code. Attribute columns are
// replaced, season and image children are rebuilt so removed values do not
// linger from earlier harvests.
func (r *fabricRepo) Upsert(ctx context.Context, tx *gorm.DB, fabric *types.Fabric, seasons []string, images []types.FabricImage) (*types.Fabric, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(ctx).Transaction(func(t *gorm.DB) error {
		if err := t.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "fabric_code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "composition", "weight", "color", "pattern",
				"price_category", "stock_status", "supplier", "origin",
				"description", "care_instructions", "category",
				"scrape_date", "additional_metadata", "updated_at",
			}),
		}).Create(fabric).Error; err != nil {
			return err
		}

		// The insert may have resolved to an existing row; read back the
		// canonical id before attaching children.
		var persisted types.Fabric
		if err := t.Where("fabric_code = ?", fabric.FabricCode).First(&persisted).Error; err != nil {
			return err
		}
		fabric.ID = persisted.ID

		if err := t.Where("fabric_id = ?", persisted.ID).Delete(&types.FabricSeason{}).Error; err != nil {
			return err
		}
		for _, season := range seasons {
			if !types.ValidSeason(season) {
				r.log.Warn("Skipping invalid season value", "fabric_code", fabric.FabricCode, "season", season)
				continue
			}
			row := types.FabricSeason{FabricID: persisted.ID, Season: season}
			if err := t.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return err
			}
		}

		if err := t.Where("fabric_id = ?", persisted.ID).Delete(&types.FabricImage{}).Error; err != nil {
			return err
		}
		for i := range images {
			images[i].ID = uuid.Nil
			images[i].FabricID = persisted.ID
			if err := t.Create(&images[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByCode(ctx, transaction, fabric.FabricCode)
}

func (r *fabricRepo) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*types.Fabric, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var fabric types.Fabric
	if err := transaction.WithContext(ctx).
		Preload("Seasons").
		Preload("Images").
		Where("fabric_code = ?", code).
		First(&fabric).Error; err != nil {
		return nil, err
	}
	return &fabric, nil
}

func (r *fabricRepo) GetByCodes(ctx context.Context, tx *gorm.DB, codes []string) ([]*types.Fabric, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Fabric
	if len(codes) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Preload("Seasons").
		Preload("Images").
		Where("fabric_code IN ?", codes).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *fabricRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Fabric, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Fabric
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Preload("Seasons").
		Preload("Images").
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *fabricRepo) List(ctx context.Context, tx *gorm.DB, filter FabricFilter) ([]*types.Fabric, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Model(&types.Fabric{}).
		Preload("Seasons").
		Preload("Images")
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Color != "" {
		q = q.Where("LOWER(color) = LOWER(?)", filter.Color)
	}
	if filter.Pattern != "" {
		q = q.Where("LOWER(pattern) = LOWER(?)", filter.Pattern)
	}
	if filter.Season != "" {
		q = q.Where("id IN (?)", transaction.
			Model(&types.FabricSeason{}).
			Select("fabric_id").
			Where("season = ?", filter.Season))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var results []*types.Fabric
	if err := q.Order("created_at ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *fabricRepo) AddImage(ctx context.Context, tx *gorm.DB, image *types.FabricImage) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(image).Error
}

func (r *fabricRepo) Delete(ctx context.Context, tx *gorm.DB, code string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Transaction(func(t *gorm.DB) error {
		var fabric types.Fabric
		if err := t.Where("fabric_code = ?", code).First(&fabric).Error; err != nil {
			return err
		}
		// Children are removed explicitly so sqlite-backed tests behave the
		// same as postgres with ON DELETE CASCADE.
		if err := t.Where("fabric_id = ?", fabric.ID).Delete(&types.FabricSeason{}).Error; err != nil {
			return err
		}
		if err := t.Where("fabric_id = ?", fabric.ID).Delete(&types.FabricImage{}).Error; err != nil {
			return err
		}
		if err := t.Where("fabric_id = ?", fabric.ID).Delete(&types.FabricEmbedding{}).Error; err != nil {
			return err
		}
		return t.Delete(&fabric).Error
	})
}

func (r *fabricRepo) Stats(ctx context.Context, tx *gorm.DB) (*FabricStats, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	stats := &FabricStats{
		ByCategory: map[string]int64{},
		BySeason:   map[string]int64{},
	}
	if err := transaction.WithContext(ctx).Model(&types.Fabric{}).Count(&stats.TotalFabrics).Error; err != nil {
		return nil, err
	}
	if err := transaction.WithContext(ctx).Model(&types.FabricEmbedding{}).Count(&stats.TotalEmbeddings).Error; err != nil {
		return nil, err
	}
	if err := transaction.WithContext(ctx).Model(&types.GeneratedOutfit{}).Count(&stats.TotalOutfits).Error; err != nil {
		return nil, err
	}

	type bucket struct {
		Key   string
		Count int64
	}
	var byCategory []bucket
	if err := transaction.WithContext(ctx).
		Model(&types.Fabric{}).
		Select("category AS key, COUNT(*) AS count").
		Where("category <> ''").
		Group("category").
		Scan(&byCategory).Error; err != nil {
		return nil, err
	}
	for _, b := range byCategory {
		stats.ByCategory[b.Key] = b.Count
	}

	var bySeason []bucket
	if err := transaction.WithContext(ctx).
		Model(&types.FabricSeason{}).
		Select("season AS key, COUNT(*) AS count").
		Group("season").
		Scan(&bySeason).Error; err != nil {
		return nil, err
	}
	for _, b := range bySeason {
		stats.BySeason[b.Key] = b.Count
	}

	var latest types.Fabric
	err := transaction.WithContext(ctx).
		Where("scrape_date IS NOT NULL").
		Order("scrape_date DESC").
		First(&latest).Error
	if err == nil && !latest.ScrapeDate.IsZero() {
		stats.LastScrapeDate = &latest.ScrapeDate
	} else if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	return stats, nil
}
