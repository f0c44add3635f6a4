package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RecommendedFabric is one ranked entry inside the recommended_fabrics
// snapshot column.
type RecommendedFabric struct {
	FabricID   uuid.UUID `json:"fabric_id"`
	FabricCode string    `json:"fabric_code"`
	Score      float64   `json:"score"`
}

// FabricRecommendation is an append-only audit row. One row is written per
// search or recommend call, including calls that matched nothing.
type FabricRecommendation struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID          string         `gorm:"size:100;index" json:"session_id"`
	UserQuery          string         `gorm:"type:text;not null" json:"user_query"`
	QueryEmbedding     datatypes.JSON `gorm:"column:query_embedding" json:"-"`
	RecommendedFabrics datatypes.JSON `gorm:"column:recommended_fabrics" json:"recommended_fabrics"`
	UserFeedback       *int           `gorm:"column:user_feedback" json:"user_feedback,omitempty"` // 1..5
	SelectedFabricID   *uuid.UUID     `gorm:"type:uuid" json:"selected_fabric_id,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;index" json:"created_at"`
}

func (FabricRecommendation) TableName() string {
	return "fabric_recommendations"
}

func (r *FabricRecommendation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// SetRecommended encodes the ranked result snapshot.
func (r *FabricRecommendation) SetRecommended(items []RecommendedFabric) error {
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	r.RecommendedFabrics = datatypes.JSON(b)
	return nil
}

// Recommended decodes the ranked result snapshot.
func (r *FabricRecommendation) Recommended() ([]RecommendedFabric, error) {
	if len(r.RecommendedFabrics) == 0 {
		return nil, nil
	}
	var items []RecommendedFabric
	if err := json.Unmarshal(r.RecommendedFabrics, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SetQueryVector encodes the query embedding column.
func (r *FabricRecommendation) SetQueryVector(v []float32) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.QueryEmbedding = datatypes.JSON(b)
	return nil
}
