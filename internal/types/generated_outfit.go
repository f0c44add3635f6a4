package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultUsageRole is recorded when the caller does not say which garment a
// fabric is for.
const DefaultUsageRole = "unspecified"

type GeneratedOutfit struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OutfitID string    `gorm:"size:100;uniqueIndex;not null" json:"outfit_id"`

	Occasion           string         `gorm:"size:100;not null;index" json:"occasion"`
	Season             string         `gorm:"size:20;not null;index" json:"season"`
	StylePreferences   datatypes.JSON `json:"style_preferences"`
	ColorPreferences   datatypes.JSON `json:"color_preferences"`
	PatternPreferences datatypes.JSON `json:"pattern_preferences"`
	AdditionalNotes    string         `gorm:"type:text" json:"additional_notes"`

	Prompt         string `gorm:"column:generation_prompt;type:text;not null" json:"prompt"`
	RevisedPrompt  string `gorm:"type:text" json:"revised_prompt"`
	ImageURL       string `gorm:"type:text" json:"image_url"`
	LocalImagePath string `gorm:"type:text" json:"local_image_path"`

	GenerationMetadata datatypes.JSON `json:"generation_metadata,omitempty"`
	GeneratedAt        time.Time      `gorm:"index" json:"generated_at"`
	CreatedAt          time.Time      `gorm:"not null" json:"created_at"`

	Fabrics []OutfitFabric `gorm:"foreignKey:OutfitID;references:ID" json:"fabrics,omitempty"`
}

func (GeneratedOutfit) TableName() string {
	return "generated_outfits"
}

func (o *GeneratedOutfit) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OutfitFabric keeps the historical association between an outfit and the
// fabrics it was generated from. Rows survive fabric deletion: outfit history
// is never cascade-deleted through fabrics.
type OutfitFabric struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OutfitID   uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_outfit_fabric_role,priority:1" json:"outfit_id"`
	FabricID   uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_outfit_fabric_role,priority:2" json:"fabric_id"`
	FabricCode string    `gorm:"size:50" json:"fabric_code"`
	UsageRole  string    `gorm:"column:usage_type;size:50;uniqueIndex:uq_outfit_fabric_role,priority:3" json:"usage_role"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (OutfitFabric) TableName() string {
	return "outfit_fabrics"
}

func (f *OutfitFabric) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.UsageRole == "" {
		f.UsageRole = DefaultUsageRole
	}
	return nil
}
