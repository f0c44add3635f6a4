package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Season values accepted by the fabric_seasons check constraint.
const (
	SeasonSpring = "spring"
	SeasonSummer = "summer"
	SeasonFall   = "fall"
	SeasonWinter = "winter"
)

func ValidSeason(s string) bool {
	switch s {
	case SeasonSpring, SeasonSummer, SeasonFall, SeasonWinter:
		return true
	}
	return false
}

type Fabric struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	FabricCode       string         `gorm:"size:50;uniqueIndex;not null" json:"fabric_code"`
	Name             string         `gorm:"size:255" json:"name"`
	Composition      string         `gorm:"type:text;index" json:"composition"`
	Weight           int            `gorm:"column:weight" json:"weight"` // grams/m², 0 = unknown
	Color            string         `gorm:"size:100;index" json:"color"`
	Pattern          string         `gorm:"size:100;index" json:"pattern"`
	PriceCategory    string         `gorm:"size:50" json:"price_category"`
	StockStatus      string         `gorm:"size:50;index" json:"stock_status"`
	Supplier         string         `gorm:"size:100;index;default:Formens" json:"supplier"`
	Origin           string         `gorm:"size:100" json:"origin"`
	Description      string         `gorm:"type:text" json:"description"`
	CareInstructions string         `gorm:"type:text" json:"care_instructions"`
	Category         string         `gorm:"size:100;index" json:"category"`
	ScrapeDate       time.Time      `json:"scrape_date"`
	Metadata         datatypes.JSON `gorm:"column:additional_metadata" json:"additional_metadata,omitempty"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`

	Seasons    []FabricSeason    `gorm:"constraint:OnDelete:CASCADE;foreignKey:FabricID" json:"seasons,omitempty"`
	Images     []FabricImage     `gorm:"constraint:OnDelete:CASCADE;foreignKey:FabricID" json:"images,omitempty"`
	Embeddings []FabricEmbedding `gorm:"constraint:OnDelete:CASCADE;foreignKey:FabricID" json:"-"`
}

func (Fabric) TableName() string {
	return "fabrics"
}

func (f *Fabric) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// SeasonNames flattens the season rows into plain strings.
func (f *Fabric) SeasonNames() []string {
	out := make([]string, 0, len(f.Seasons))
	for _, s := range f.Seasons {
		out = append(out, s.Season)
	}
	return out
}

// InSeason reports whether the fabric is valid for the given season. A fabric
// with no season rows is valid year-round.
func (f *Fabric) InSeason(season string) bool {
	if len(f.Seasons) == 0 {
		return true
	}
	for _, s := range f.Seasons {
		if s.Season == season {
			return true
		}
	}
	return false
}

type FabricSeason struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FabricID  uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_fabric_season,priority:1" json:"fabric_id"`
	Season    string    `gorm:"size:20;not null;uniqueIndex:uq_fabric_season,priority:2" json:"season"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (FabricSeason) TableName() string {
	return "fabric_seasons"
}

func (s *FabricSeason) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type FabricImage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FabricID  uuid.UUID `gorm:"type:uuid;not null;index" json:"fabric_id"`
	ImageURL  string    `gorm:"type:text" json:"image_url"`
	LocalPath string    `gorm:"type:text" json:"local_path"`
	ImageType string    `gorm:"size:50;index" json:"image_type"` // primary|additional|texture
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	FileSize  int       `json:"file_size"`
	Format    string    `gorm:"size:10" json:"format"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (FabricImage) TableName() string {
	return "fabric_images"
}

func (i *FabricImage) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
