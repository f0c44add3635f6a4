package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Chunk types form a closed classification of what aspect of a fabric the
// chunk text describes.
const (
	ChunkTypeCharacteristics = "characteristics"
	ChunkTypeVisual          = "visual"
	ChunkTypeUsage           = "usage"
	ChunkTypeTechnical       = "technical"
)

// ChunkTypes lists every chunk type in the order chunks are built.
var ChunkTypes = []string{
	ChunkTypeCharacteristics,
	ChunkTypeVisual,
	ChunkTypeUsage,
	ChunkTypeTechnical,
}

// ChunkID derives the deterministic chunk identity for a fabric and type.
func ChunkID(fabricCode, chunkType string) string {
	return fmt.Sprintf("%s_%s", fabricCode, chunkType)
}

type FabricEmbedding struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	FabricID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"fabric_id"`
	ChunkID   string         `gorm:"size:255;uniqueIndex;not null" json:"chunk_id"`
	ChunkType string         `gorm:"size:50;not null;index" json:"chunk_type"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	Embedding datatypes.JSON `gorm:"column:embedding" json:"-"`
	Model     string         `gorm:"size:100;not null;index" json:"model"`
	Metadata  datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (FabricEmbedding) TableName() string {
	return "fabric_embeddings"
}

func (e *FabricEmbedding) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Vector decodes the stored embedding column.
func (e *FabricEmbedding) Vector() ([]float32, error) {
	if len(e.Embedding) == 0 {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal(e.Embedding, &v); err != nil {
		return nil, fmt.Errorf("decode embedding for chunk %s: %w", e.ChunkID, err)
	}
	return v, nil
}

// SetVector encodes the vector into the embedding column.
func (e *FabricEmbedding) SetVector(v []float32) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e.Embedding = datatypes.JSON(b)
	return nil
}
