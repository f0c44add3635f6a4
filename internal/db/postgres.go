package db

import (
	"encoding/json"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/types"
	"github.com/henk-ai/fabric-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	log.Info("Loading environment variables...")
	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "fabric_intelligence", log)
	log.Debug("Environment variables loaded")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		log.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}
	log.Info("uuid-ossp extension enabled")

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.Fabric{},
		&types.FabricSeason{},
		&types.FabricImage{},
		&types.FabricCategory{},
		&types.FabricEmbedding{},
		&types.GeneratedOutfit{},
		&types.OutfitFabric{},
		&types.FabricRecommendation{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	s.log.Info("Configuring foreign key relationships for postgres tables...")
	// Fabric children cascade with their fabric. Outfit association rows only
	// cascade with the outfit; deleting a fabric must not erase outfit history.
	constraints := []struct {
		table, name, column, refTable, onDelete string
	}{
		{"fabric_seasons", "fk_fabric_seasons_fabric_id", "fabric_id", "fabrics", "CASCADE"},
		{"fabric_images", "fk_fabric_images_fabric_id", "fabric_id", "fabrics", "CASCADE"},
		{"fabric_embeddings", "fk_fabric_embeddings_fabric_id", "fabric_id", "fabrics", "CASCADE"},
		{"outfit_fabrics", "fk_outfit_fabrics_outfit_id", "outfit_id", "generated_outfits", "CASCADE"},
	}
	for _, c := range constraints {
		stmt := fmt.Sprintf(`
			ALTER TABLE %q DROP CONSTRAINT IF EXISTS %q;
			ALTER TABLE %q
			ADD CONSTRAINT %q
			FOREIGN KEY (%q)
			REFERENCES %q("id")
			ON DELETE %s
		`, c.table, c.name, c.table, c.name, c.column, c.refTable, c.onDelete)
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to add %s: %w", c.name, err)
		}
	}
	if err := s.db.Exec(`
		ALTER TABLE "fabric_seasons" DROP CONSTRAINT IF EXISTS "ck_fabric_seasons_season";
		ALTER TABLE "fabric_seasons"
		ADD CONSTRAINT "ck_fabric_seasons_season"
		CHECK (season IN ('spring', 'summer', 'fall', 'winter'))
	`).Error; err != nil {
		return fmt.Errorf("failed to add ck_fabric_seasons_season: %w", err)
	}
	if err := s.db.Exec(`
		ALTER TABLE "fabric_embeddings" DROP CONSTRAINT IF EXISTS "ck_fabric_embeddings_chunk_type";
		ALTER TABLE "fabric_embeddings"
		ADD CONSTRAINT "ck_fabric_embeddings_chunk_type"
		CHECK (chunk_type IN ('characteristics', 'visual', 'usage', 'technical'))
	`).Error; err != nil {
		return fmt.Errorf("failed to add ck_fabric_embeddings_chunk_type: %w", err)
	}
	return nil
}

// categorySeed mirrors the suiting taxonomy the catalog is organized around.
var categorySeed = []struct {
	slug, name  string
	occasions   []string
	description string
}{
	{"ceremony", "Ceremony Suits", []string{"wedding", "formal_event", "gala"}, "Formal suiting fabrics for weddings, galas and formal events"},
	{"business", "Business Suits", []string{"business", "office", "professional"}, "Professional suiting fabrics for office and business wear"},
	{"casual", "Casual Wear", []string{"casual", "smart_casual", "weekend"}, "Relaxed fabrics for smart casual and weekend wear"},
	{"seasonal", "Seasonal Collections", []string{"varied"}, "Rotating seasonal fabric collections"},
}

// SeedCategories inserts the fixed category taxonomy. Existing rows are left
// untouched so operator edits survive restarts.
func (s *PostgresService) SeedCategories() error {
	s.log.Info("Seeding fabric categories...")
	for _, c := range categorySeed {
		occ, err := json.Marshal(c.occasions)
		if err != nil {
			return fmt.Errorf("failed to encode occasions for %s: %w", c.slug, err)
		}
		row := types.FabricCategory{
			Name:        c.name,
			Slug:        c.slug,
			Description: c.description,
			Occasions:   occ,
		}
		if err := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoNothing: true,
		}).Create(&row).Error; err != nil {
			s.log.Error("Failed to seed fabric category", "slug", c.slug, "error", err)
			return fmt.Errorf("failed to seed category %s: %w", c.slug, err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
