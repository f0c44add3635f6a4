package services

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/repos"
	"github.com/henk-ai/fabric-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// The in-memory database exists per connection; the pool must not open a
	// second one.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	err = db.AutoMigrate(
		&types.Fabric{},
		&types.FabricSeason{},
		&types.FabricImage{},
		&types.FabricCategory{},
		&types.FabricEmbedding{},
		&types.FabricRecommendation{},
		&types.GeneratedOutfit{},
		&types.OutfitFabric{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeOpenAI satisfies OpenAIClient with canned behavior so no network is
// touched in tests.
type fakeOpenAI struct {
	embedFn    func(ctx context.Context, inputs []string) ([][]float32, error)
	imageFn    func(ctx context.Context, prompt string) (*GeneratedImage, error)
	embedCalls int
	imageCalls int
}

func (f *fakeOpenAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.embedCalls++
	if f.embedFn != nil {
		return f.embedFn(ctx, inputs)
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeOpenAI) EmbedModel() string {
	return "text-embedding-3-small"
}

func (f *fakeOpenAI) GenerateImage(ctx context.Context, prompt string) (*GeneratedImage, error) {
	f.imageCalls++
	if f.imageFn != nil {
		return f.imageFn(ctx, prompt)
	}
	return &GeneratedImage{
		B64JSON:       "aGVsbG8=",
		RevisedPrompt: "revised: " + prompt,
		Model:         "dall-e-3",
		Size:          "1024x1024",
	}, nil
}

// seedFabric writes a fabric with optional seasons and a matching embedding
// vector per chunk type is left to the caller.
func seedFabric(t *testing.T, repo repos.FabricRepo, fabric *types.Fabric, seasons []string) *types.Fabric {
	t.Helper()
	persisted, err := repo.Upsert(context.Background(), nil, fabric, seasons, nil)
	if err != nil {
		t.Fatalf("seed fabric %s: %v", fabric.FabricCode, err)
	}
	return persisted
}

func seedEmbedding(t *testing.T, repo repos.FabricEmbeddingRepo, fabric *types.Fabric, chunkType string, vec []float32) {
	t.Helper()
	row := &types.FabricEmbedding{
		FabricID:  fabric.ID,
		ChunkID:   types.ChunkID(fabric.FabricCode, chunkType),
		ChunkType: chunkType,
		Content:   "Fabric Code: " + fabric.FabricCode,
		Model:     "text-embedding-3-small",
	}
	if err := row.SetVector(vec); err != nil {
		t.Fatalf("set vector: %v", err)
	}
	if err := repo.Upsert(context.Background(), nil, []*types.FabricEmbedding{row}); err != nil {
		t.Fatalf("seed embedding %s: %v", row.ChunkID, err)
	}
}
