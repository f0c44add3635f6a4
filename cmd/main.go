package main

import (
	"fmt"
	"os"

	"github.com/henk-ai/fabric-backend/internal/db"
	"github.com/henk-ai/fabric-backend/internal/handlers"
	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/repos"
	"github.com/henk-ai/fabric-backend/internal/scraper"
	"github.com/henk-ai/fabric-backend/internal/server"
	"github.com/henk-ai/fabric-backend/internal/services"
	"github.com/henk-ai/fabric-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.SeedCategories(); err != nil {
		log.Error("Category seeding failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	fabricRepo := repos.NewFabricRepo(thePG, log)
	embeddingRepo := repos.NewFabricEmbeddingRepo(thePG, log)
	categoryRepo := repos.NewFabricCategoryRepo(thePG, log)
	outfitRepo := repos.NewGeneratedOutfitRepo(thePG, log)
	recommendationRepo := repos.NewFabricRecommendationRepo(thePG, log)

	// Scraper
	log.Info("Setting up catalog scraper from main...")
	scraperCfg := scraper.LoadConfig(log)
	gateway, err := scraper.NewGateway(scraperCfg, log)
	if err != nil {
		log.Error("Could not init scraper gateway", "error", err)
		os.Exit(1)
	}
	harvester := scraper.NewHarvester(scraperCfg, gateway, log)

	// Services
	log.Info("Setting up Services from main...")
	openaiClient, err := services.NewOpenAIClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
	embedCache, err := services.NewQueryEmbedCache(log)
	if err != nil {
		log.Warn("Could not init query embedding cache, continuing without it", "error", err)
		embedCache = nil
	}
	processor := services.NewFabricProcessor(openaiClient, embeddingRepo, services.LoadProcessorConfig(log), log)
	recommendationService := services.NewRecommendationService(
		openaiClient,
		embedCache,
		fabricRepo,
		embeddingRepo,
		recommendationRepo,
		services.LoadRecommendationConfig(log),
		log,
	)
	outfitService := services.NewOutfitService(openaiClient, recommendationService, fabricRepo, outfitRepo, log)
	swatchRenderer := services.NewSwatchRenderer(fabricRepo, log)
	pipeline := services.NewHarvestPipeline(harvester, fabricRepo, processor, swatchRenderer, log)
	csvImporter := services.NewCSVImporter(fabricRepo, processor, scraper.NewImageFetcher(scraperCfg, log), swatchRenderer, log)

	// Handlers
	log.Info("Setting up Handlers from main...")
	healthHandler := handlers.NewHealthHandler(fabricRepo, openaiClient.EmbedModel(), log)
	fabricHandler := handlers.NewFabricHandler(fabricRepo, categoryRepo, log)
	recommendationHandler := handlers.NewRecommendationHandler(recommendationService, log)
	outfitHandler := handlers.NewOutfitHandler(outfitService, log)
	harvestHandler := handlers.NewHarvestHandler(pipeline, log)
	importHandler := handlers.NewImportHandler(csvImporter, log)

	// Router
	router := server.NewRouter(server.RouterConfig{
		HealthHandler:         healthHandler,
		FabricHandler:         fabricHandler,
		RecommendationHandler: recommendationHandler,
		OutfitHandler:         outfitHandler,
		HarvestHandler:        harvestHandler,
		ImportHandler:         importHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
