package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/henk-ai/fabric-backend/internal/handlers"
)

type RouterConfig struct {
	HealthHandler         *handlers.HealthHandler
	FabricHandler         *handlers.FabricHandler
	RecommendationHandler *handlers.RecommendationHandler
	OutfitHandler         *handlers.OutfitHandler
	HarvestHandler        *handlers.HarvestHandler
	ImportHandler         *handlers.ImportHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", cfg.HealthHandler.Check)

	api := router.Group("/api")
	{
		// Fabrics
		api.GET("/fabrics", cfg.FabricHandler.List)
		api.GET("/fabrics/stats", cfg.FabricHandler.Stats)
		api.GET("/fabrics/:code", cfg.FabricHandler.Get)
		api.GET("/categories", cfg.FabricHandler.Categories)
		// Retrieval
		api.POST("/fabrics/search", cfg.RecommendationHandler.Search)
		api.POST("/fabrics/recommend", cfg.RecommendationHandler.Recommend)
		api.POST("/fabrics/recommendations/:id/feedback", cfg.RecommendationHandler.Feedback)
		// Outfits
		api.POST("/outfits/generate", cfg.OutfitHandler.Generate)
		api.POST("/outfits/generate-variants", cfg.OutfitHandler.GenerateVariants)
		api.POST("/outfits/showcase/:code", cfg.OutfitHandler.Showcase)
		// Ingestion
		api.POST("/harvest", cfg.HarvestHandler.Run)
		api.POST("/import-csv", cfg.ImportHandler.Run)
	}

	return router
}
