package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/repos"
	"github.com/henk-ai/fabric-backend/internal/utils"
)

type HealthHandler struct {
	fabrics    repos.FabricRepo
	embedModel string
	imageDir   string
	outfitDir  string
	log        *logger.Logger
}

func NewHealthHandler(fabrics repos.FabricRepo, embedModel string, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		fabrics:    fabrics,
		embedModel: embedModel,
		imageDir:   utils.GetEnv("FABRIC_IMAGE_STORAGE", "./storage/fabrics/images", nil),
		outfitDir:  utils.GetEnv("OUTFIT_IMAGE_STORAGE", "./storage/outfits", nil),
		log:        log.With("handler", "HealthHandler"),
	}
}

// Check handles GET /healthcheck. The response reports component
// configuration and catalog counts; an unreachable database degrades the
// status instead of failing the endpoint.
func (h *HealthHandler) Check(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"components": gin.H{
			"embedding_model":      h.embedModel,
			"image_model":          "dall-e-3",
			"fabric_image_storage": h.imageDir,
			"outfit_image_storage": h.outfitDir,
		},
	}

	stats, err := h.fabrics.Stats(c.Request.Context(), nil)
	if err != nil {
		h.log.Warn("Healthcheck could not read catalog stats", "error", err)
		resp["status"] = "degraded"
		resp["database"] = gin.H{"status": "unreachable"}
	} else {
		resp["database"] = stats
	}
	c.JSON(http.StatusOK, resp)
}
