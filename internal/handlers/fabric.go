package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/repos"
)

type FabricHandler struct {
	fabrics    repos.FabricRepo
	categories repos.FabricCategoryRepo
	log        *logger.Logger
}

func NewFabricHandler(fabrics repos.FabricRepo, categories repos.FabricCategoryRepo, log *logger.Logger) *FabricHandler {
	return &FabricHandler{
		fabrics:    fabrics,
		categories: categories,
		log:        log.With("handler", "FabricHandler"),
	}
}

// List handles GET /api/fabrics with optional category/season/color/pattern
// and limit query parameters.
func (h *FabricHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", errors.New("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}
	filter := repos.FabricFilter{
		Category: c.Query("category"),
		Season:   c.Query("season"),
		Color:    c.Query("color"),
		Pattern:  c.Query("pattern"),
		Limit:    limit,
	}
	fabrics, err := h.fabrics.List(c.Request.Context(), nil, filter)
	if err != nil {
		h.log.Error("Failed to list fabrics", "error", err)
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"fabrics": fabrics, "count": len(fabrics)})
}

// Get handles GET /api/fabrics/:code.
func (h *FabricHandler) Get(c *gin.Context) {
	code := c.Param("code")
	fabric, err := h.fabrics.GetByCode(c.Request.Context(), nil, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			RespondError(c, http.StatusNotFound, "fabric_not_found", errors.New("fabric not found: "+code))
			return
		}
		h.log.Error("Failed to load fabric", "fabric_code", code, "error", err)
		RespondError(c, http.StatusInternalServerError, "get_failed", err)
		return
	}
	RespondOK(c, fabric)
}

// Stats handles GET /api/fabrics/stats.
func (h *FabricHandler) Stats(c *gin.Context) {
	stats, err := h.fabrics.Stats(c.Request.Context(), nil)
	if err != nil {
		h.log.Error("Failed to compute fabric stats", "error", err)
		RespondError(c, http.StatusInternalServerError, "stats_failed", err)
		return
	}
	RespondOK(c, stats)
}

// Categories handles GET /api/categories.
func (h *FabricHandler) Categories(c *gin.Context) {
	categories, err := h.categories.List(c.Request.Context(), nil)
	if err != nil {
		h.log.Error("Failed to list categories", "error", err)
		RespondError(c, http.StatusInternalServerError, "categories_failed", err)
		return
	}
	RespondOK(c, gin.H{"categories": categories})
}
