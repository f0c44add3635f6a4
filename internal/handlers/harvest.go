package handlers

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/scraper"
	"github.com/henk-ai/fabric-backend/internal/services"
)

type HarvestHandler struct {
	pipeline *services.HarvestPipeline
	log      *logger.Logger

	mu      sync.Mutex
	running bool
}

func NewHarvestHandler(pipeline *services.HarvestPipeline, log *logger.Logger) *HarvestHandler {
	return &HarvestHandler{
		pipeline: pipeline,
		log:      log.With("handler", "HarvestHandler"),
	}
}

type harvestRequest struct {
	MaxRecords int `json:"max_records"`
}

// Run handles POST /api/harvest. Only one harvest may run at a time; a
// second request while one is in flight gets a conflict.
func (h *HarvestHandler) Run(c *gin.Context) {
	var req harvestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		RespondError(c, http.StatusConflict, "harvest_in_progress", errors.New("a harvest run is already in progress"))
		return
	}
	h.running = true
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
	}()

	summary, err := h.pipeline.Run(c.Request.Context(), req.MaxRecords)
	if err != nil {
		var authErr *scraper.AuthError
		if errors.As(err, &authErr) {
			RespondError(c, http.StatusBadGateway, "catalog_auth_failed", err)
			return
		}
		h.log.Error("Harvest pipeline failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "harvest_failed", err)
		return
	}
	RespondOK(c, summary)
}
