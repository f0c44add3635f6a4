package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/services"
)

type OutfitHandler struct {
	svc *services.OutfitService
	log *logger.Logger
}

func NewOutfitHandler(svc *services.OutfitService, log *logger.Logger) *OutfitHandler {
	return &OutfitHandler{
		svc: svc,
		log: log.With("handler", "OutfitHandler"),
	}
}

type generateRequest struct {
	services.OutfitSpec
	UseRAG *bool `json:"use_rag"`
}

// Generate handles POST /api/outfits/generate.
func (h *OutfitHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Occasion == "" || req.Season == "" {
		RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("occasion and season are required"))
		return
	}
	useRAG := true
	if req.UseRAG != nil {
		useRAG = *req.UseRAG
	}
	outfit, err := h.svc.Generate(c.Request.Context(), req.OutfitSpec, useRAG)
	if err != nil {
		h.respondGenerationError(c, err)
		return
	}
	RespondOK(c, outfit)
}

type variantsRequest struct {
	services.OutfitSpec
	NumVariants int `json:"num_variants"`
}

// GenerateVariants handles POST /api/outfits/generate-variants.
func (h *OutfitHandler) GenerateVariants(c *gin.Context) {
	var req variantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Occasion == "" || req.Season == "" {
		RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("occasion and season are required"))
		return
	}
	results := h.svc.GenerateVariants(c.Request.Context(), req.OutfitSpec, req.NumVariants)
	succeeded := 0
	for _, r := range results {
		if r.Outfit != nil {
			succeeded++
		}
	}
	RespondOK(c, gin.H{
		"variants":  results,
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	})
}

// Showcase handles POST /api/outfits/showcase/:code.
func (h *OutfitHandler) Showcase(c *gin.Context) {
	outfit, err := h.svc.GenerateShowcase(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.respondGenerationError(c, err)
		return
	}
	RespondOK(c, outfit)
}

func (h *OutfitHandler) respondGenerationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownFabric):
		RespondError(c, http.StatusNotFound, "unknown_fabric", err)
	case errors.Is(err, services.ErrGenerationRejected):
		RespondError(c, http.StatusUnprocessableEntity, "generation_rejected", err)
	default:
		h.log.Error("Outfit generation failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "generation_failed", err)
	}
}
