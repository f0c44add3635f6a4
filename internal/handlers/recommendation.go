package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/repos"
	"github.com/henk-ai/fabric-backend/internal/services"
)

type RecommendationHandler struct {
	svc *services.RecommendationService
	log *logger.Logger
}

func NewRecommendationHandler(svc *services.RecommendationService, log *logger.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		svc: svc,
		log: log.With("handler", "RecommendationHandler"),
	}
}

type searchRequest struct {
	Query         string  `json:"query" binding:"required"`
	TopK          int     `json:"top_k"`
	MinSimilarity float64 `json:"min_similarity"`
	SessionID     string  `json:"session_id"`
}

// Search handles POST /api/fabrics/search.
func (h *RecommendationHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	matches, recID, err := h.svc.Search(c.Request.Context(), req.SessionID, req.Query, req.TopK, req.MinSimilarity)
	if err != nil {
		if errors.Is(err, repos.ErrDimensionMismatch) {
			h.log.Error("Vector index is inconsistent", "error", err)
			RespondError(c, http.StatusInternalServerError, "index_inconsistent", err)
			return
		}
		h.log.Error("Fabric search failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "search_failed", err)
		return
	}
	RespondOK(c, gin.H{
		"recommendation_id": recID,
		"results":           matches,
		"count":             len(matches),
	})
}

type recommendRequest struct {
	services.RecommendationPrefs
	Limit     int    `json:"limit"`
	SessionID string `json:"session_id"`
}

// Recommend handles POST /api/fabrics/recommend.
func (h *RecommendationHandler) Recommend(c *gin.Context) {
	var req recommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Occasion == "" || req.Season == "" {
		RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("occasion and season are required"))
		return
	}
	matches, recID, err := h.svc.Recommend(c.Request.Context(), req.SessionID, req.RecommendationPrefs, req.Limit)
	if err != nil {
		h.log.Error("Fabric recommendation failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "recommend_failed", err)
		return
	}
	RespondOK(c, gin.H{
		"recommendation_id": recID,
		"results":           matches,
		"count":             len(matches),
	})
}

type feedbackRequest struct {
	Feedback           int    `json:"feedback" binding:"required"`
	SelectedFabricCode string `json:"selected_fabric_code"`
}

// Feedback handles POST /api/fabrics/recommendations/:id/feedback.
func (h *RecommendationHandler) Feedback(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", errors.New("recommendation id must be a uuid"))
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Feedback < 1 || req.Feedback > 5 {
		RespondError(c, http.StatusBadRequest, "invalid_feedback", errors.New("feedback must be between 1 and 5"))
		return
	}
	if err := h.svc.AttachFeedback(c.Request.Context(), id, req.Feedback, req.SelectedFabricCode); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", errors.New("recommendation or fabric not found"))
			return
		}
		h.log.Error("Failed to record feedback", "recommendation_id", id, "error", err)
		RespondError(c, http.StatusInternalServerError, "feedback_failed", err)
		return
	}
	RespondOK(c, gin.H{"status": "recorded"})
}
