package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/service"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/response"
)

type recommendationService interface {
	Recommend(ctx context.Context, actor *models.JWTClaims, limit int) ([]service.Recommendation, error)
}

// RecommendationHandler wires HTTP endpoints to the recommendation service.
type RecommendationHandler struct {
	service recommendationService
}

// NewRecommendationHandler creates a new handler.
func NewRecommendationHandler(svc recommendationService) *RecommendationHandler {
	return &RecommendationHandler{service: svc}
}

// List godoc
// @Summary Recommended events
// @Description Upcoming events ranked by the caller's registration history
// @Tags Events
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum results" default(3)
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /events/recommendations [get]
func (h *RecommendationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	recommendations, err := h.service.Recommend(c.Request.Context(), claims, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, recommendations, nil)
}
