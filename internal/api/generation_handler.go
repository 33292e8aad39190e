package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomviz/roomviz-backend/internal/core"
	"github.com/roomviz/roomviz-backend/internal/db"
	"github.com/roomviz/roomviz-backend/internal/models"
)

// GenerationHandler exposes the generation gate.
type GenerationHandler struct {
	generationService core.GenerationService
	logger            *zap.Logger
}

// NewGenerationHandler creates a new GenerationHandler.
func NewGenerationHandler(gs core.GenerationService, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{generationService: gs, logger: logger}
}

func mapGenerationErrorToStatus(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, core.ErrNoCredits):
		c.JSON(http.StatusPaymentRequired, ErrorResponse{Error: "No credits left", Details: "Buy a credit package or upgrade your plan."})
	case errors.Is(err, core.ErrInvalidGenerationRequest):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid generation request", Details: err.Error()})
	case errors.Is(err, core.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "User profile not found"})
	case errors.Is(err, core.ErrGenerationFailed):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "Generation failed", Details: "No credit was used. Please try again."})
	default:
		logger.Error("Internal Server Error in GenerationHandler", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "An unexpected internal server error occurred."})
	}
}

// Generate handles POST /api/v1/generations.
func (h *GenerationHandler) Generate(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}

	result, err := h.generationService.Generate(c.Request.Context(), userID, req)
	if err != nil {
		mapGenerationErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, GenerateResponse{
		Generation:  result.Generation,
		Entitlement: result.Entitlement,
		Warning:     result.Warning,
	})
}

// ListGenerations handles GET /api/v1/generations.
func (h *GenerationHandler) ListGenerations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	params := paginationParams(c)
	gens, err := h.generationService.ListGenerations(c.Request.Context(), userID, params)
	if err != nil {
		mapGenerationErrorToStatus(c, h.logger, err)
		return
	}
	resp := ListGenerationsResponse{Generations: gens}
	if resp.Generations == nil {
		resp.Generations = []*models.Generation{}
	}
	if n := len(gens); n > 0 && n == db.PageLimit(params["limit"]) {
		resp.NextCursor = gens[n-1].ID
	}
	c.JSON(http.StatusOK, resp)
}
