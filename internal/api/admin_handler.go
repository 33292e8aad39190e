package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomviz/roomviz-backend/internal/core"
	"github.com/roomviz/roomviz-backend/internal/models"
)

// AdminHandler serves the back-office endpoints. Routes are guarded by
// AuthMiddleware.RequireAdmin.
type AdminHandler struct {
	userService core.UserService
	logger      *zap.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(us core.UserService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{userService: us, logger: logger}
}

// GetUser handles GET /api/v1/admin/users/:userId.
func (h *AdminHandler) GetUser(c *gin.Context) {
	targetID := c.Param("userId")
	account, err := h.userService.GetByID(c.Request.Context(), targetID)
	if err != nil {
		mapUserErrorToStatus(c, h.logger, err)
		return
	}
	entitlement, err := h.userService.GetEntitlement(c.Request.Context(), targetID)
	if err != nil {
		mapUserErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{Account: account, Entitlement: entitlement})
}

// AdjustCredits handles POST /api/v1/admin/users/:userId/credits.
func (h *AdminHandler) AdjustCredits(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.AdjustCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}

	targetID := c.Param("userId")
	account, err := h.userService.AdjustCredits(c.Request.Context(), actorID, targetID, req)
	if err != nil {
		mapUserErrorToStatus(c, h.logger, err)
		return
	}
	entitlement, err := h.userService.GetEntitlement(c.Request.Context(), targetID)
	if err != nil {
		mapUserErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{Account: account, Entitlement: entitlement})
}
