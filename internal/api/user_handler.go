package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomviz/roomviz-backend/internal/core"
	"github.com/roomviz/roomviz-backend/internal/credits"
)

// UserHandler handles user-profile related API endpoints.
type UserHandler struct {
	userService core.UserService
	catalog     *credits.Catalog
	logger      *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(us core.UserService, catalog *credits.Catalog, logger *zap.Logger) *UserHandler {
	return &UserHandler{userService: us, catalog: catalog, logger: logger}
}

func mapUserErrorToStatus(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, core.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "User profile not found", Details: "Call /api/v1/users/initialize first."})
	case errors.Is(err, core.ErrInvalidAdjustment):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid adjustment", Details: err.Error()})
	default:
		logger.Error("Internal Server Error in UserHandler", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "An unexpected internal server error occurred."})
	}
}

// GetCurrentUserProfile handles GET /api/v1/users/me.
func (h *UserHandler) GetCurrentUserProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	account, err := h.userService.GetByID(c.Request.Context(), userID)
	if err != nil {
		mapUserErrorToStatus(c, h.logger, err)
		return
	}
	entitlement, err := h.userService.GetEntitlement(c.Request.Context(), userID)
	if err != nil {
		mapUserErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{Account: account, Entitlement: entitlement})
}

// GetCredits handles GET /api/v1/credits.
func (h *UserHandler) GetCredits(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	entitlement, err := h.userService.GetEntitlement(c.Request.Context(), userID)
	if err != nil {
		mapUserErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, entitlement)
}

// GetCatalog handles GET /api/v1/credits/packages.
func (h *UserHandler) GetCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, CatalogResponse{Packages: h.catalog.Packages()})
}
