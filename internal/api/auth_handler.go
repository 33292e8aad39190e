package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomviz/roomviz-backend/internal/core"
	"github.com/roomviz/roomviz-backend/internal/middleware"
)

// AuthHandler handles authentication related API endpoints.
type AuthHandler struct {
	userService core.UserService
	logger      *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(us core.UserService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{userService: us, logger: logger}
}

// InitializeUserProfile handles POST /api/v1/users/initialize. Clients call
// it after every Firebase sign-in; the account and signup bonus are created
// on the first call only.
func (h *AuthHandler) InitializeUserProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	email := c.GetString(middleware.ContextUserEmail)
	displayName := c.GetString(middleware.ContextUserDisplayName)
	photoURL := c.GetString(middleware.ContextUserPhotoURL)

	account, created, err := h.userService.GetOrCreate(c.Request.Context(), userID, email, displayName, photoURL)
	if err != nil {
		h.logger.Error("Failed to initialize user profile", zap.String("userId", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to initialize user profile"})
		return
	}

	entitlement, err := h.userService.GetEntitlement(c.Request.Context(), userID)
	if err != nil {
		mapUserErrorToStatus(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		h.logger.Info("User profile created", zap.String("userId", userID))
		status = http.StatusCreated
	}
	c.JSON(status, ProfileResponse{Account: account, Entitlement: entitlement})
}
