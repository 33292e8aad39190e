package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roomviz/roomviz-backend/internal/middleware"
)

// currentUserID reads the id set by the auth middleware and writes a 401
// when it is missing.
func currentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Authentication error: User ID not found in context"})
		return "", false
	}
	return userID, true
}

// paginationParams extracts limit and startAfter from the query string.
func paginationParams(c *gin.Context) map[string]string {
	params := make(map[string]string)
	if limit := c.Query("limit"); limit != "" {
		params["limit"] = limit
	}
	if startAfter := c.Query("startAfter"); startAfter != "" {
		params["startAfter"] = startAfter
	}
	return params
}
