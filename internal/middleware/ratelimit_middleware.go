package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomviz/roomviz-backend/pkg/cache"
)

// RateLimit allows limit requests per user per window. It must run after
// VerifyToken. Counter failures let the request through.
func RateLimit(counter cache.WindowCounter, scope string, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if counter == nil || limit <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserID)
		if userID == "" {
			c.Next()
			return
		}

		key := fmt.Sprintf("roomviz:rate_limit:%s:%s", scope, userID)
		count, ttl, err := counter.IncrWindow(c.Request.Context(), key, window)
		if err != nil {
			logger.Warn("Rate limiter unavailable; allowing request", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(int64(limit)-count, 0), 10))
		if count > int64(limit) {
			retryAfter := int(math.Ceil(ttl.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error:   "Too many requests",
				Details: fmt.Sprintf("limit of %d per %s reached", limit, window),
			})
			return
		}
		c.Next()
	}
}
