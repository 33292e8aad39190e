package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware turns a handler panic into a 500 ErrorResponse. The
// request id is echoed in Details so a caller report can be matched to the
// logged stack trace.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		panic("RecoveryMiddleware requires a non-nil zap.Logger instance")
	}
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			requestID := c.GetString(ContextRequestID)
			logger.Error("Handler panicked",
				zap.String("request_id", requestID),
				zap.String("user_id", c.GetString(ContextUserID)),
				zap.String("route", c.FullPath()),
				zap.String("panic", fmt.Sprint(rec)),
				zap.ByteString("stack", debug.Stack()),
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			resp := ErrorResponse{Error: "An unexpected internal server error occurred."}
			if requestID != "" {
				resp.Details = "request id " + requestID
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
		}()
		c.Next()
	}
}
