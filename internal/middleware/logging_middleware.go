// internal/middleware/logging_middleware.go
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"printer-service/internal/utils"
)

// probePaths are polled by orchestrators and the POS status widget
var probePaths = map[string]bool{
	"/health": true,
	"/ready":  true,
	"/live":   true,
}

// LoggingMiddleware logs every request with its request id. Successful
// health probes and swagger assets are logged at debug.
func LoggingMiddleware(logger *utils.ServiceLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		duration := time.Since(startTime)

		path := c.Request.URL.Path
		status := c.Writer.Status()

		if status < 400 && (probePaths[path] || strings.HasPrefix(path, "/swagger/")) {
			logger.Debug("API request",
				zap.String("method", c.Request.Method),
				zap.String("path", path),
				zap.Int("status_code", status),
				zap.Duration("duration", duration),
			)
			return
		}

		logger.LogAPIRequest(
			c.Request.Method,
			path,
			c.GetString("request_id"),
			c.ClientIP(),
			status,
			duration,
		)
	}
}
