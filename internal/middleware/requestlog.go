package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caselight/caselight-backend/internal/logger"
)

// RequestLog logs one line per request after completion. Bodies are never
// logged; uploaded documents pass through these routes.
func RequestLog(log *logger.Logger) gin.HandlerFunc {
	log = log.With("middleware", "RequestLog")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= 500:
			log.Error("request failed", fields...)
		case status >= 400:
			log.Warn("request rejected", fields...)
		default:
			log.Info("request served", fields...)
		}
	}
}
