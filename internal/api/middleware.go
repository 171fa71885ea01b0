package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// observe records every request in http_requests_total and the duration
// histogram, labelled by route template rather than raw path.
func (h *Handler) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		d := time.Since(start)
		status := c.Writer.Status()
		h.metrics.RecordHTTPRequest(c.Request.Context(), c.Request.Method, c.FullPath(), status, d)
		h.logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("duration", d))
	}
}
