package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/underpines/pines/internal/identity"
	"github.com/underpines/pines/pkg/logging"
	"github.com/underpines/pines/pkg/telemetry"
)

const headerRequestID = "X-Request-ID"

// RequestLogger tags each request with an id, puts a request scoped logger on its context
// and logs the outcome once the handler returns.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		logger := logging.WithRequestID(reqID).With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)

		ctx, span := telemetry.StartSpan(c.Request.Context(), c.Request.Method+" "+c.FullPath())
		defer span.End()

		c.Header(headerRequestID, reqID)
		c.Request = c.Request.WithContext(logging.IntoContext(ctx, logger))

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if userID := identity.CallerID(c); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		if c.Writer.Status() >= 500 {
			logger.Warn("Request completed", fields...)
			return
		}
		logger.Info("Request completed", fields...)
	}
}
