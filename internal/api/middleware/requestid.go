package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/id"
	"go.uber.org/zap"
)

// RequestIDKey is the gin context key holding the request id
const RequestIDKey = "request_id"

// RequestID tags each request with an id, reusing a valid incoming one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if !id.IsValidPrefixed(rid, id.RequestPrefix) {
			rid = id.NewRequestID().String()
		}
		c.Set(RequestIDKey, rid)
		c.Header(HeaderRequestID, rid)
		c.Next()
	}
}

// Logger writes one line per request: debug when it succeeded, warn for
// client errors and error for server errors
func Logger(log *logging.Logger) gin.HandlerFunc {
	log = logging.OrNop(log).ForComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.GetString(RequestIDKey)),
		}
		if uid := c.GetHeader(HeaderCallerUID); uid != "" {
			fields = append(fields, zap.String("caller_uid", uid))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Debug("request", fields...)
		}
	}
}
