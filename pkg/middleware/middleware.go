package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"linkrelay/internal/logger"
	"linkrelay/pkg/errors"
	"linkrelay/pkg/logging"
	"linkrelay/pkg/tracing"
)

const HeaderRequestID = "X-Request-ID"

func LoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		if raw != "" {
			path = path + "?" + raw
		}

		logFields := []interface{}{
			"status", statusCode,
			"latency", latency,
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
		}

		if errorMessage != "" {
			logFields = append(logFields, "error", errorMessage)
		}

		ctx := c.Request.Context()
		if statusCode >= 500 {
			log.ErrorwCtx(ctx, "HTTP Request", logFields...)
		} else {
			log.InfowCtx(ctx, "HTTP Request", logFields...)
		}
	}
}

func RecoveryMiddleware(log logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		err := errors.RecoverPanic(recovered)
		log.ErrorwCtx(c.Request.Context(), "Panic recovered",
			"error", err,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		c.AbortWithStatusJSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
	})
}

// RequestIDMiddleware takes X-Request-ID from the caller or generates one, and
// puts it together with the current trace id into the request context so
// every log line of the request carries both.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(HeaderRequestID, requestID)

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		if traceID := tracing.TraceID(ctx); traceID != "" {
			ctx = logging.WithTraceID(ctx, traceID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
