// internal/api/middleware.go
package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	CorrelationHeader = "X-Correlation-ID"
	correlationKey    = "correlation_id"
)

// CorrelationID reaproveita o X-Correlation-ID do request ou gera um novo.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(CorrelationHeader, id)
		c.Set(correlationKey, id)
		c.Next()
	}
}

// GetCorrelationID devolve o id posto por CorrelationID, ou "" fora dele.
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(correlationKey)
}

func RequestLogger() gin.HandlerFunc {
	log := slog.With("component", "api")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("HTTP request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes_written", c.Writer.Size(),
			"correlation_id", GetCorrelationID(c),
		)
	}
}

func Recovery() gin.HandlerFunc {
	log := slog.With("component", "api")
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("Panic recovered",
					"error", err,
					"stack_trace", string(debug.Stack()),
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"correlation_id", GetCorrelationID(c),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error":   http.StatusText(http.StatusInternalServerError),
				})
			}
		}()
		c.Next()
	}
}
