package adminserver

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Logger logs every request with method, path, client, status, and
// latency through the injected logger rather than the stdlib log
// package.
func Logger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("client", c.ClientIP()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("adminserver: request")
	}
}

// Recovery wraps Gin's panic recovery and logs the panic through the
// injected logger instead of writing straight to stderr.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		log.Error().Interface("panic", recovered).Msg("adminserver: recovered")
		c.AbortWithStatusJSON(500, gin.H{"error": "internal error"})
	})
}
