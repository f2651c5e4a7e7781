package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tixgate/tixgate/internal/audit"
	"github.com/tixgate/tixgate/internal/limiter"
	"github.com/tixgate/tixgate/internal/service"
)

// RequestLogger logs request metadata; never payloads.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", c.ClientIP()),
		)
	}
}

// BearerAuth validates the access token and constructs the scan context once,
// up front. Downstream code receives it by parameter, never re-derives it.
func BearerAuth(signKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		sc, err := service.ParseAccessToken(token, signKey)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		withScanContext(c, sc)
		c.Next()
	}
}

// RateLimit applies the per-actor scan attempt limit. A limited request gets
// a generic 429 and never reaches the ledger.
func RateLimit(lim limiter.Limiter, sink audit.Emitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := ScanContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		allowed, retryAfter, err := lim.Allow(c.Request.Context(), sc.ActorID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal"})
			return
		}
		if !allowed {
			sink.Emit(c.Request.Context(), audit.Event{
				Kind: audit.KindRateLimited, ActorID: sc.ActorID, DeviceID: sc.DeviceID,
			})
			c.Header("Retry-After", strconv.Itoa(int(retryAfter/time.Second)+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}
