// Package httpapi exposes the gate server's HTTP/JSON API: manifest
// distribution, real-time validation, and the check-in authority, wrapped by
// the access guard (auth, rate limiting, audit).
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tixgate/tixgate/internal/audit"
	"github.com/tixgate/tixgate/internal/grant"
	"github.com/tixgate/tixgate/internal/limiter"
	"github.com/tixgate/tixgate/internal/manifest"
	"github.com/tixgate/tixgate/internal/service"
)

// Deps collects everything the router needs.
type Deps struct {
	Log       *zap.Logger
	SignKey   []byte
	Auth      service.AuthService
	Manifests *manifest.Builder
	CheckIns  service.CheckInService
	Validator service.ValidateService
	Stats     service.StatsService
	Scope     *grant.Resolver
	Limiter   limiter.Limiter
	Audit     audit.Emitter
	Ready     func(ctx context.Context) error
}

// NewRouter wires public endpoints and the authenticated scanner API.
func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(d.Log))

	h := &handlers{
		auth:      d.Auth,
		manifests: d.Manifests,
		checkins:  d.CheckIns,
		validator: d.Validator,
		stats:     d.Stats,
		scope:     d.Scope,
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if d.Ready != nil {
			if err := d.Ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.POST("/auth/token", h.postToken)

	// Every authenticated entry point passes the rate limiter: scan attempts
	// and manifest/stats reads alike, so code guessing cannot be displaced
	// onto unthrottled endpoints.
	authed := r.Group("/")
	authed.Use(BearerAuth(d.SignKey), RateLimit(d.Limiter, d.Audit))

	authed.GET("/events/:id/manifest", h.getManifest)
	authed.GET("/events/:id/check-in-stats", h.getStats)
	authed.GET("/organizers/:id/scan-scope", h.getScanScope)

	scanner := authed.Group("/scanner")
	scanner.POST("/validate", h.postValidate)
	scanner.POST("/batch-validate", h.postBatchValidate)
	scanner.POST("/check-in", h.postCheckIn)

	return r
}
