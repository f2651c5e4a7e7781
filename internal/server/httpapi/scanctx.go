package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/tixgate/tixgate/internal/model"
)

// scanCtxKey is the gin context key holding the authenticated scan context.
const scanCtxKey = "tixgate.scan_ctx"

// withScanContext stores the immutable scan context for downstream handlers.
func withScanContext(c *gin.Context, sc model.ScanContext) {
	c.Set(scanCtxKey, sc)
}

// ScanContext returns the authenticated scan context of the request.
func ScanContext(c *gin.Context) (model.ScanContext, bool) {
	v, ok := c.Get(scanCtxKey)
	if !ok {
		return model.ScanContext{}, false
	}
	sc, ok := v.(model.ScanContext)
	return sc, ok
}
