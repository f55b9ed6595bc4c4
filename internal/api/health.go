package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health handles GET /api/health: liveness plus a best-effort dependency
// check against the database and the coordination cache.
func (h *Handler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	dbStatus := "ok"
	if err := h.store.Ping(ctx); err != nil {
		dbStatus = "down"
	}

	cacheStatus := "ok"
	if err := h.cache.Ping(ctx); err != nil {
		cacheStatus = "down"
	}

	status := "ok"
	if dbStatus != "ok" || cacheStatus != "ok" {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"services": gin.H{
			"database":   dbStatus,
			"redis":      cacheStatus,
			"hocuspocus": "ok",
		},
		"version": h.version,
		"uptime":  time.Since(h.startedAt).String(),
	})
}
