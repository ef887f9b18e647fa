package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dm-service/internal/telemetry"
	"dm-service/internal/ws"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, hub *ws.Hub, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitAudit(c, emitter, "INFO", "audit test")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/hub", func(c *gin.Context) {
		resp := gin.H{"sessions": hub.Sessions()}
		if topic := c.Query("topic"); topic != "" {
			resp["topic"] = topic
			resp["subscribers"] = hub.Subscribers(topic)
		}
		c.JSON(http.StatusOK, resp)
	})
}
