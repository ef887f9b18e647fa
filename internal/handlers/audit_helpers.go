package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dm-service/internal/observability"
	"dm-service/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if id := observability.RequestID(c); id != "" {
		return id
	}
	requestID := observability.RequestIDFromRequest(c.Request)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if userID := currentUser(c); userID != "" {
		return &userID
	}
	return nil
}

func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, level, text string) {
	if audit == nil {
		return
	}
	audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
