package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dm-service/internal/telemetry"
)

// FriendHandler manages the caller's friend list.
type FriendHandler struct {
	service MessagingService
	audit   *telemetry.AuditEmitter
	logger  *zap.Logger
}

// NewFriendHandler builds a FriendHandler.
func NewFriendHandler(service MessagingService, audit *telemetry.AuditEmitter, logger *zap.Logger) *FriendHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FriendHandler{service: service, audit: audit, logger: logger}
}

// ListFriends returns the caller's friends in lexicographic order.
func (h *FriendHandler) ListFriends(c *gin.Context) {
	friends, err := h.service.ListFriends(c.Request.Context(), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// AddFriend befriends the user named in the body.
func (h *FriendHandler) AddFriend(c *gin.Context) {
	var req struct {
		FriendID string `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := currentUser(c)
	friendship, err := h.service.AddFriend(c.Request.Context(), userID, strings.TrimSpace(req.FriendID))
	if err != nil {
		abortWithError(c, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "friend added: "+req.FriendID)
	c.JSON(http.StatusCreated, gin.H{
		"friend_id":  friendship.Other(userID),
		"created_at": friendship.CreatedAt,
	})
}

// RemoveFriend drops a friendship. Message history is kept.
func (h *FriendHandler) RemoveFriend(c *gin.Context) {
	friendID := c.Param("friend_id")
	if err := h.service.RemoveFriend(c.Request.Context(), currentUser(c), friendID); err != nil {
		abortWithError(c, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "friend removed: "+friendID)
	c.Status(http.StatusNoContent)
}
