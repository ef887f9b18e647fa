package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dm-service/internal/messaging"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
	"dm-service/internal/telemetry"
)

const maxPageSize = 500

// ChatHandler manages direct conversations and unread state.
type ChatHandler struct {
	service MessagingService
	audit   *telemetry.AuditEmitter
	logger  *zap.Logger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(service MessagingService, audit *telemetry.AuditEmitter, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{service: service, audit: audit, logger: logger}
}

// GetMessages returns the conversation with :friend_id, oldest first.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	page, ok := parsePage(c)
	if !ok {
		return
	}
	msgs, err := h.service.ListMessages(c.Request.Context(), currentUser(c), c.Param("friend_id"), page)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage sends a message to :friend_id.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var content models.Content
	if err := c.ShouldBindJSON(&content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), currentUser(c), c.Param("friend_id"), content)
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("send message failed",
				zap.String("request_id", requestIDFromContext(c)), zap.Error(err))
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead marks everything :friend_id sent to the caller as read.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	marked, err := h.service.MarkRead(c.Request.Context(), currentUser(c), c.Param("friend_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

// ClearConversation deletes the whole conversation with :friend_id for both
// participants.
func (h *ChatHandler) ClearConversation(c *gin.Context) {
	friendID := c.Param("friend_id")
	result, err := h.service.ClearConversation(c.Request.Context(), currentUser(c), friendID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	emitAudit(c, h.audit, "WARN", "conversation cleared with "+friendID)
	c.JSON(http.StatusOK, gin.H{
		"messages_deleted": result.MessagesDeleted,
		"blobs_released":   len(result.OrphanedBlobs),
	})
}

// GetUnread returns per-friend unread counts and their total.
func (h *ChatHandler) GetUnread(c *gin.Context) {
	counts, err := h.service.UnreadCounts(c.Request.Context(), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": counts, "total": messaging.UnreadTotal(counts)})
}

func parsePage(c *gin.Context) (repositories.Page, bool) {
	var page repositories.Page
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return page, false
		}
		page.Limit = min(limit, maxPageSize)
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return page, false
		}
		page.Offset = offset
	}
	return page, true
}
