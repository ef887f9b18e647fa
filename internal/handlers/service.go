package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"dm-service/internal/blobstore"
	"dm-service/internal/messaging"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

// MessagingService is the part of messaging.Service the HTTP API uses.
type MessagingService interface {
	ListFriends(ctx context.Context, userID string) ([]string, error)
	AddFriend(ctx context.Context, userID, friendID string) (models.Friendship, error)
	RemoveFriend(ctx context.Context, userID, friendID string) error
	SendMessage(ctx context.Context, senderID, recipientID string, content models.Content) (models.Message, error)
	ListMessages(ctx context.Context, viewerID, friendID string, page repositories.Page) ([]models.Message, error)
	MarkRead(ctx context.Context, viewerID, friendID string) (int, error)
	ClearConversation(ctx context.Context, viewerID, friendID string) (repositories.ClearResult, error)
	UnreadCounts(ctx context.Context, viewerID string) (map[string]int, error)
	UploadAttachment(ctx context.Context, body io.Reader, meta blobstore.Metadata) (string, error)
	FetchAttachment(ctx context.Context, ref string) (io.ReadCloser, blobstore.Metadata, error)
}

var _ MessagingService = (*messaging.Service)(nil)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, messaging.ErrEmptyContent), errors.Is(err, messaging.ErrSelfReference):
		return http.StatusBadRequest
	case errors.Is(err, messaging.ErrNotFriends):
		return http.StatusForbidden
	case errors.Is(err, messaging.ErrUnknownUser), errors.Is(err, messaging.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, messaging.ErrAlreadyFriends):
		return http.StatusConflict
	case errors.Is(err, messaging.ErrDeliveryFailed):
		return http.StatusBadGateway
	case errors.Is(err, messaging.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// abortWithError writes the mapped status. Unmapped errors get a generic
// message so internals do not leak.
func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func currentUser(c *gin.Context) string {
	return c.GetString("userID")
}
