package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dm-service/internal/blobstore"
)

const maxAttachmentSize = 25 << 20

// AttachmentHandler stores and serves message attachments.
type AttachmentHandler struct {
	service MessagingService
	logger  *zap.Logger
}

// NewAttachmentHandler builds an AttachmentHandler.
func NewAttachmentHandler(service MessagingService, logger *zap.Logger) *AttachmentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentHandler{service: service, logger: logger}
}

// Upload stores the multipart "file" field and returns its blob ref.
func (h *AttachmentHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if header.Size > maxAttachmentSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer file.Close()

	meta := blobstore.Metadata{
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Filename:    header.Filename,
	}
	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}
	ref, err := h.service.UploadAttachment(c.Request.Context(), file, meta)
	if err != nil {
		h.logger.Error("attachment upload failed", zap.String("user_id", currentUser(c)), zap.Error(err))
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"blob_ref":  ref,
		"size":      meta.Size,
		"mime_type": meta.ContentType,
	})
}

// Download streams a stored attachment.
func (h *AttachmentHandler) Download(c *gin.Context) {
	body, meta, err := h.service.FetchAttachment(c.Request.Context(), c.Param("blob_ref"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer body.Close()

	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}
	size := meta.Size
	if size <= 0 {
		size = -1
	}
	c.DataFromReader(http.StatusOK, size, meta.ContentType, body, nil)
}
