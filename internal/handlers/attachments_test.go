package handlers

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dm-service/internal/blobstore"
	"dm-service/internal/messaging"
	"dm-service/internal/mocks"
)

func setupAttachmentRouter(handler *AttachmentHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "alice")
		c.Next()
	})
	r.POST("/attachments", handler.Upload)
	r.GET("/attachments/:blob_ref", handler.Download)
	return r
}

func TestUploadAttachment(t *testing.T) {
	svc := new(mocks.MessagingServiceMock)
	router := setupAttachmentRouter(NewAttachmentHandler(svc, nil))

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	svc.On("UploadAttachment", mock.Anything, mock.Anything, mock.MatchedBy(func(meta blobstore.Metadata) bool {
		return meta.Filename == "notes.txt" && meta.Size == 5
	})).Return("ref-1", nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/attachments", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"blob_ref":"ref-1"`)
	svc.AssertExpectations(t)
}

func TestUploadAttachmentMissingFile(t *testing.T) {
	router := setupAttachmentRouter(NewAttachmentHandler(new(mocks.MessagingServiceMock), nil))

	req := httptest.NewRequest(http.MethodPost, "/attachments", strings.NewReader(""))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadAttachment(t *testing.T) {
	svc := new(mocks.MessagingServiceMock)
	router := setupAttachmentRouter(NewAttachmentHandler(svc, nil))
	svc.On("FetchAttachment", mock.Anything, "ref-1").
		Return(io.NopCloser(strings.NewReader("hello")), blobstore.Metadata{ContentType: "text/plain", Size: 5}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/attachments/ref-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestDownloadAttachmentNotFound(t *testing.T) {
	svc := new(mocks.MessagingServiceMock)
	router := setupAttachmentRouter(NewAttachmentHandler(svc, nil))
	svc.On("FetchAttachment", mock.Anything, "missing").Return(nil, nil, messaging.ErrNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/attachments/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
