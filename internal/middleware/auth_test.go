package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dm-service/internal/auth"
	"dm-service/internal/mocks"
)

func setupRouter(authenticator auth.Authenticator, users UserRegistrar) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(authenticator, users, nil), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("userID"))
	})
	return r
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	authenticator := auth.NewJWTAuthenticator("secret", "")
	token, err := authenticator.Issue("alice", time.Hour)
	require.NoError(t, err)

	users := new(mocks.MessagingServiceMock)
	users.On("RegisterUser", mock.Anything, "alice").Return(nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	setupRouter(authenticator, users).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())
	users.AssertExpectations(t)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	authenticator := auth.NewJWTAuthenticator("secret", "")
	users := new(mocks.MessagingServiceMock)

	for _, header := range []string{"", "Token abc", "Bearer", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		setupRouter(authenticator, users).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
	users.AssertNotCalled(t, "RegisterUser", mock.Anything, mock.Anything)
}

func TestAuthMiddlewareStoreDown(t *testing.T) {
	authenticator := auth.NewJWTAuthenticator("secret", "")
	token, err := authenticator.Issue("alice", time.Hour)
	require.NoError(t, err)

	users := new(mocks.MessagingServiceMock)
	users.On("RegisterUser", mock.Anything, "alice").Return(assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	setupRouter(authenticator, users).ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
