package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dm-service/internal/auth"
)

// UserRegistrar records authenticated identities in the user directory.
type UserRegistrar interface {
	RegisterUser(ctx context.Context, userID string) error
}

// AuthMiddleware validates the bearer token, registers the caller and sets
// "userID" on the context.
func AuthMiddleware(authenticator auth.Authenticator, users UserRegistrar, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		userID, err := authenticator.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if err := users.RegisterUser(c.Request.Context(), userID); err != nil {
			logger.Warn("register user failed", zap.String("user_id", userID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}
