package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
	"github.com/shkond/CloudVid-Bridge/queue-server/sessions"
)

// AuthMiddleware provides session authentication middleware for Gin
type AuthMiddleware struct {
	logger           logging.Logger
	userStoreFactory sessions.UserStoreFactory
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(logger logging.Logger, userStoreFactory sessions.UserStoreFactory) *AuthMiddleware {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &AuthMiddleware{
		logger:           logger,
		userStoreFactory: userStoreFactory,
	}
}

// RequireAuth middleware that requires an authenticated session
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userStore := m.userStoreFactory(c)

		user, err := userStore.GetUser()
		if err != nil {
			m.logger.Error("Error reading session", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Authentication error"})
			c.Abort()
			return
		}

		if user == nil {
			m.logger.Warn("Unauthenticated request", "path", c.Request.URL.Path)
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Authentication required"})
			c.Abort()
			return
		}

		// Store user information in context
		c.Set("userID", user.ID)
		c.Set("username", user.Username)

		c.Next()
	}
}
