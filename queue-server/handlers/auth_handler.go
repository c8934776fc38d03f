package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shkond/CloudVid-Bridge/core/ccc/auth"
	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
	"github.com/shkond/CloudVid-Bridge/core/notifications"
	"github.com/shkond/CloudVid-Bridge/core/users"
	"github.com/shkond/CloudVid-Bridge/queue-server/sessions"
)

// AuthHandler handles login and logout
type AuthHandler struct {
	logger           logging.Logger
	verifier         users.UserVerifier
	userStoreFactory sessions.UserStoreFactory
	failureTracker   auth.FailureTracker
	lockoutNotifier  notifications.LockoutNotifier
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(logger logging.Logger, verifier users.UserVerifier, userStoreFactory sessions.UserStoreFactory, failureTracker auth.FailureTracker, lockoutNotifier notifications.LockoutNotifier) *AuthHandler {
	if logger == nil {
		logger = logging.NopLogger
	}
	if failureTracker == nil {
		failureTracker = auth.NopFailureTracker
	}
	if lockoutNotifier == nil {
		lockoutNotifier = notifications.NopLockoutNotifier
	}

	return &AuthHandler{
		logger:           logger,
		verifier:         verifier,
		userStoreFactory: userStoreFactory,
		failureTracker:   failureTracker,
		lockoutNotifier:  lockoutNotifier,
	}
}

// LoginRequest represents the expected login request body
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid login request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Username and password are required"})
		return
	}

	now := time.Now()
	if h.failureTracker.IsLockedOut(req.Username, now) {
		h.logger.Warn("Login attempt on locked account", "username", req.Username, "ip", c.ClientIP())
		c.JSON(http.StatusTooManyRequests, gin.H{"detail": "Too many failed login attempts"})
		return
	}

	valid, user, err := h.verifier.VerifyUser(req.Username, req.Password)
	if err != nil {
		if users.IsUserVerificationError(err) {
			h.rejectLogin(c, req.Username, now)
			return
		}
		h.logger.Error("Error verifying user", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Authentication error"})
		return
	}

	if !valid {
		h.rejectLogin(c, req.Username, now)
		return
	}

	h.failureTracker.ClearFailures(req.Username)

	userStore := h.userStoreFactory(c)
	if err := userStore.SetUser(&sessions.SessionUser{ID: user.ID, Username: user.Username}); err != nil {
		h.logger.Error("Failed to save session", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to create session"})
		return
	}

	h.logger.Info("User logged in", "username", user.Username)

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
		},
	})
}

// rejectLogin books the failed attempt and answers with 401
func (h *AuthHandler) rejectLogin(c *gin.Context, username string, now time.Time) {
	failures := h.failureTracker.RecordFailure(username, c.ClientIP(), now)
	h.logger.Warn("Login failed", "username", username, "failures", failures)

	if h.lockoutNotifier.ShouldNotify(failures) {
		if err := h.lockoutNotifier.NotifyAccountLocked(username, failures, c.ClientIP()); err != nil {
			h.logger.Warn("Failed to send lockout notification", "error", err, "username", username)
		}
	}

	c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid credentials"})
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userStore := h.userStoreFactory(c)
	if err := userStore.Clear(); err != nil {
		h.logger.Error("Failed to clear session", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to clear session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}
