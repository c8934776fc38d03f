package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/shkond/CloudVid-Bridge/core/ccc/auth"
	"github.com/shkond/CloudVid-Bridge/core/ccc/db"
	"github.com/shkond/CloudVid-Bridge/core/users"
	"github.com/shkond/CloudVid-Bridge/queue-server/middleware"
	queue_sessions "github.com/shkond/CloudVid-Bridge/queue-server/sessions"
)

// setupAuthRouter builds a router with a registered user alice, login throttling
// that locks after three failures and a protected probe route behind the session
// middleware
func setupAuthRouter(t *testing.T) (*gin.Engine, func()) {
	gin.SetMode(gin.TestMode)

	testDB, err := db.NewInMemoryDB()
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}

	userRepo, err := users.NewSQLiteUserRepository(testDB)
	if err != nil {
		testDB.Close()
		t.Fatalf("Failed to create user repository: %v", err)
	}

	hasher := users.NewPBKDF2PasswordHasher()
	userService := users.NewUserService(nil, userRepo, hasher)
	if _, err := userService.CreateUser(users.CreateUserRequest{Username: "alice", Password: "password123"}); err != nil {
		testDB.Close()
		t.Fatalf("Failed to create test user: %v", err)
	}
	verifier := users.NewUserVerifier(userRepo, hasher)

	sessionStore := sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"))
	userStoreFactory := queue_sessions.NewUserStoreFactory(sessionStore)

	failureTracker := auth.NewMemoryFailureTracker(auth.LockoutSettings{Threshold: 3, TimeWindow: time.Minute})

	authHandler := NewAuthHandler(nil, verifier, userStoreFactory, failureTracker, nil)
	authMiddleware := middleware.NewAuthMiddleware(nil, userStoreFactory)

	router := gin.New()
	router.POST("/auth/login", authHandler.Login)
	router.POST("/auth/logout", authHandler.Logout)

	protected := router.Group("/protected")
	protected.Use(authMiddleware.RequireAuth())
	protected.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": c.GetString("username")})
	})

	cleanup := func() {
		testDB.Close()
	}

	return router, cleanup
}

func performWithCookies(router *gin.Engine, method, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func loginAlice(t *testing.T, router *gin.Engine) []*http.Cookie {
	t.Helper()

	w := performJSON(router, "POST", "/auth/login", gin.H{"username": "alice", "password": "password123"})
	if w.Code != http.StatusOK {
		t.Fatalf("Login failed with status %d: %s", w.Code, w.Body.String())
	}
	return w.Result().Cookies()
}

func TestAuthHandler_Login(t *testing.T) {
	router, cleanup := setupAuthRouter(t)
	defer cleanup()

	w := performJSON(router, "POST", "/auth/login", gin.H{"username": "alice", "password": "password123"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("Expected user object in response, got %v", body)
	}
	if user["username"] != "alice" {
		t.Errorf("Expected username alice, got %v", user["username"])
	}
	if user["id"] == "" {
		t.Error("Expected user ID in response")
	}

	if len(w.Result().Cookies()) == 0 {
		t.Error("Expected a session cookie")
	}
}

func TestAuthHandler_Login_WrongPassword(t *testing.T) {
	router, cleanup := setupAuthRouter(t)
	defer cleanup()

	w := performJSON(router, "POST", "/auth/login", gin.H{"username": "alice", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["detail"] != "Invalid credentials" {
		t.Errorf("Expected invalid credentials detail, got %v", body["detail"])
	}
}

func TestAuthHandler_Login_UnknownUser(t *testing.T) {
	router, cleanup := setupAuthRouter(t)
	defer cleanup()

	w := performJSON(router, "POST", "/auth/login", gin.H{"username": "mallory", "password": "password123"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestAuthHandler_Login_MissingFields(t *testing.T) {
	router, cleanup := setupAuthRouter(t)
	defer cleanup()

	w := performJSON(router, "POST", "/auth/login", gin.H{"username": "alice"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestAuthHandler_Login_LockoutAfterRepeatedFailures(t *testing.T) {
	router, cleanup := setupAuthRouter(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		w := performJSON(router, "POST", "/auth/login", gin.H{"username": "alice", "password": "wrong"})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("Expected status 401 on attempt %d, got %d", i+1, w.Code)
		}
	}

	// Even the correct password is rejected while the account is locked
	w := performJSON(router, "POST", "/auth/login", gin.H{"username": "alice", "password": "password123"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["detail"] != "Too many failed login attempts" {
		t.Errorf("Expected lockout detail, got %v", body["detail"])
	}
}

func TestAuthHandler_Login_SuccessClearsFailures(t *testing.T) {
	router, cleanup := setupAuthRouter(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		performJSON(router, "POST", "/auth/login", gin.H{"username": "alice", "password": "wrong"})
	}

	w := performJSON(router, "POST", "/auth/login", gin.H{"username": "alice", "password": "password123"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	// The earlier failures no longer count toward the lockout threshold
	for i := 0; i < 2; i++ {
		performJSON(router, "POST", "/auth/login", gin.H{"username": "alice", "password": "wrong"})
	}
	w = performJSON(router, "POST", "/auth/login", gin.H{"username": "alice", "password": "password123"})
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 after failures were cleared, got %d", w.Code)
	}
}

func TestAuthMiddleware_RejectsUnauthenticated(t *testing.T) {
	router, cleanup := setupAuthRouter(t)
	defer cleanup()

	w := performWithCookies(router, "GET", "/protected", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["detail"] != "Authentication required" {
		t.Errorf("Expected authentication required detail, got %v", body["detail"])
	}
}

func TestAuthMiddleware_AllowsAuthenticated(t *testing.T) {
	router, cleanup := setupAuthRouter(t)
	defer cleanup()

	cookies := loginAlice(t, router)

	w := performWithCookies(router, "GET", "/protected", cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["username"] != "alice" {
		t.Errorf("Expected username alice from context, got %v", body["username"])
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	router, cleanup := setupAuthRouter(t)
	defer cleanup()

	cookies := loginAlice(t, router)

	w := performWithCookies(router, "POST", "/auth/logout", cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	// The logout response carries the cleared session cookie
	cleared := w.Result().Cookies()
	w = performWithCookies(router, "GET", "/protected", cleared)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 after logout, got %d", w.Code)
	}
}
