package main

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/shkond/CloudVid-Bridge/core/ccc/auth"
	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
	"github.com/shkond/CloudVid-Bridge/core/config"
	"github.com/shkond/CloudVid-Bridge/core/drive"
	"github.com/shkond/CloudVid-Bridge/core/history"
	"github.com/shkond/CloudVid-Bridge/core/notifications"
	"github.com/shkond/CloudVid-Bridge/core/queue"
	"github.com/shkond/CloudVid-Bridge/core/quota"
	"github.com/shkond/CloudVid-Bridge/core/users"
	"github.com/shkond/CloudVid-Bridge/core/youtube"
	"github.com/shkond/CloudVid-Bridge/queue-server/handlers"
	"github.com/shkond/CloudVid-Bridge/queue-server/middleware"
	queue_sessions "github.com/shkond/CloudVid-Bridge/queue-server/sessions"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	// Load configuration from default path in user's home directory
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Save the config in case it was not found or updated
	if err := cfg.SaveConfig(""); err != nil {
		log.Printf("Failed to save configuration: %v", err)
	}

	// Set up logger
	logger := logging.CreateLogger(logging.LogLevel(cfg.LogLevel), cfg.LogPath, "queue-server")
	logger.Info("Starting queue server", "port", cfg.WebPort)

	// Set up database connection with SQLite optimizations for concurrency
	dbConn, err := sql.Open("sqlite3", cfg.DatabasePath+"?_journal_mode=WAL&_busy_timeout=30000&_synchronous=NORMAL&_cache_size=10000")
	if err != nil {
		logger.Error("Failed to open database", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	// Configure connection pool for better concurrency
	dbConn.SetMaxOpenConns(10)
	dbConn.SetMaxIdleConns(5)
	dbConn.SetConnMaxLifetime(30 * time.Minute)

	// Set up repositories
	jobRepo, err := queue.NewSQLiteJobRepository(dbConn)
	if err != nil {
		logger.Error("Failed to create job repository", err)
		os.Exit(1)
	}
	historyRepo, err := history.NewSQLiteHistoryRepository(dbConn)
	if err != nil {
		logger.Error("Failed to create history repository", err)
		os.Exit(1)
	}
	userRepo, err := users.NewSQLiteUserRepository(dbConn)
	if err != nil {
		logger.Error("Failed to create user repository", err)
		os.Exit(1)
	}

	// Set up services
	passwordHasher := users.NewPBKDF2PasswordHasher()
	userService := users.NewUserService(logger, userRepo, passwordHasher)
	userVerifier := users.NewUserVerifier(userRepo, passwordHasher)
	queueService := queue.NewQueueService(logger, jobRepo)
	batchService := queue.NewBatchService(logger, queueService, historyRepo)
	quotaTracker := quota.NewMemoryTracker(logger, quota.TrackerSettings{
		DailyLimit: cfg.QuotaDailyLimit,
		Costs:      cfg.QuotaCosts,
	})

	// Set up platform clients
	driveClient := drive.NewDriveClient(logger, cfg.DriveBaseURL, cfg.DriveAccessToken, 2*time.Minute)
	youtubeClient := youtube.NewYouTubeClient(logger, cfg.YouTubeBaseURL, cfg.YouTubeUploadBaseURL, cfg.YouTubeAccessToken, 2*time.Minute)

	// Create the initial user account when the user table is still empty
	if err := bootstrapAdminUser(logger, cfg, userService); err != nil {
		logger.Error("Failed to create initial user", err)
		os.Exit(1)
	}

	// Set up session store
	sessionKey, err := queue_sessions.GetOrCreateSessionKey()
	if err != nil {
		logger.Error("Failed to get or create session key", err)
		os.Exit(1)
	}
	sessionStore := sessions.NewCookieStore(sessionKey)
	userStoreFactory := queue_sessions.NewUserStoreFactory(sessionStore)

	// Set up login throttling
	failureTracker := auth.NewMemoryFailureTracker(auth.LockoutSettings{
		Threshold:  cfg.LoginFailureThreshold,
		TimeWindow: time.Duration(cfg.LoginFailureWindowSeconds) * time.Second,
	})

	// Lockout alerts are off unless an SMTP host and recipient are set
	lockoutNotifier := notifications.NopLockoutNotifier
	if cfg.NotificationsEnabled() {
		sender := notifications.NewSmtpSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
		lockoutNotifier = notifications.NewEmailLockoutNotifier(notifications.LockoutNotificationSettings{
			Recipient:        cfg.NotifyRecipient,
			MinInterval:      time.Duration(cfg.NotifyMinIntervalMinutes) * time.Minute,
			FailureThreshold: cfg.LoginFailureThreshold,
		}, sender, logger)
		logger.Info("Email notifications enabled", "recipient", cfg.NotifyRecipient)
	}

	// Set up handlers
	authHandler := handlers.NewAuthHandler(logger, userVerifier, userStoreFactory, failureTracker, lockoutNotifier)
	queueHandler := handlers.NewQueueHandler(logger, queueService, historyRepo)
	driveHandler := handlers.NewDriveHandler(logger, driveClient, batchService)
	youtubeHandler := handlers.NewYouTubeHandler(logger, youtubeClient, driveClient, historyRepo, quotaTracker)

	// Set up middleware
	authMiddleware := middleware.NewAuthMiddleware(logger, userStoreFactory)

	// Set up Gin router
	router := initializeGin(cfg)
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	setupRoutes(router, authMiddleware, authHandler, queueHandler, driveHandler, youtubeHandler)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.WebAddr, cfg.WebPort)
	logger.Info("Server listening", "address", addr)

	if err := http.ListenAndServe(addr, router); err != nil {
		logger.Error("Server failed to start", err)
		os.Exit(1)
	}
}

// bootstrapAdminUser creates the configured admin account on first start
func bootstrapAdminUser(logger logging.Logger, cfg *config.Config, userService users.UserService) error {
	hasUsers, err := userService.HasUsers()
	if err != nil {
		return err
	}
	if hasUsers {
		return nil
	}

	if cfg.AdminUsername == "" {
		logger.Warn("No users exist and no admin user is configured, logins will fail")
		return nil
	}

	_, err = userService.CreateUser(users.CreateUserRequest{
		Username: cfg.AdminUsername,
		Password: cfg.AdminPassword,
	})
	if err != nil {
		return err
	}

	logger.Info("Created initial admin user", "username", cfg.AdminUsername)
	return nil
}

// setupRoutes configures the HTTP routes
func setupRoutes(
	router *gin.Engine,
	authMiddleware *middleware.AuthMiddleware,
	authHandler *handlers.AuthHandler,
	queueHandler *handlers.QueueHandler,
	driveHandler *handlers.DriveHandler,
	youtubeHandler *handlers.YouTubeHandler,
) {
	// Public routes (authentication)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// Health check endpoint (no auth required)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "queue-server",
		})
	})

	// Queue management
	queueGroup := router.Group("/queue")
	queueGroup.Use(authMiddleware.RequireAuth())
	{
		queueGroup.POST("/jobs", queueHandler.AddJob)
		queueGroup.GET("/jobs", queueHandler.ListJobs)
		queueGroup.GET("/jobs/:id", queueHandler.GetJob)
		queueGroup.POST("/jobs/:id/cancel", queueHandler.CancelJob)
		queueGroup.POST("/jobs/:id/retry", queueHandler.RetryJob)
		queueGroup.DELETE("/jobs/:id", queueHandler.DeleteJob)
		queueGroup.POST("/clear", queueHandler.ClearQueue)
		queueGroup.GET("/status", queueHandler.GetStatus)
		queueGroup.GET("/history", queueHandler.GetHistory)
		queueGroup.GET("/batch/:batchId", queueHandler.GetBatch)
	}

	// Drive folder operations
	driveGroup := router.Group("/drive")
	driveGroup.Use(authMiddleware.RequireAuth())
	{
		driveGroup.POST("/folder/upload", driveHandler.UploadFolder)
		driveGroup.GET("/folder/:id/scan", driveHandler.ScanFolder)
	}

	// YouTube account and quota
	youtubeGroup := router.Group("/youtube")
	youtubeGroup.Use(authMiddleware.RequireAuth())
	{
		youtubeGroup.GET("/quota", youtubeHandler.GetQuota)
		youtubeGroup.GET("/video/:id/exists", youtubeHandler.VideoExists)
		youtubeGroup.GET("/channel", youtubeHandler.GetChannel)
		youtubeGroup.GET("/videos", youtubeHandler.ListVideos)
		youtubeGroup.POST("/upload", youtubeHandler.UploadVideo)
	}
}
