package main

import (
	"database/sql"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
	"github.com/shkond/CloudVid-Bridge/core/config"
	"github.com/shkond/CloudVid-Bridge/core/drive"
	"github.com/shkond/CloudVid-Bridge/core/history"
	"github.com/shkond/CloudVid-Bridge/core/media"
	"github.com/shkond/CloudVid-Bridge/core/notifications"
	"github.com/shkond/CloudVid-Bridge/core/queue"
	"github.com/shkond/CloudVid-Bridge/core/quota"
	"github.com/shkond/CloudVid-Bridge/core/youtube"
	"github.com/shkond/CloudVid-Bridge/upload-worker/worker"

	_ "github.com/mattn/go-sqlite3"
)

// drainTimeout caps the wait for an in-flight transfer on shutdown. Heroku
// force kills the dyno 30 seconds after SIGTERM.
const drainTimeout = 25 * time.Second

func main() {
	// Load configuration from default path in user's home directory
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Set up logger
	logger := logging.CreateLogger(logging.LogLevel(cfg.LogLevel), cfg.LogPath, "upload-worker")
	logger.Info("Starting upload worker", "poll_seconds", cfg.WorkerPollSeconds)

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

	// Set up services
	queueService := queue.NewQueueService(logger, jobRepo)
	quotaTracker := quota.NewMemoryTracker(logger, quota.TrackerSettings{
		DailyLimit: cfg.QuotaDailyLimit,
		Costs:      cfg.QuotaCosts,
	})

	// Set up platform clients. Transfers stream whole video files, so the
	// clients run without an overall request timeout.
	driveClient := drive.NewDriveClient(logger, cfg.DriveBaseURL, cfg.DriveAccessToken, 0)
	youtubeClient := youtube.NewYouTubeClient(logger, cfg.YouTubeBaseURL, cfg.YouTubeUploadBaseURL, cfg.YouTubeAccessToken, 0)
	prober := media.NewFFmpegProber(logger)

	// Set up the staging directory for downloads
	tempDir := cfg.WorkerTempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		logger.Error("Failed to create temp directory", err)
		os.Exit(1)
	}

	// Email notifications are off unless an SMTP host and recipient are set
	uploadNotifier := notifications.NopUploadNotifier
	quotaNotifier := notifications.NopQuotaNotifier
	if cfg.NotificationsEnabled() {
		sender := notifications.NewSmtpSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
		minInterval := time.Duration(cfg.NotifyMinIntervalMinutes) * time.Minute

		uploadNotifier = notifications.NewEmailUploadNotifier(notifications.UploadNotificationSettings{
			Recipient:   cfg.NotifyRecipient,
			MinInterval: minInterval,
		}, sender, logger)
		quotaNotifier = notifications.NewEmailQuotaNotifier(notifications.QuotaNotificationSettings{
			Recipient:        cfg.NotifyRecipient,
			MinInterval:      minInterval,
			WarningThreshold: cfg.QuotaWarningThreshold,
		}, sender, logger)
		logger.Info("Email notifications enabled", "recipient", cfg.NotifyRecipient)
	}

	uploadWorker := worker.NewUploadWorker(logger, queueService, historyRepo, quotaTracker,
		driveClient, youtubeClient, prober, uploadNotifier, quotaNotifier, worker.Settings{
			PollInterval: time.Duration(cfg.WorkerPollSeconds) * time.Second,
			TempDir:      tempDir,
		})

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	stopChan := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go uploadWorker.Start(stopChan, &wg)

	// Wait for shutdown signal
	<-sigChan
	logger.Info("Shutdown signal received, stopping worker")
	close(stopChan)

	// Wait for the current transfer to finish, with a timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Upload worker shut down cleanly")
	case <-time.After(drainTimeout):
		logger.Warn("Timed out waiting for the current transfer, forcing shutdown")
	}
}
