package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
	"github.com/shkond/CloudVid-Bridge/core/config"
	"github.com/shkond/CloudVid-Bridge/core/history"
	"github.com/shkond/CloudVid-Bridge/core/queue"
	"github.com/shkond/CloudVid-Bridge/core/quota"
	"github.com/shkond/CloudVid-Bridge/core/scaling"

	_ "github.com/mattn/go-sqlite3"
)

// checkTimeout caps one scale check including the formation API calls
const checkTimeout = 30 * time.Second

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
	logger := logging.CreateLogger(logging.LogLevel(cfg.LogLevel), cfg.LogPath, "scale-check")

	if cfg.HerokuAPIKey == "" || cfg.HerokuAppName == "" {
		logger.Error("Heroku API key and app name must be configured for scaling")
		os.Exit(1)
	}

	// Set up database connection with SQLite optimizations for concurrency
	dbConn, err := sql.Open("sqlite3", cfg.DatabasePath+"?_journal_mode=WAL&_busy_timeout=30000&_synchronous=NORMAL&_cache_size=10000")
	if err != nil {
		logger.Error("Failed to open database", err)
		os.Exit(1)
	}
	defer dbConn.Close()

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

	// The check runs as a one-off process, its tracker starts empty
	seedQuotaFromHistory(logger, historyRepo, quotaTracker)

	formationClient := scaling.NewHerokuFormationClient(logger, "", cfg.HerokuAPIKey, cfg.HerokuAppName, 15*time.Second)
	controller := scaling.NewScalingController(logger, queueService, quotaTracker, formationClient, cfg.WorkerDynoType)

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	logger.Info("Scale check starting", "app", cfg.HerokuAppName, "dyno_type", cfg.WorkerDynoType)

	result, err := controller.CheckAndScale(ctx)
	if err != nil {
		logger.Error("Scale check failed", err)
		os.Exit(1)
	}

	logger.Info("Scale check finished",
		"decision", string(result.Decision),
		"pending_jobs", result.PendingJobs,
		"active_jobs", result.ActiveJobs,
		"quota_ok", result.QuotaOK,
	)
}

// seedQuotaFromHistory reconstructs today's upload usage from the history
// table. Only completed uploads are counted, a failed attempt never reached
// the insert call.
func seedQuotaFromHistory(logger logging.Logger, historyRepo history.HistoryRepository, tracker quota.Tracker) {
	records, err := historyRepo.GetRecent(context.Background(), "", 0)
	if err != nil {
		logger.Warn("Failed to read upload history, assuming no quota usage", "error", err)
		return
	}

	dayStart := quota.CurrentDayStart(time.Now())

	uploads := 0
	for _, record := range records {
		// Records come newest first
		if record.UploadedAt.Before(dayStart) {
			break
		}
		if record.Status == history.StatusCompleted {
			uploads++
		}
	}

	if uploads > 0 {
		tracker.RecordUsage(quota.OpVideosInsert, uploads)
		logger.Info("Seeded quota usage from upload history", "uploads_today", uploads)
	}
}
