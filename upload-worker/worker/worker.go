package worker

import (
	"context"
	"fmt"
	"math"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
	"github.com/shkond/CloudVid-Bridge/core/drive"
	"github.com/shkond/CloudVid-Bridge/core/history"
	"github.com/shkond/CloudVid-Bridge/core/media"
	"github.com/shkond/CloudVid-Bridge/core/notifications"
	"github.com/shkond/CloudVid-Bridge/core/queue"
	"github.com/shkond/CloudVid-Bridge/core/quota"
	"github.com/shkond/CloudVid-Bridge/core/youtube"
)

// The download covers the first half of a job's progress range, the upload
// the second half
const (
	downloadProgressShare = 50
	uploadProgressShare   = 50
)

// Settings holds the tunable parameters of the upload worker
type Settings struct {
	// PollInterval is the time between queue polls
	PollInterval time.Duration
	// TempDir is where downloaded files are staged before upload
	TempDir string
}

// Worker drains the upload queue: it claims pending jobs, moves the file from
// Drive to YouTube and records the outcome in the upload history
type Worker interface {
	// Start runs the worker loop until stopChan is closed. It blocks, callers
	// run it in a goroutine and register it with the WaitGroup first.
	Start(stopChan <-chan struct{}, wg *sync.WaitGroup)
}

type uploadWorker struct {
	logger         logging.Logger
	queue          queue.QueueService
	historyRepo    history.HistoryRepository
	quotaTracker   quota.Tracker
	driveClient    drive.DriveClient
	youtubeClient  youtube.YouTubeClient
	prober         media.VideoProber
	uploadNotifier notifications.UploadNotifier
	quotaNotifier  notifications.QuotaNotifier
	settings       Settings
}

// NewUploadWorker creates a new upload worker
func NewUploadWorker(
	logger logging.Logger,
	queueService queue.QueueService,
	historyRepo history.HistoryRepository,
	quotaTracker quota.Tracker,
	driveClient drive.DriveClient,
	youtubeClient youtube.YouTubeClient,
	prober media.VideoProber,
	uploadNotifier notifications.UploadNotifier,
	quotaNotifier notifications.QuotaNotifier,
	settings Settings,
) Worker {

	if logger == nil {
		logger = logging.NopLogger
	}
	if prober == nil {
		prober = media.NopProber
	}
	if uploadNotifier == nil {
		uploadNotifier = notifications.NopUploadNotifier
	}
	if quotaNotifier == nil {
		quotaNotifier = notifications.NopQuotaNotifier
	}

	return &uploadWorker{
		logger:         logger,
		queue:          queueService,
		historyRepo:    historyRepo,
		quotaTracker:   quotaTracker,
		driveClient:    driveClient,
		youtubeClient:  youtubeClient,
		prober:         prober,
		uploadNotifier: uploadNotifier,
		quotaNotifier:  quotaNotifier,
		settings:       settings,
	}
}

// Start runs the worker loop until stopChan is closed
func (w *uploadWorker) Start(stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	w.logger.Info("Upload worker started", "poll_interval", w.settings.PollInterval)

	w.recoverInterruptedJobs()

	ticker := time.NewTicker(w.settings.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.processNext()
		case <-stopChan:
			w.logger.Info("Upload worker stopped")
			return
		}
	}
}

// recoverInterruptedJobs returns jobs that were mid-transfer when a previous
// worker run died back to the pending queue. Only one worker dyno runs at a
// time, so anything still active belongs to a dead run.
func (w *uploadWorker) recoverInterruptedJobs() {
	active, err := w.queue.GetActiveJobs()
	if err != nil {
		w.logger.Error("Failed to look for interrupted jobs", "error", err)
		return
	}

	for _, job := range active {
		w.logger.Warn("Requeueing interrupted job", "job_id", job.ID, "file_name", job.FileName)

		status := queue.StatusPending
		progress := 0.0
		message := "Requeued after worker restart"
		if _, err := w.queue.UpdateJob(job.ID, queue.JobUpdate{
			Status:   &status,
			Progress: &progress,
			Message:  &message,
		}); err != nil {
			w.logger.Error("Failed to requeue interrupted job", "error", err, "job_id", job.ID)
		}
	}
}

// processNext claims and processes the oldest pending job, if any
func (w *uploadWorker) processNext() {
	next, err := w.queue.GetNextPendingJob()
	if err != nil {
		w.logger.Error("Failed to poll for pending jobs", "error", err)
		return
	}
	if next == nil {
		return
	}

	// An upload costs more quota than everything else combined, check before
	// any work happens
	if !w.quotaTracker.CanPerform(quota.OpVideosInsert, 1) {
		w.logger.Debug("Daily quota exhausted, leaving queue untouched")

		summary := w.quotaTracker.GetUsageSummary()
		if err := w.quotaNotifier.NotifyQuotaExhausted(summary.TotalUsed, summary.DailyLimit); err != nil {
			w.logger.Warn("Failed to send quota exhausted notification", "error", err)
		}
		return
	}

	job, err := w.queue.MarkJobStarted(next.ID)
	if err != nil {
		w.logger.Error("Failed to claim job", "error", err, "job_id", next.ID)
		return
	}
	if job == nil {
		// The job was cancelled or removed since the poll
		return
	}

	w.processJob(job)
}

// processJob runs one claimed job end to end
func (w *uploadWorker) processJob(job *queue.QueueJob) {
	w.logger.Info("Processing job", "job_id", job.ID, "file_name", job.FileName)

	tempPath := filepath.Join(w.settings.TempDir, job.ID+filepath.Ext(job.FileName))
	defer os.Remove(tempPath)

	ctx := context.Background()

	err := w.driveClient.DownloadFile(ctx, job.FileID, tempPath,
		w.progressReporter(job.ID, 0, downloadProgressShare))
	if err != nil {
		w.failJob(job, nil, fmt.Errorf("download failed: %w", err))
		return
	}

	// A probe failure is tolerable, the history entry just stays without
	// dimensions
	probe, err := w.prober.Probe(tempPath)
	if err != nil {
		w.logger.Warn("Failed to probe video", "job_id", job.ID, "error", err)
		probe = nil
	}

	// Re-check the quota now that the download is done, it may have been
	// spent while the file was transferring
	if !w.quotaTracker.CanPerform(quota.OpVideosInsert, 1) {
		if _, err := w.queue.MarkJobWaiting(job.ID); err != nil {
			w.logger.Error("Failed to return job to the queue", "error", err, "job_id", job.ID)
		}
		return
	}

	uploading, err := w.queue.MarkJobUploading(job.ID, downloadProgressShare)
	if err != nil {
		w.failJob(job, probe, err)
		return
	}
	if uploading == nil {
		// The job was cancelled while the file was downloading
		w.logger.Info("Job is no longer active, discarding download", "job_id", job.ID)
		return
	}

	metadata := youtube.VideoMetadata{
		Title:         job.Title,
		Description:   job.Description,
		Tags:          job.Tags,
		CategoryID:    job.CategoryID,
		PrivacyStatus: job.PrivacyStatus,
		MadeForKids:   job.MadeForKids,
	}

	result, err := w.youtubeClient.UploadVideo(ctx, tempPath,
		mime.TypeByExtension(filepath.Ext(job.FileName)), metadata,
		w.progressReporter(job.ID, downloadProgressShare, uploadProgressShare))
	if err != nil {
		w.failJob(job, probe, fmt.Errorf("upload failed: %w", err))
		return
	}

	w.quotaTracker.RecordUsage(quota.OpVideosInsert, 1)

	summary := w.quotaTracker.GetUsageSummary()
	if w.quotaNotifier.ShouldWarn(summary.TotalUsed, summary.DailyLimit) {
		if err := w.quotaNotifier.NotifyQuotaWarning(summary.TotalUsed, summary.DailyLimit); err != nil {
			w.logger.Warn("Failed to send quota warning notification", "error", err)
		}
	}

	if _, err := w.queue.MarkJobCompleted(job.ID, result.VideoID, result.VideoURL); err != nil {
		w.logger.Error("Failed to mark job completed", "error", err, "job_id", job.ID)
	}

	w.recordHistory(job, result, probe, history.StatusCompleted)

	w.logger.Info("Upload complete", "job_id", job.ID, "video_id", result.VideoID)
}

// failJob marks the job failed and writes the failed attempt to the history
func (w *uploadWorker) failJob(job *queue.QueueJob, probe *media.VideoProbe, cause error) {
	w.logger.Error("Job failed", "error", cause, "job_id", job.ID, "file_name", job.FileName)

	if _, err := w.queue.MarkJobFailed(job.ID, cause.Error()); err != nil {
		w.logger.Error("Failed to mark job failed", "error", err, "job_id", job.ID)
	}

	w.recordHistory(job, nil, probe, history.StatusFailed)

	if err := w.uploadNotifier.NotifyUploadFailed(job.UserID, job.FileName, cause.Error()); err != nil {
		w.logger.Warn("Failed to send upload failure notification", "error", err, "job_id", job.ID)
	}
}

// recordHistory writes the permanent record of a finished upload attempt
func (w *uploadWorker) recordHistory(job *queue.QueueJob, result *youtube.UploadResult, probe *media.VideoProbe, status string) {
	now := time.Now().UTC()
	record := &history.UploadRecord{
		UserID:      job.UserID,
		FileID:      job.FileID,
		FileName:    job.FileName,
		MD5Checksum: job.MD5Checksum,
		FolderPath:  job.FolderPath,
		Status:      status,
		UploadedAt:  now,
		CreatedAt:   now,
	}
	if result != nil {
		record.VideoID = result.VideoID
		record.VideoURL = result.VideoURL
	}
	if probe != nil {
		record.DurationSeconds = probe.DurationSeconds
		record.Width = probe.Width
		record.Height = probe.Height
	}

	if err := w.historyRepo.Add(context.Background(), record); err != nil {
		w.logger.Error("Failed to record upload history", "error", err, "job_id", job.ID)
	}
}

// progressReporter maps byte counts into a slice of the job's progress range.
// Only whole-point changes are written, a chunked download would otherwise
// hit the database on every read.
func (w *uploadWorker) progressReporter(jobID string, base, share float64) func(done, total int64) {
	lastReported := -1.0

	return func(done, total int64) {
		if total <= 0 {
			return
		}

		progress := base + math.Floor(float64(done)/float64(total)*share)
		if progress == lastReported {
			return
		}
		lastReported = progress

		if _, err := w.queue.MarkJobProgress(jobID, progress); err != nil {
			w.logger.Warn("Failed to update job progress", "job_id", jobID, "error", err)
		}
	}
}
