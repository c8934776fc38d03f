package queue

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
)

// CreateJobRequest carries the caller-supplied fields for a new job
type CreateJobRequest struct {
	FileID      string
	FileName    string
	MD5Checksum string
	BatchID     string
	FolderPath  string

	Title         string
	Description   string
	Tags          []string
	CategoryID    string
	PrivacyStatus string
	MadeForKids   bool
}

// Defaults applied to jobs that do not specify them
const (
	DefaultCategoryID    = "24" // YouTube category 24 = Entertainment
	DefaultPrivacyStatus = "private"
)

type QueueService interface {
	// AddJob adds a new job to the queue. The returned reason is non-empty
	// when the job was rejected as a duplicate.
	AddJob(req CreateJobRequest, userID string) (*QueueJob, string, error)
	// GetJob retrieves a job by its ID
	GetJob(id string) (*QueueJob, error)
	// UpdateJob applies a partial update to a job
	UpdateJob(id string, update JobUpdate) (*QueueJob, error)
	// CancelJob cancels a pending or downloading job
	CancelJob(id string) (CancelOutcome, *QueueJob, error)
	// DeleteJob removes a finished job from the queue
	DeleteJob(id string) (bool, error)
	// GetAllJobs retrieves all jobs
	GetAllJobs() ([]*QueueJob, error)
	// GetJobsByUser retrieves all jobs owned by a user
	GetJobsByUser(userID string) ([]*QueueJob, error)
	// GetPendingJobs retrieves pending jobs in FIFO order
	GetPendingJobs() ([]*QueueJob, error)
	// GetNextPendingJob retrieves the oldest pending job
	GetNextPendingJob() (*QueueJob, error)
	// GetActiveJobs retrieves jobs that are downloading or uploading
	GetActiveJobs() ([]*QueueJob, error)
	// GetJobsForBatch retrieves all jobs of a folder batch
	GetJobsForBatch(batchID string) ([]*QueueJob, error)
	// GetStatus returns aggregate queue counts, scoped to a user when userID is non-empty
	GetStatus(userID string) (*QueueStatus, error)
	// ClearCompleted removes finished jobs and returns the number removed
	ClearCompleted(userID string) (int, error)
	// IsFileIDInQueue reports whether a pending or active job references the file ID
	IsFileIDInQueue(fileID string) (bool, error)
	// IsMD5InQueue reports whether a pending or active job carries the checksum
	IsMD5InQueue(md5 string) (bool, error)
	// MarkJobStarted claims a pending job for processing. Returns nil if the
	// job was already claimed, cancelled or removed.
	MarkJobStarted(id string) (*QueueJob, error)
	// MarkJobProgress updates the progress of an active job
	MarkJobProgress(id string, progress float64) (*QueueJob, error)
	// MarkJobUploading moves an active job to uploading with the given progress
	MarkJobUploading(id string, progress float64) (*QueueJob, error)
	// MarkJobCompleted finishes an uploading job with its video details
	MarkJobCompleted(id, videoID, videoURL string) (*QueueJob, error)
	// MarkJobFailed moves an active job to failed with an error message
	MarkJobFailed(id string, errMsg string) (*QueueJob, error)
	// MarkJobWaiting returns a downloading job to pending until quota is
	// available again
	MarkJobWaiting(id string) (*QueueJob, error)
	// RetryJob moves a failed job back to pending. The returned reason is
	// non-empty when the job was not eligible for retry.
	RetryJob(id string) (*QueueJob, string, error)
}

type queueService struct {
	logger logging.Logger
	repo   JobRepository
}

// NewQueueService creates a new QueueService
func NewQueueService(logger logging.Logger, repo JobRepository) *queueService {

	if logger == nil {
		logger = logging.NopLogger
	}

	return &queueService{
		logger: logger,
		repo:   repo,
	}
}

func (s *queueService) AddJob(req CreateJobRequest, userID string) (*QueueJob, string, error) {
	fileID := strings.TrimSpace(req.FileID)
	if fileID == "" {
		return nil, "", NewJobValidationError("file ID cannot be empty")
	}

	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		return nil, "", NewJobValidationError("file name cannot be empty")
	}

	ctx := context.Background()

	// Check by file ID first, then by content checksum
	inQueue, err := s.repo.IsFileIDInQueue(ctx, fileID)
	if err != nil {
		s.logger.Error("Failed to check for duplicate file ID", "error", err)
		return nil, "", err
	}
	if inQueue {
		return nil, "File is already in the queue", nil
	}

	if req.MD5Checksum != "" {
		inQueue, err = s.repo.IsMD5InQueue(ctx, req.MD5Checksum)
		if err != nil {
			s.logger.Error("Failed to check for duplicate checksum", "error", err)
			return nil, "", err
		}
		if inQueue {
			return nil, "A file with the same content is already in the queue", nil
		}
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	categoryID := req.CategoryID
	if categoryID == "" {
		categoryID = DefaultCategoryID
	}
	privacyStatus := req.PrivacyStatus
	if privacyStatus == "" {
		privacyStatus = DefaultPrivacyStatus
	}

	now := time.Now().UTC()
	job := &QueueJob{
		ID:            uuid.New().String(),
		FileID:        fileID,
		FileName:      fileName,
		MD5Checksum:   req.MD5Checksum,
		UserID:        userID,
		BatchID:       req.BatchID,
		FolderPath:    req.FolderPath,
		Status:        StatusPending,
		Progress:      0,
		Message:       "Queued for upload",
		MaxRetries:    DefaultMaxRetries,
		Title:         title,
		Description:   req.Description,
		Tags:          req.Tags,
		CategoryID:    categoryID,
		PrivacyStatus: privacyStatus,
		MadeForKids:   req.MadeForKids,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Add(ctx, job); err != nil {
		s.logger.Error("Failed to add job", "error", err, "file_id", fileID)
		return nil, "", err
	}

	s.logger.Info("Added job to queue", "job_id", job.ID, "file_name", fileName, "user_id", userID)
	return job, "", nil
}

func (s *queueService) GetJob(id string) (*QueueJob, error) {
	return s.repo.GetByID(context.Background(), id)
}

func (s *queueService) UpdateJob(id string, update JobUpdate) (*QueueJob, error) {
	return s.repo.Update(context.Background(), id, update)
}

func (s *queueService) CancelJob(id string) (CancelOutcome, *QueueJob, error) {
	outcome, job, err := s.repo.Cancel(context.Background(), id)
	if err != nil {
		s.logger.Error("Failed to cancel job", "error", err, "job_id", id)
		return outcome, nil, err
	}

	if outcome == CancelOutcomeCancelled {
		s.logger.Info("Cancelled job", "job_id", id)
	}
	return outcome, job, nil
}

func (s *queueService) DeleteJob(id string) (bool, error) {
	ctx := context.Background()

	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	if job.Status.IsActive() {
		return false, NewJobActiveError(id)
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.logger.Error("Failed to delete job", "error", err, "job_id", id)
		return false, err
	}

	if deleted {
		s.logger.Info("Deleted job", "job_id", id)
	}
	return deleted, nil
}

func (s *queueService) GetAllJobs() ([]*QueueJob, error) {
	return s.repo.GetAll(context.Background())
}

func (s *queueService) GetJobsByUser(userID string) ([]*QueueJob, error) {
	return s.repo.GetByUser(context.Background(), userID)
}

func (s *queueService) GetPendingJobs() ([]*QueueJob, error) {
	return s.repo.GetPending(context.Background())
}

func (s *queueService) GetNextPendingJob() (*QueueJob, error) {
	return s.repo.GetNextPending(context.Background())
}

func (s *queueService) GetActiveJobs() ([]*QueueJob, error) {
	return s.repo.GetActive(context.Background())
}

func (s *queueService) GetJobsForBatch(batchID string) ([]*QueueJob, error) {
	return s.repo.GetByBatch(context.Background(), batchID)
}

func (s *queueService) GetStatus(userID string) (*QueueStatus, error) {
	return s.repo.GetStatus(context.Background(), userID)
}

func (s *queueService) ClearCompleted(userID string) (int, error) {
	cleared, err := s.repo.ClearFinished(context.Background(), userID)
	if err != nil {
		s.logger.Error("Failed to clear finished jobs", "error", err)
		return 0, err
	}

	s.logger.Info("Cleared finished jobs", "count", cleared, "user_id", userID)
	return cleared, nil
}

func (s *queueService) IsFileIDInQueue(fileID string) (bool, error) {
	return s.repo.IsFileIDInQueue(context.Background(), fileID)
}

func (s *queueService) IsMD5InQueue(md5 string) (bool, error) {
	return s.repo.IsMD5InQueue(context.Background(), md5)
}

func (s *queueService) MarkJobStarted(id string) (*QueueJob, error) {
	status := StatusDownloading
	progress := 0.0
	message := "Starting download..."

	return s.repo.Transition(context.Background(), id,
		[]JobStatus{StatusPending},
		JobUpdate{Status: &status, Progress: &progress, Message: &message})
}

func (s *queueService) MarkJobProgress(id string, progress float64) (*QueueJob, error) {
	return s.repo.Transition(context.Background(), id,
		[]JobStatus{StatusDownloading, StatusUploading},
		JobUpdate{Progress: &progress})
}

func (s *queueService) MarkJobUploading(id string, progress float64) (*QueueJob, error) {
	status := StatusUploading
	message := "Uploading to YouTube..."

	return s.repo.Transition(context.Background(), id,
		[]JobStatus{StatusDownloading, StatusUploading},
		JobUpdate{Status: &status, Progress: &progress, Message: &message})
}

func (s *queueService) MarkJobCompleted(id, videoID, videoURL string) (*QueueJob, error) {
	status := StatusCompleted
	progress := 100.0
	message := "Upload complete"

	return s.repo.Transition(context.Background(), id,
		[]JobStatus{StatusUploading},
		JobUpdate{Status: &status, Progress: &progress, Message: &message, VideoID: &videoID, VideoURL: &videoURL})
}

func (s *queueService) MarkJobFailed(id string, errMsg string) (*QueueJob, error) {
	status := StatusFailed
	message := "Upload failed"

	job, err := s.repo.Transition(context.Background(), id,
		[]JobStatus{StatusDownloading, StatusUploading},
		JobUpdate{Status: &status, Message: &message, Error: &errMsg})
	if err != nil {
		return nil, err
	}

	if job != nil {
		s.logger.Warn("Job failed", "job_id", id, "error", errMsg)
	}
	return job, nil
}

func (s *queueService) MarkJobWaiting(id string) (*QueueJob, error) {
	status := StatusPending
	progress := 0.0
	message := "Waiting for quota"

	job, err := s.repo.Transition(context.Background(), id,
		[]JobStatus{StatusDownloading},
		JobUpdate{Status: &status, Progress: &progress, Message: &message})
	if err != nil {
		return nil, err
	}

	if job != nil {
		s.logger.Warn("Returned job to queue, quota exhausted", "job_id", id)
	}
	return job, nil
}

func (s *queueService) RetryJob(id string) (*QueueJob, string, error) {
	ctx := context.Background()

	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if job == nil {
		return nil, "Job not found", nil
	}

	if job.Status != StatusFailed {
		return nil, "Job is not in failed status", nil
	}

	if job.RetryCount >= job.MaxRetries {
		return nil, "Maximum retries exceeded", nil
	}

	updated, err := s.repo.ResetForRetry(ctx, id)
	if err != nil {
		s.logger.Error("Failed to reset job for retry", "error", err, "job_id", id)
		return nil, "", err
	}
	if updated == nil {
		// The job changed under us between the check and the reset.
		return nil, "Job is not in failed status", nil
	}

	s.logger.Info("Queued job for retry", "job_id", id, "retry_count", updated.RetryCount)
	return updated, "", nil
}
