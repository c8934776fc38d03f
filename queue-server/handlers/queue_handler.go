package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
	"github.com/shkond/CloudVid-Bridge/core/history"
	"github.com/shkond/CloudVid-Bridge/core/queue"
)

// QueueHandler handles upload queue operations
type QueueHandler struct {
	logger       logging.Logger
	queueService queue.QueueService
	historyRepo  history.HistoryRepository
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(logger logging.Logger, queueService queue.QueueService, historyRepo history.HistoryRepository) *QueueHandler {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &QueueHandler{
		logger:       logger,
		queueService: queueService,
		historyRepo:  historyRepo,
	}
}

// AddJobRequest represents the expected request body for a new job
type AddJobRequest struct {
	FileID        string   `json:"file_id" binding:"required"`
	FileName      string   `json:"file_name" binding:"required"`
	MD5Checksum   string   `json:"md5_checksum"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	CategoryID    string   `json:"category_id"`
	PrivacyStatus string   `json:"privacy_status"`
	MadeForKids   bool     `json:"made_for_kids"`
}

// JobResponse represents a queue job in API responses
type JobResponse struct {
	ID            string    `json:"id"`
	FileID        string    `json:"file_id"`
	FileName      string    `json:"file_name"`
	MD5Checksum   string    `json:"md5_checksum,omitempty"`
	UserID        string    `json:"user_id"`
	BatchID       string    `json:"batch_id,omitempty"`
	FolderPath    string    `json:"folder_path,omitempty"`
	Status        string    `json:"status"`
	Progress      float64   `json:"progress"`
	Message       string    `json:"message"`
	VideoID       string    `json:"video_id,omitempty"`
	VideoURL      string    `json:"video_url,omitempty"`
	Error         string    `json:"error,omitempty"`
	RetryCount    int       `json:"retry_count"`
	MaxRetries    int       `json:"max_retries"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	CategoryID    string    `json:"category_id"`
	PrivacyStatus string    `json:"privacy_status"`
	MadeForKids   bool      `json:"made_for_kids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UploadRecordResponse represents an upload history entry in API responses
type UploadRecordResponse struct {
	ID              int64     `json:"id"`
	FileID          string    `json:"file_id"`
	FileName        string    `json:"file_name"`
	MD5Checksum     string    `json:"md5_checksum,omitempty"`
	VideoID         string    `json:"video_id,omitempty"`
	VideoURL        string    `json:"video_url,omitempty"`
	FolderPath      string    `json:"folder_path,omitempty"`
	Status          string    `json:"status"`
	DurationSeconds float64   `json:"duration_seconds"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	UploadedAt      time.Time `json:"uploaded_at"`
	CreatedAt       time.Time `json:"created_at"`
}

func toJobResponse(job *queue.QueueJob) JobResponse {
	return JobResponse{
		ID:            job.ID,
		FileID:        job.FileID,
		FileName:      job.FileName,
		MD5Checksum:   job.MD5Checksum,
		UserID:        job.UserID,
		BatchID:       job.BatchID,
		FolderPath:    job.FolderPath,
		Status:        string(job.Status),
		Progress:      job.Progress,
		Message:       job.Message,
		VideoID:       job.VideoID,
		VideoURL:      job.VideoURL,
		Error:         job.Error,
		RetryCount:    job.RetryCount,
		MaxRetries:    job.MaxRetries,
		Title:         job.Title,
		Description:   job.Description,
		Tags:          job.Tags,
		CategoryID:    job.CategoryID,
		PrivacyStatus: job.PrivacyStatus,
		MadeForKids:   job.MadeForKids,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
}

func toJobResponses(jobs []*queue.QueueJob) []JobResponse {
	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, toJobResponse(job))
	}
	return responses
}

func toUploadRecordResponse(record *history.UploadRecord) UploadRecordResponse {
	return UploadRecordResponse{
		ID:              record.ID,
		FileID:          record.FileID,
		FileName:        record.FileName,
		MD5Checksum:     record.MD5Checksum,
		VideoID:         record.VideoID,
		VideoURL:        record.VideoURL,
		FolderPath:      record.FolderPath,
		Status:          record.Status,
		DurationSeconds: record.DurationSeconds,
		Width:           record.Width,
		Height:          record.Height,
		UploadedAt:      record.UploadedAt,
		CreatedAt:       record.CreatedAt,
	}
}

// requireUserID extracts the authenticated user ID set by the auth middleware.
// Writes an error response and returns "" when it is missing.
func (h *QueueHandler) requireUserID(c *gin.Context) string {
	userID := c.GetString("userID")
	if userID == "" {
		h.logger.Error("User ID not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
	}
	return userID
}

// getOwnedJob loads a job and verifies it belongs to the requesting user.
// Writes the error response and returns nil when the job is missing or foreign.
func (h *QueueHandler) getOwnedJob(c *gin.Context, id, userID string) *queue.QueueJob {
	job, err := h.queueService.GetJob(id)
	if err != nil {
		h.logger.Error("Failed to get job", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
		return nil
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Job not found"})
		return nil
	}
	if job.UserID != userID {
		h.logger.Warn("Denied access to foreign job", "job_id", id, "user_id", userID)
		c.JSON(http.StatusForbidden, gin.H{"detail": "Access denied"})
		return nil
	}
	return job
}

// AddJob handles POST /queue/jobs
func (h *QueueHandler) AddJob(c *gin.Context) {
	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	var req AddJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid job request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"detail": "file_id and file_name are required"})
		return
	}

	job, reason, err := h.queueService.AddJob(queue.CreateJobRequest{
		FileID:        req.FileID,
		FileName:      req.FileName,
		MD5Checksum:   req.MD5Checksum,
		Title:         req.Title,
		Description:   req.Description,
		Tags:          req.Tags,
		CategoryID:    req.CategoryID,
		PrivacyStatus: req.PrivacyStatus,
		MadeForKids:   req.MadeForKids,
	}, userID)
	if err != nil {
		if queue.IsJobValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		h.logger.Error("Failed to add job", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to add job"})
		return
	}

	// A duplicate is not an error, the caller gets told why nothing was queued
	if job == nil {
		c.JSON(http.StatusOK, gin.H{"detail": reason})
		return
	}

	c.JSON(http.StatusCreated, toJobResponse(job))
}

// ListJobs handles GET /queue/jobs
func (h *QueueHandler) ListJobs(c *gin.Context) {
	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	jobs, err := h.queueService.GetJobsByUser(userID)
	if err != nil {
		h.logger.Error("Failed to list jobs", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to list jobs"})
		return
	}

	c.JSON(http.StatusOK, toJobResponses(jobs))
}

// GetJob handles GET /queue/jobs/:id
func (h *QueueHandler) GetJob(c *gin.Context) {
	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	job := h.getOwnedJob(c, c.Param("id"), userID)
	if job == nil {
		return
	}

	c.JSON(http.StatusOK, toJobResponse(job))
}

// CancelJob handles POST /queue/jobs/:id/cancel
func (h *QueueHandler) CancelJob(c *gin.Context) {
	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	if job := h.getOwnedJob(c, c.Param("id"), userID); job == nil {
		return
	}

	outcome, job, err := h.queueService.CancelJob(c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to cancel job", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to cancel job"})
		return
	}

	switch outcome {
	case queue.CancelOutcomeCancelled:
		c.JSON(http.StatusOK, toJobResponse(job))
	case queue.CancelOutcomeNotCancellable:
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Job cannot be cancelled"})
	default:
		c.JSON(http.StatusNotFound, gin.H{"detail": "Job not found"})
	}
}

// RetryJob handles POST /queue/jobs/:id/retry
func (h *QueueHandler) RetryJob(c *gin.Context) {
	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	if job := h.getOwnedJob(c, c.Param("id"), userID); job == nil {
		return
	}

	job, reason, err := h.queueService.RetryJob(c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to retry job", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to retry job"})
		return
	}

	if job == nil {
		if reason == "Job not found" {
			c.JSON(http.StatusNotFound, gin.H{"detail": reason})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"detail": reason})
		}
		return
	}

	c.JSON(http.StatusOK, toJobResponse(job))
}

// DeleteJob handles DELETE /queue/jobs/:id
func (h *QueueHandler) DeleteJob(c *gin.Context) {
	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	if job := h.getOwnedJob(c, c.Param("id"), userID); job == nil {
		return
	}

	deleted, err := h.queueService.DeleteJob(c.Param("id"))
	if err != nil {
		if queue.IsJobActiveError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Cannot delete an active job"})
			return
		}
		h.logger.Error("Failed to delete job", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to delete job"})
		return
	}

	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Job not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"detail": "Job deleted"})
}

// ClearQueue handles POST /queue/clear
func (h *QueueHandler) ClearQueue(c *gin.Context) {
	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	cleared, err := h.queueService.ClearCompleted(userID)
	if err != nil {
		h.logger.Error("Failed to clear queue", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to clear queue"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cleared_count": cleared})
}

// GetStatus handles GET /queue/status
func (h *QueueHandler) GetStatus(c *gin.Context) {
	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	status, err := h.queueService.GetStatus(userID)
	if err != nil {
		h.logger.Error("Failed to get queue status", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to get queue status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_jobs":     status.TotalJobs,
		"pending_jobs":   status.PendingJobs,
		"active_jobs":    status.ActiveJobs,
		"completed_jobs": status.CompletedJobs,
		"failed_jobs":    status.FailedJobs,
		"is_processing":  status.IsProcessing,
	})
}

// GetHistory handles GET /queue/history
func (h *QueueHandler) GetHistory(c *gin.Context) {
	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid limit"})
			return
		}
		limit = parsed
	}

	records, err := h.historyRepo.GetRecent(context.Background(), userID, limit)
	if err != nil {
		h.logger.Error("Failed to get upload history", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to get upload history"})
		return
	}

	responses := make([]UploadRecordResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, toUploadRecordResponse(record))
	}

	c.JSON(http.StatusOK, responses)
}

// GetBatch handles GET /queue/batch/:batchId
func (h *QueueHandler) GetBatch(c *gin.Context) {
	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	batchID := c.Param("batchId")
	jobs, err := h.queueService.GetJobsForBatch(batchID)
	if err != nil {
		h.logger.Error("Failed to get batch jobs", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to get batch jobs"})
		return
	}

	// Batches are created by a single user, foreign batches look like missing ones
	owned := make([]*queue.QueueJob, 0, len(jobs))
	for _, job := range jobs {
		if job.UserID == userID {
			owned = append(owned, job)
		}
	}
	if len(owned) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Batch not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id": batchID,
		"jobs":     toJobResponses(owned),
	})
}
