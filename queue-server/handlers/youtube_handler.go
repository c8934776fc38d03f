package handlers

import (
	"context"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
	"github.com/shkond/CloudVid-Bridge/core/drive"
	"github.com/shkond/CloudVid-Bridge/core/history"
	"github.com/shkond/CloudVid-Bridge/core/queue"
	"github.com/shkond/CloudVid-Bridge/core/quota"
	"github.com/shkond/CloudVid-Bridge/core/youtube"
)

// Bounds for the video listing endpoint
const (
	defaultListResults = 25
	maxListResults     = 50
)

// YouTubeHandler handles YouTube account, quota and direct upload operations
type YouTubeHandler struct {
	logger        logging.Logger
	youtubeClient youtube.YouTubeClient
	driveClient   drive.DriveClient
	historyRepo   history.HistoryRepository
	quotaTracker  quota.Tracker
}

// NewYouTubeHandler creates a new YouTube handler
func NewYouTubeHandler(
	logger logging.Logger,
	youtubeClient youtube.YouTubeClient,
	driveClient drive.DriveClient,
	historyRepo history.HistoryRepository,
	quotaTracker quota.Tracker,
) *YouTubeHandler {

	if logger == nil {
		logger = logging.NopLogger
	}

	return &YouTubeHandler{
		logger:        logger,
		youtubeClient: youtubeClient,
		driveClient:   driveClient,
		historyRepo:   historyRepo,
		quotaTracker:  quotaTracker,
	}
}

// GetQuota handles GET /youtube/quota
func (h *YouTubeHandler) GetQuota(c *gin.Context) {
	summary := h.quotaTracker.GetUsageSummary()

	c.JSON(http.StatusOK, gin.H{
		"total_used":       summary.TotalUsed,
		"daily_limit":      summary.DailyLimit,
		"remaining":        summary.Remaining,
		"usage_percentage": summary.UsagePercentage,
		"operations":       summary.Operations,
		"date":             summary.Date,
	})
}

// VideoExists handles GET /youtube/video/:id/exists
func (h *YouTubeHandler) VideoExists(c *gin.Context) {
	videoID := c.Param("id")

	exists, err := h.youtubeClient.VideoExists(context.Background(), videoID)
	if err != nil {
		h.logger.Error("Failed to check video", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to check video"})
		return
	}

	h.quotaTracker.RecordUsage(quota.OpVideosList, 1)

	c.JSON(http.StatusOK, gin.H{
		"video_id": videoID,
		"exists":   exists,
	})
}

// GetChannel handles GET /youtube/channel
func (h *YouTubeHandler) GetChannel(c *gin.Context) {
	info, err := h.youtubeClient.GetChannelInfo(context.Background())
	if err != nil {
		h.logger.Error("Failed to get channel info", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to get channel info"})
		return
	}

	h.quotaTracker.RecordUsage(quota.OpChannelsList, 1)

	if info == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "No channel found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":               info.ID,
		"title":            info.Title,
		"description":      info.Description,
		"custom_url":       info.CustomURL,
		"subscriber_count": info.SubscriberCount,
		"video_count":      info.VideoCount,
		"view_count":       info.ViewCount,
	})
}

// ListVideos handles GET /youtube/videos
func (h *YouTubeHandler) ListVideos(c *gin.Context) {
	maxResults := defaultListResults
	if raw := c.Query("max_results"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid max_results"})
			return
		}
		maxResults = parsed
	}
	if maxResults > maxListResults {
		maxResults = maxListResults
	}

	videos, err := h.youtubeClient.ListMyVideos(context.Background(), maxResults)
	if err != nil {
		h.logger.Error("Failed to list videos", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to list videos"})
		return
	}

	h.quotaTracker.RecordUsage(quota.OpPlaylistItemsList, 1)

	responses := make([]gin.H, 0, len(videos))
	for _, video := range videos {
		responses = append(responses, gin.H{
			"id":            video.ID,
			"title":         video.Title,
			"description":   video.Description,
			"thumbnail_url": video.ThumbnailURL,
			"published_at":  video.PublishedAt,
		})
	}

	c.JSON(http.StatusOK, responses)
}

// DirectUploadRequest asks for a single Drive file to be moved to YouTube
// right away
type DirectUploadRequest struct {
	DriveFileID   string   `json:"drive_file_id" binding:"required"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	CategoryID    string   `json:"category_id"`
	PrivacyStatus string   `json:"privacy_status"`
	MadeForKids   bool     `json:"made_for_kids"`
}

// UploadVideo handles POST /youtube/upload. The transfer runs within the
// request, large files belong in the queue instead.
func (h *YouTubeHandler) UploadVideo(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		h.logger.Error("User ID not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
		return
	}

	var req DirectUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "drive_file_id is required"})
		return
	}

	if !h.quotaTracker.CanPerform(quota.OpVideosInsert, 1) {
		c.JSON(http.StatusTooManyRequests, gin.H{"detail": "YouTube API quota exhausted"})
		return
	}

	ctx := context.Background()

	file, err := h.driveClient.GetFile(ctx, req.DriveFileID)
	if err != nil {
		h.logger.Error("Failed to look up Drive file", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to look up Drive file"})
		return
	}
	if file == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "File not found"})
		return
	}
	if file.IsFolder() {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Cannot upload a folder"})
		return
	}

	tempFile, err := os.CreateTemp("", "direct-upload-*"+filepath.Ext(file.Name))
	if err != nil {
		h.logger.Error("Failed to create temp file", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
		return
	}
	tempPath := tempFile.Name()
	tempFile.Close()
	defer os.Remove(tempPath)

	if err := h.driveClient.DownloadFile(ctx, file.ID, tempPath, nil); err != nil {
		h.logger.Error("Failed to download Drive file", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to download Drive file"})
		return
	}

	metadata := youtube.VideoMetadata{
		Title:         req.Title,
		Description:   req.Description,
		Tags:          req.Tags,
		CategoryID:    req.CategoryID,
		PrivacyStatus: req.PrivacyStatus,
		MadeForKids:   req.MadeForKids,
	}
	if metadata.Title == "" {
		metadata.Title = strings.TrimSuffix(file.Name, filepath.Ext(file.Name))
	}
	if metadata.CategoryID == "" {
		metadata.CategoryID = queue.DefaultCategoryID
	}
	if metadata.PrivacyStatus == "" {
		metadata.PrivacyStatus = queue.DefaultPrivacyStatus
	}

	result, err := h.youtubeClient.UploadVideo(ctx, tempPath, mime.TypeByExtension(filepath.Ext(file.Name)), metadata, nil)
	if err != nil {
		h.logger.Error("Failed to upload video", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to upload video"})
		return
	}

	h.quotaTracker.RecordUsage(quota.OpVideosInsert, 1)

	now := time.Now().UTC()
	record := &history.UploadRecord{
		UserID:      userID,
		FileID:      file.ID,
		FileName:    file.Name,
		MD5Checksum: file.MD5Checksum,
		VideoID:     result.VideoID,
		VideoURL:    result.VideoURL,
		Status:      history.StatusCompleted,
		UploadedAt:  now,
		CreatedAt:   now,
	}
	if err := h.historyRepo.Add(ctx, record); err != nil {
		h.logger.Error("Failed to record upload history", err)
	}

	h.logger.Info("Direct upload complete", "file_id", file.ID, "video_id", result.VideoID, "user_id", userID)

	c.JSON(http.StatusOK, gin.H{
		"video_id":  result.VideoID,
		"video_url": result.VideoURL,
	})
}
