package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
	"github.com/shkond/CloudVid-Bridge/core/drive"
	"github.com/shkond/CloudVid-Bridge/core/queue"
)

// DriveHandler handles Google Drive folder operations
type DriveHandler struct {
	logger       logging.Logger
	driveClient  drive.DriveClient
	batchService queue.BatchService
}

// NewDriveHandler creates a new Drive handler
func NewDriveHandler(logger logging.Logger, driveClient drive.DriveClient, batchService queue.BatchService) *DriveHandler {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &DriveHandler{
		logger:       logger,
		driveClient:  driveClient,
		batchService: batchService,
	}
}

// FolderUploadRequest represents the expected request body for a folder upload
type FolderUploadRequest struct {
	FolderID   string `json:"folder_id" binding:"required"`
	FolderName string `json:"folder_name"`
	// Recursive and SkipDuplicates default to true when absent
	Recursive           *bool    `json:"recursive"`
	SkipDuplicates      *bool    `json:"skip_duplicates"`
	MaxFiles            int      `json:"max_files"`
	TitleTemplate       string   `json:"title_template"`
	DescriptionTemplate string   `json:"description_template"`
	IncludeMD5Hash      bool     `json:"include_md5_hash"`
	PrivacyStatus       string   `json:"privacy_status"`
	CategoryID          string   `json:"category_id"`
	Tags                []string `json:"tags"`
	MadeForKids         bool     `json:"made_for_kids"`
}

// SkippedFileResponse explains why a file was left out of a batch
type SkippedFileResponse struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

// FolderUploadResponse summarizes a queued folder batch
type FolderUploadResponse struct {
	FolderName   string                `json:"folder_name"`
	BatchID      string                `json:"batch_id"`
	AddedCount   int                   `json:"added_count"`
	SkippedCount int                   `json:"skipped_count"`
	SkippedFiles []SkippedFileResponse `json:"skipped_files"`
	Message      string                `json:"message"`
}

// DriveFileResponse represents a Drive file in API responses
type DriveFileResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mime_type"`
	MD5Checksum  string `json:"md5_checksum,omitempty"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time,omitempty"`
	IsVideo      bool   `json:"is_video"`
}

// DriveFolderResponse represents a scanned folder tree in API responses
type DriveFolderResponse struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Files       []DriveFileResponse    `json:"files"`
	Subfolders  []*DriveFolderResponse `json:"subfolders"`
	TotalVideos int                    `json:"total_videos"`
}

func toDriveFolderResponse(folder *drive.Folder) *DriveFolderResponse {
	response := &DriveFolderResponse{
		ID:          folder.ID,
		Name:        folder.Name,
		Files:       make([]DriveFileResponse, 0, len(folder.Files)),
		Subfolders:  make([]*DriveFolderResponse, 0, len(folder.Subfolders)),
		TotalVideos: folder.TotalVideos,
	}

	for _, file := range folder.Files {
		response.Files = append(response.Files, DriveFileResponse{
			ID:           file.ID,
			Name:         file.Name,
			MimeType:     file.MimeType,
			MD5Checksum:  file.MD5Checksum,
			Size:         file.Size,
			ModifiedTime: file.ModifiedTime,
			IsVideo:      file.IsVideo(),
		})
	}
	for _, subfolder := range folder.Subfolders {
		response.Subfolders = append(response.Subfolders, toDriveFolderResponse(subfolder))
	}

	return response
}

// boolQuery parses an optional boolean query parameter
func boolQuery(c *gin.Context, name string, defaultValue bool) (bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return defaultValue, true
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return value, true
}

// UploadFolder handles POST /drive/folder/upload
func (h *DriveHandler) UploadFolder(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		h.logger.Error("User ID not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
		return
	}

	var req FolderUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid folder upload request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"detail": "folder_id is required"})
		return
	}

	ctx := context.Background()

	// Check the folder before scanning so a bad ID gets a clear answer
	folder, err := h.driveClient.GetFile(ctx, req.FolderID)
	if err != nil {
		h.logger.Error("Failed to look up Drive folder", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to look up Drive folder"})
		return
	}
	if folder == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Folder not found"})
		return
	}
	if !folder.IsFolder() {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Not a folder"})
		return
	}

	recursive := req.Recursive == nil || *req.Recursive
	rootName, videos, err := h.driveClient.ListVideos(ctx, req.FolderID, recursive)
	if err != nil {
		h.logger.Error("Failed to scan Drive folder", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to scan Drive folder"})
		return
	}

	folderName := req.FolderName
	if folderName == "" {
		folderName = rootName
	}

	files := make([]queue.BatchFile, 0, len(videos))
	for _, video := range videos {
		files = append(files, queue.BatchFile{
			FileID:      video.ID,
			FileName:    video.Name,
			MimeType:    video.MimeType,
			MD5Checksum: video.MD5Checksum,
			Size:        video.Size,
			FolderPath:  video.FolderPath,
		})
	}

	result, err := h.batchService.QueueFolder(queue.FolderBatchRequest{
		FolderName:     folderName,
		Files:          files,
		MaxFiles:       req.MaxFiles,
		SkipDuplicates: req.SkipDuplicates == nil || *req.SkipDuplicates,
		Settings: queue.FolderUploadSettings{
			TitleTemplate:       req.TitleTemplate,
			DescriptionTemplate: req.DescriptionTemplate,
			IncludeMD5Hash:      req.IncludeMD5Hash,
			DefaultPrivacy:      req.PrivacyStatus,
			DefaultCategoryID:   req.CategoryID,
			DefaultTags:         req.Tags,
			MadeForKids:         req.MadeForKids,
		},
	}, userID)
	if err != nil {
		if queue.IsJobValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		h.logger.Error("Failed to queue folder", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to queue folder"})
		return
	}

	skipped := make([]SkippedFileResponse, 0, len(result.SkippedFiles))
	for _, file := range result.SkippedFiles {
		skipped = append(skipped, SkippedFileResponse{
			FileID:   file.FileID,
			FileName: file.FileName,
			Reason:   file.Reason,
		})
	}

	c.JSON(http.StatusOK, FolderUploadResponse{
		FolderName:   result.FolderName,
		BatchID:      result.BatchID,
		AddedCount:   result.AddedCount,
		SkippedCount: result.SkippedCount,
		SkippedFiles: skipped,
		Message:      result.Message,
	})
}

// ScanFolder handles GET /drive/folder/:id/scan
func (h *DriveHandler) ScanFolder(c *gin.Context) {
	folderID := c.Param("id")

	recursive, ok := boolQuery(c, "recursive", true)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid recursive parameter"})
		return
	}
	videoOnly, ok := boolQuery(c, "video_only", true)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid video_only parameter"})
		return
	}

	ctx := context.Background()

	folder, err := h.driveClient.GetFile(ctx, folderID)
	if err != nil {
		h.logger.Error("Failed to look up Drive folder", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to look up Drive folder"})
		return
	}
	if folder == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Folder not found"})
		return
	}
	if !folder.IsFolder() {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Not a folder"})
		return
	}

	tree, err := h.driveClient.ScanFolder(ctx, folderID, recursive, videoOnly)
	if err != nil {
		h.logger.Error("Failed to scan Drive folder", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to scan Drive folder"})
		return
	}

	c.JSON(http.StatusOK, toDriveFolderResponse(tree))
}
