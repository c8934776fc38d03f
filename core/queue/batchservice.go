package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
	"github.com/shkond/CloudVid-Bridge/core/history"
)

// DefaultMaxBatchFiles caps a folder batch when the request does not
const DefaultMaxBatchFiles = 100

// BatchFile is one candidate file for a folder batch
type BatchFile struct {
	FileID      string
	FileName    string
	MimeType    string
	MD5Checksum string
	Size        int64
	FolderPath  string
}

// FolderUploadSettings carries the per-batch defaults applied to every job
type FolderUploadSettings struct {
	// TitleTemplate and DescriptionTemplate support the placeholders
	// {filename}, {folder}, {folder_path} and {upload_date}
	TitleTemplate       string
	DescriptionTemplate string
	// IncludeMD5Hash appends the file checksum to the description so
	// re-uploads can be spotted on the video itself
	IncludeMD5Hash    bool
	DefaultPrivacy    string
	DefaultCategoryID string
	DefaultTags       []string
	MadeForKids       bool
}

// FolderBatchRequest asks for all given files to be queued as one batch
type FolderBatchRequest struct {
	FolderName     string
	Files          []BatchFile
	MaxFiles       int
	SkipDuplicates bool
	Settings       FolderUploadSettings
}

// SkippedFile explains why a file was left out of a batch
type SkippedFile struct {
	FileID   string
	FileName string
	Reason   string
}

// Skip reasons reported in FolderBatchResult
const (
	SkipReasonDuplicate      = "duplicate"
	SkipReasonAlreadyInQueue = "already_in_queue"
	SkipReasonMaxFiles       = "max_files_reached"
)

// FolderBatchResult summarizes the outcome of a folder batch
type FolderBatchResult struct {
	FolderName   string
	BatchID      string
	AddedCount   int
	SkippedCount int
	SkippedFiles []SkippedFile
	Message      string
}

type BatchService interface {
	// QueueFolder adds every eligible file of a folder to the queue as one
	// batch, skipping files that were already uploaded or queued
	QueueFolder(req FolderBatchRequest, userID string) (*FolderBatchResult, error)
}

type batchService struct {
	logger      logging.Logger
	queue       QueueService
	historyRepo history.HistoryRepository
}

// NewBatchService creates a new BatchService
func NewBatchService(logger logging.Logger, queue QueueService, historyRepo history.HistoryRepository) *batchService {

	if logger == nil {
		logger = logging.NopLogger
	}

	return &batchService{
		logger:      logger,
		queue:       queue,
		historyRepo: historyRepo,
	}
}

func (s *batchService) QueueFolder(req FolderBatchRequest, userID string) (*FolderBatchResult, error) {
	folderName := strings.TrimSpace(req.FolderName)
	if folderName == "" {
		return nil, NewJobValidationError("folder name cannot be empty")
	}

	maxFiles := req.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxBatchFiles
	}

	titleTemplate := req.Settings.TitleTemplate
	if titleTemplate == "" {
		titleTemplate = "{filename}"
	}

	batchID := uuid.New().String()
	now := time.Now().UTC()
	ctx := context.Background()

	s.logger.Info("Queueing folder batch", "batch_id", batchID, "folder", folderName, "files", len(req.Files))

	result := &FolderBatchResult{
		FolderName: folderName,
		BatchID:    batchID,
	}

	for _, file := range req.Files {
		if result.AddedCount >= maxFiles {
			result.SkippedFiles = append(result.SkippedFiles, SkippedFile{
				FileID: file.FileID, FileName: file.FileName, Reason: SkipReasonMaxFiles,
			})
			continue
		}

		if req.SkipDuplicates {
			uploaded, err := s.historyRepo.HasFileBeenUploaded(ctx, file.FileID, file.MD5Checksum)
			if err != nil {
				s.logger.Error("Failed to check upload history", "error", err, "file_id", file.FileID)
				return nil, err
			}
			if uploaded {
				result.SkippedFiles = append(result.SkippedFiles, SkippedFile{
					FileID: file.FileID, FileName: file.FileName, Reason: SkipReasonDuplicate,
				})
				continue
			}
		}

		description := renderTemplate(req.Settings.DescriptionTemplate, file, folderName, now)
		if req.Settings.IncludeMD5Hash && file.MD5Checksum != "" {
			if description != "" {
				description += "\n\n"
			}
			description += "MD5: " + file.MD5Checksum
		}

		job, reason, err := s.queue.AddJob(CreateJobRequest{
			FileID:        file.FileID,
			FileName:      file.FileName,
			MD5Checksum:   file.MD5Checksum,
			BatchID:       batchID,
			FolderPath:    file.FolderPath,
			Title:         renderTemplate(titleTemplate, file, folderName, now),
			Description:   description,
			Tags:          req.Settings.DefaultTags,
			CategoryID:    req.Settings.DefaultCategoryID,
			PrivacyStatus: req.Settings.DefaultPrivacy,
			MadeForKids:   req.Settings.MadeForKids,
		}, userID)
		if err != nil {
			return nil, err
		}
		if job == nil {
			result.SkippedFiles = append(result.SkippedFiles, SkippedFile{
				FileID: file.FileID, FileName: file.FileName, Reason: SkipReasonAlreadyInQueue,
			})
			s.logger.Debug("Skipped file already in queue", "file_id", file.FileID, "detail", reason)
			continue
		}

		result.AddedCount++
	}

	result.SkippedCount = len(result.SkippedFiles)
	result.Message = fmt.Sprintf("Added %d of %d videos to the upload queue", result.AddedCount, len(req.Files))

	s.logger.Info("Folder batch queued", "batch_id", batchID, "added", result.AddedCount, "skipped", result.SkippedCount)
	return result, nil
}

// renderTemplate substitutes the folder upload placeholders in a template
func renderTemplate(template string, file BatchFile, folderName string, now time.Time) string {
	if template == "" {
		return ""
	}

	name := strings.TrimSuffix(file.FileName, filepath.Ext(file.FileName))

	replacer := strings.NewReplacer(
		"{filename}", name,
		"{folder}", folderName,
		"{folder_path}", file.FolderPath,
		"{upload_date}", now.Format("2006-01-02"),
	)
	return replacer.Replace(template)
}
