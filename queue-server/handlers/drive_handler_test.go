package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shkond/CloudVid-Bridge/core/ccc/db"
	"github.com/shkond/CloudVid-Bridge/core/drive"
	"github.com/shkond/CloudVid-Bridge/core/history"
	"github.com/shkond/CloudVid-Bridge/core/queue"
)

// stubDriveClient serves canned Drive responses
type stubDriveClient struct {
	files    map[string]*drive.File
	rootName string
	videos   []drive.VideoEntry
	tree     *drive.Folder
}

func (s *stubDriveClient) GetFile(ctx context.Context, fileID string) (*drive.File, error) {
	return s.files[fileID], nil
}

func (s *stubDriveClient) ListFolder(ctx context.Context, folderID string) ([]drive.File, error) {
	return nil, nil
}

func (s *stubDriveClient) ScanFolder(ctx context.Context, folderID string, recursive, videoOnly bool) (*drive.Folder, error) {
	return s.tree, nil
}

func (s *stubDriveClient) ListVideos(ctx context.Context, folderID string, recursive bool) (string, []drive.VideoEntry, error) {
	return s.rootName, s.videos, nil
}

func (s *stubDriveClient) DownloadFile(ctx context.Context, fileID, destPath string, progress drive.ProgressFunc) error {
	return nil
}

func newStubDriveClient() *stubDriveClient {
	return &stubDriveClient{
		files: map[string]*drive.File{
			"root-1": {ID: "root-1", Name: "Holidays", MimeType: "application/vnd.google-apps.folder"},
			"file-9": {ID: "file-9", Name: "loose.mp4", MimeType: "video/mp4"},
		},
		rootName: "Holidays",
		videos: []drive.VideoEntry{
			{File: drive.File{ID: "file-1", Name: "beach.mp4", MimeType: "video/mp4", MD5Checksum: "md5-1", Size: 100}, FolderPath: "Holidays"},
			{File: drive.File{ID: "file-2", Name: "sunset.mov", MimeType: "video/quicktime", MD5Checksum: "md5-2", Size: 200}, FolderPath: "Holidays/Clips"},
		},
		tree: &drive.Folder{
			ID:   "root-1",
			Name: "Holidays",
			Files: []drive.File{
				{ID: "file-1", Name: "beach.mp4", MimeType: "video/mp4", Size: 100},
			},
			Subfolders: []*drive.Folder{
				{
					ID:   "sub-1",
					Name: "Clips",
					Files: []drive.File{
						{ID: "file-2", Name: "sunset.mov", MimeType: "video/quicktime", Size: 200},
					},
					TotalVideos: 1,
				},
			},
			TotalVideos: 2,
		},
	}
}

func setupDriveRouter(t *testing.T) (*gin.Engine, queue.QueueService, history.HistoryRepository, func()) {
	gin.SetMode(gin.TestMode)

	testDB, err := db.NewInMemoryDB()
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}

	jobRepo, err := queue.NewSQLiteJobRepository(testDB)
	if err != nil {
		testDB.Close()
		t.Fatalf("Failed to create job repository: %v", err)
	}
	historyRepo, err := history.NewSQLiteHistoryRepository(testDB)
	if err != nil {
		testDB.Close()
		t.Fatalf("Failed to create history repository: %v", err)
	}

	queueService := queue.NewQueueService(nil, jobRepo)
	batchService := queue.NewBatchService(nil, queueService, historyRepo)
	handler := NewDriveHandler(nil, newStubDriveClient(), batchService)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", "user-1")
	})
	router.POST("/drive/folder/upload", handler.UploadFolder)
	router.GET("/drive/folder/:id/scan", handler.ScanFolder)

	cleanup := func() {
		testDB.Close()
	}

	return router, queueService, historyRepo, cleanup
}

func TestDriveHandler_UploadFolder(t *testing.T) {
	router, queueService, _, cleanup := setupDriveRouter(t)
	defer cleanup()

	w := performJSON(router, "POST", "/drive/folder/upload", gin.H{"folder_id": "root-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["folder_name"] != "Holidays" {
		t.Errorf("Expected folder name Holidays, got %v", body["folder_name"])
	}
	if body["added_count"] != float64(2) {
		t.Errorf("Expected 2 added files, got %v", body["added_count"])
	}
	if body["message"] != "Added 2 of 2 videos to the upload queue" {
		t.Errorf("Unexpected message: %v", body["message"])
	}

	batchID, ok := body["batch_id"].(string)
	if !ok || batchID == "" {
		t.Fatalf("Expected batch ID, got %v", body["batch_id"])
	}

	jobs, err := queueService.GetJobsForBatch(batchID)
	if err != nil {
		t.Fatalf("Failed to get batch jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 queued jobs, got %d", len(jobs))
	}
	if jobs[0].UserID != "user-1" {
		t.Errorf("Expected jobs owned by user-1, got %s", jobs[0].UserID)
	}
}

func TestDriveHandler_UploadFolder_TitleTemplate(t *testing.T) {
	router, queueService, _, cleanup := setupDriveRouter(t)
	defer cleanup()

	w := performJSON(router, "POST", "/drive/folder/upload", gin.H{
		"folder_id":      "root-1",
		"title_template": "{folder} - {filename}",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	jobs, err := queueService.GetJobsForBatch(body["batch_id"].(string))
	if err != nil {
		t.Fatalf("Failed to get batch jobs: %v", err)
	}
	if len(jobs) == 0 {
		t.Fatal("Expected queued jobs")
	}
	if jobs[0].Title != "Holidays - beach" {
		t.Errorf("Expected templated title, got %s", jobs[0].Title)
	}
}

func TestDriveHandler_UploadFolder_SkipsUploaded(t *testing.T) {
	router, _, historyRepo, cleanup := setupDriveRouter(t)
	defer cleanup()

	now := time.Now().UTC()
	record := &history.UploadRecord{
		UserID: "user-1", FileID: "file-1", FileName: "beach.mp4", MD5Checksum: "md5-1",
		Status: history.StatusCompleted, UploadedAt: now, CreatedAt: now,
	}
	if err := historyRepo.Add(context.Background(), record); err != nil {
		t.Fatalf("Failed to seed history: %v", err)
	}

	w := performJSON(router, "POST", "/drive/folder/upload", gin.H{"folder_id": "root-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["added_count"] != float64(1) {
		t.Errorf("Expected 1 added file, got %v", body["added_count"])
	}
	if body["skipped_count"] != float64(1) {
		t.Errorf("Expected 1 skipped file, got %v", body["skipped_count"])
	}

	skipped, ok := body["skipped_files"].([]any)
	if !ok || len(skipped) != 1 {
		t.Fatalf("Expected 1 skipped entry, got %v", body["skipped_files"])
	}
	entry := skipped[0].(map[string]any)
	if entry["reason"] != "duplicate" {
		t.Errorf("Expected duplicate reason, got %v", entry["reason"])
	}
}

func TestDriveHandler_UploadFolder_FolderNotFound(t *testing.T) {
	router, _, _, cleanup := setupDriveRouter(t)
	defer cleanup()

	w := performJSON(router, "POST", "/drive/folder/upload", gin.H{"folder_id": "missing"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["detail"] != "Folder not found" {
		t.Errorf("Expected folder not found detail, got %v", body["detail"])
	}
}

func TestDriveHandler_UploadFolder_NotAFolder(t *testing.T) {
	router, _, _, cleanup := setupDriveRouter(t)
	defer cleanup()

	w := performJSON(router, "POST", "/drive/folder/upload", gin.H{"folder_id": "file-9"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["detail"] != "Not a folder" {
		t.Errorf("Expected not a folder detail, got %v", body["detail"])
	}
}

func TestDriveHandler_UploadFolder_MissingFolderID(t *testing.T) {
	router, _, _, cleanup := setupDriveRouter(t)
	defer cleanup()

	w := performJSON(router, "POST", "/drive/folder/upload", gin.H{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestDriveHandler_ScanFolder(t *testing.T) {
	router, _, _, cleanup := setupDriveRouter(t)
	defer cleanup()

	w := performJSON(router, "GET", "/drive/folder/root-1/scan", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["name"] != "Holidays" {
		t.Errorf("Expected folder Holidays, got %v", body["name"])
	}
	if body["total_videos"] != float64(2) {
		t.Errorf("Expected 2 total videos, got %v", body["total_videos"])
	}

	subfolders, ok := body["subfolders"].([]any)
	if !ok || len(subfolders) != 1 {
		t.Fatalf("Expected 1 subfolder, got %v", body["subfolders"])
	}
	sub := subfolders[0].(map[string]any)
	if sub["name"] != "Clips" {
		t.Errorf("Expected subfolder Clips, got %v", sub["name"])
	}
}

func TestDriveHandler_ScanFolder_NotFound(t *testing.T) {
	router, _, _, cleanup := setupDriveRouter(t)
	defer cleanup()

	w := performJSON(router, "GET", "/drive/folder/missing/scan", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestDriveHandler_ScanFolder_InvalidQuery(t *testing.T) {
	router, _, _, cleanup := setupDriveRouter(t)
	defer cleanup()

	w := performJSON(router, "GET", "/drive/folder/root-1/scan?recursive=banana", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}
