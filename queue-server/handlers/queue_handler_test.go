package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shkond/CloudVid-Bridge/core/ccc/db"
	"github.com/shkond/CloudVid-Bridge/core/history"
	"github.com/shkond/CloudVid-Bridge/core/queue"
)

// setupQueueRouter builds a queue handler router authenticated as user-1
func setupQueueRouter(t *testing.T) (*gin.Engine, queue.QueueService, history.HistoryRepository, func()) {
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
	handler := NewQueueHandler(nil, queueService, historyRepo)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", "user-1")
		c.Set("username", "alice")
	})
	router.POST("/queue/jobs", handler.AddJob)
	router.GET("/queue/jobs", handler.ListJobs)
	router.GET("/queue/jobs/:id", handler.GetJob)
	router.POST("/queue/jobs/:id/cancel", handler.CancelJob)
	router.POST("/queue/jobs/:id/retry", handler.RetryJob)
	router.DELETE("/queue/jobs/:id", handler.DeleteJob)
	router.POST("/queue/clear", handler.ClearQueue)
	router.GET("/queue/status", handler.GetStatus)
	router.GET("/queue/history", handler.GetHistory)
	router.GET("/queue/batch/:batchId", handler.GetBatch)

	cleanup := func() {
		testDB.Close()
	}

	return router, queueService, historyRepo, cleanup
}

// performJSON sends a request with an optional JSON body through the router
func performJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	return body
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()

	var body []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	return body
}

// addTestJob queues a job directly through the service
func addTestJob(t *testing.T, service queue.QueueService, fileID, userID string) *queue.QueueJob {
	t.Helper()

	job, reason, err := service.AddJob(queue.CreateJobRequest{
		FileID:   fileID,
		FileName: fileID + ".mp4",
	}, userID)
	if err != nil {
		t.Fatalf("Failed to add job: %v", err)
	}
	if job == nil {
		t.Fatalf("Job was rejected: %s", reason)
	}
	return job
}

// completeTestJob drives a job through its lifecycle to completed
func completeTestJob(t *testing.T, service queue.QueueService, id string) {
	t.Helper()

	if _, err := service.MarkJobStarted(id); err != nil {
		t.Fatalf("Failed to start job: %v", err)
	}
	if _, err := service.MarkJobUploading(id, 50); err != nil {
		t.Fatalf("Failed to move job to uploading: %v", err)
	}
	if _, err := service.MarkJobCompleted(id, "vid-1", "https://www.youtube.com/watch?v=vid-1"); err != nil {
		t.Fatalf("Failed to complete job: %v", err)
	}
}

// failTestJob drives a job to failed
func failTestJob(t *testing.T, service queue.QueueService, id string) {
	t.Helper()

	if _, err := service.MarkJobStarted(id); err != nil {
		t.Fatalf("Failed to start job: %v", err)
	}
	if _, err := service.MarkJobFailed(id, "download failed"); err != nil {
		t.Fatalf("Failed to fail job: %v", err)
	}
}

func TestQueueHandler_AddJob(t *testing.T) {
	router, _, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	w := performJSON(router, "POST", "/queue/jobs", gin.H{
		"file_id":      "file-1",
		"file_name":    "holiday.mp4",
		"md5_checksum": "abc123",
		"title":        "Holiday Video",
		"tags":         []string{"holiday"},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["id"] == "" {
		t.Error("Expected assigned job ID")
	}
	if body["status"] != "pending" {
		t.Errorf("Expected status pending, got %v", body["status"])
	}
	if body["message"] != "Queued for upload" {
		t.Errorf("Expected queued message, got %v", body["message"])
	}
	if body["user_id"] != "user-1" {
		t.Errorf("Expected job owned by user-1, got %v", body["user_id"])
	}
	if body["title"] != "Holiday Video" {
		t.Errorf("Expected title Holiday Video, got %v", body["title"])
	}
	if body["privacy_status"] != "private" {
		t.Errorf("Expected default privacy private, got %v", body["privacy_status"])
	}
	if body["category_id"] != "24" {
		t.Errorf("Expected default category 24, got %v", body["category_id"])
	}
}

func TestQueueHandler_AddJob_Duplicate(t *testing.T) {
	router, _, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	request := gin.H{"file_id": "file-1", "file_name": "holiday.mp4"}

	w := performJSON(router, "POST", "/queue/jobs", request)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}

	w = performJSON(router, "POST", "/queue/jobs", request)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for duplicate, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["detail"] != "File is already in the queue" {
		t.Errorf("Expected duplicate detail, got %v", body["detail"])
	}
}

func TestQueueHandler_AddJob_MissingFields(t *testing.T) {
	router, _, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	w := performJSON(router, "POST", "/queue/jobs", gin.H{"file_name": "holiday.mp4"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestQueueHandler_GetJob(t *testing.T) {
	router, service, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	job := addTestJob(t, service, "file-1", "user-1")

	w := performJSON(router, "GET", "/queue/jobs/"+job.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["id"] != job.ID {
		t.Errorf("Expected job %s, got %v", job.ID, body["id"])
	}
}

func TestQueueHandler_GetJob_NotFound(t *testing.T) {
	router, _, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	w := performJSON(router, "GET", "/queue/jobs/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["detail"] != "Job not found" {
		t.Errorf("Expected not found detail, got %v", body["detail"])
	}
}

func TestQueueHandler_GetJob_ForeignJob(t *testing.T) {
	router, service, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	job := addTestJob(t, service, "file-1", "user-2")

	w := performJSON(router, "GET", "/queue/jobs/"+job.ID, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected status 403, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["detail"] != "Access denied" {
		t.Errorf("Expected access denied detail, got %v", body["detail"])
	}
}

func TestQueueHandler_ListJobs_OnlyOwn(t *testing.T) {
	router, service, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	addTestJob(t, service, "file-1", "user-1")
	addTestJob(t, service, "file-2", "user-2")

	w := performJSON(router, "GET", "/queue/jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	jobs := decodeList(t, w)
	if len(jobs) != 1 {
		t.Fatalf("Expected 1 job, got %d", len(jobs))
	}
	if jobs[0]["file_id"] != "file-1" {
		t.Errorf("Expected file-1, got %v", jobs[0]["file_id"])
	}
}

func TestQueueHandler_CancelJob(t *testing.T) {
	router, service, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	job := addTestJob(t, service, "file-1", "user-1")

	w := performJSON(router, "POST", "/queue/jobs/"+job.ID+"/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["status"] != "cancelled" {
		t.Errorf("Expected status cancelled, got %v", body["status"])
	}
	if body["message"] != "Cancelled by user" {
		t.Errorf("Expected cancelled message, got %v", body["message"])
	}
}

func TestQueueHandler_CancelJob_Completed(t *testing.T) {
	router, service, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	job := addTestJob(t, service, "file-1", "user-1")
	completeTestJob(t, service, job.ID)

	w := performJSON(router, "POST", "/queue/jobs/"+job.ID+"/cancel", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["detail"] != "Job cannot be cancelled" {
		t.Errorf("Expected cannot cancel detail, got %v", body["detail"])
	}
}

func TestQueueHandler_RetryJob(t *testing.T) {
	router, service, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	job := addTestJob(t, service, "file-1", "user-1")
	failTestJob(t, service, job.ID)

	w := performJSON(router, "POST", "/queue/jobs/"+job.ID+"/retry", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["status"] != "pending" {
		t.Errorf("Expected status pending, got %v", body["status"])
	}
	if body["message"] != "Queued for retry" {
		t.Errorf("Expected retry message, got %v", body["message"])
	}
	if body["retry_count"] != float64(1) {
		t.Errorf("Expected retry count 1, got %v", body["retry_count"])
	}
}

func TestQueueHandler_RetryJob_NotFailed(t *testing.T) {
	router, service, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	job := addTestJob(t, service, "file-1", "user-1")

	w := performJSON(router, "POST", "/queue/jobs/"+job.ID+"/retry", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["detail"] != "Job is not in failed status" {
		t.Errorf("Expected not failed detail, got %v", body["detail"])
	}
}

func TestQueueHandler_DeleteJob(t *testing.T) {
	router, service, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	job := addTestJob(t, service, "file-1", "user-1")
	completeTestJob(t, service, job.ID)

	w := performJSON(router, "DELETE", "/queue/jobs/"+job.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["detail"] != "Job deleted" {
		t.Errorf("Expected deleted detail, got %v", body["detail"])
	}

	w = performJSON(router, "GET", "/queue/jobs/"+job.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected deleted job to be gone, got %d", w.Code)
	}
}

func TestQueueHandler_DeleteJob_Active(t *testing.T) {
	router, service, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	job := addTestJob(t, service, "file-1", "user-1")
	if _, err := service.MarkJobStarted(job.ID); err != nil {
		t.Fatalf("Failed to start job: %v", err)
	}

	w := performJSON(router, "DELETE", "/queue/jobs/"+job.ID, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["detail"] != "Cannot delete an active job" {
		t.Errorf("Expected active job detail, got %v", body["detail"])
	}
}

func TestQueueHandler_ClearQueue(t *testing.T) {
	router, service, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	completed := addTestJob(t, service, "file-1", "user-1")
	completeTestJob(t, service, completed.ID)
	failed := addTestJob(t, service, "file-2", "user-1")
	failTestJob(t, service, failed.ID)
	addTestJob(t, service, "file-3", "user-1")

	w := performJSON(router, "POST", "/queue/clear", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["cleared_count"] != float64(2) {
		t.Errorf("Expected 2 cleared jobs, got %v", body["cleared_count"])
	}
}

func TestQueueHandler_GetStatus(t *testing.T) {
	router, service, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	addTestJob(t, service, "file-1", "user-1")
	active := addTestJob(t, service, "file-2", "user-1")
	if _, err := service.MarkJobStarted(active.ID); err != nil {
		t.Fatalf("Failed to start job: %v", err)
	}
	completed := addTestJob(t, service, "file-3", "user-1")
	completeTestJob(t, service, completed.ID)

	// Another user's job must not show up in the counts
	addTestJob(t, service, "file-4", "user-2")

	w := performJSON(router, "GET", "/queue/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["total_jobs"] != float64(3) {
		t.Errorf("Expected 3 total jobs, got %v", body["total_jobs"])
	}
	if body["pending_jobs"] != float64(1) {
		t.Errorf("Expected 1 pending job, got %v", body["pending_jobs"])
	}
	if body["active_jobs"] != float64(1) {
		t.Errorf("Expected 1 active job, got %v", body["active_jobs"])
	}
	if body["completed_jobs"] != float64(1) {
		t.Errorf("Expected 1 completed job, got %v", body["completed_jobs"])
	}
	if body["is_processing"] != true {
		t.Errorf("Expected is_processing true, got %v", body["is_processing"])
	}
}

func TestQueueHandler_GetHistory(t *testing.T) {
	router, _, historyRepo, cleanup := setupQueueRouter(t)
	defer cleanup()

	now := time.Now().UTC()
	records := []*history.UploadRecord{
		{UserID: "user-1", FileID: "file-1", FileName: "a.mp4", Status: history.StatusCompleted, UploadedAt: now, CreatedAt: now},
		{UserID: "user-2", FileID: "file-2", FileName: "b.mp4", Status: history.StatusCompleted, UploadedAt: now, CreatedAt: now},
	}
	for _, record := range records {
		if err := historyRepo.Add(context.Background(), record); err != nil {
			t.Fatalf("Failed to add history record: %v", err)
		}
	}

	w := performJSON(router, "GET", "/queue/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	entries := decodeList(t, w)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(entries))
	}
	if entries[0]["file_id"] != "file-1" {
		t.Errorf("Expected file-1, got %v", entries[0]["file_id"])
	}
}

func TestQueueHandler_GetHistory_InvalidLimit(t *testing.T) {
	router, _, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	w := performJSON(router, "GET", "/queue/history?limit=nope", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestQueueHandler_GetBatch(t *testing.T) {
	router, service, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	job, reason, err := service.AddJob(queue.CreateJobRequest{
		FileID:   "file-1",
		FileName: "a.mp4",
		BatchID:  "batch-1",
	}, "user-1")
	if err != nil || job == nil {
		t.Fatalf("Failed to add batch job: %v %s", err, reason)
	}

	w := performJSON(router, "GET", "/queue/batch/batch-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["batch_id"] != "batch-1" {
		t.Errorf("Expected batch-1, got %v", body["batch_id"])
	}
	jobs, ok := body["jobs"].([]any)
	if !ok || len(jobs) != 1 {
		t.Errorf("Expected 1 job in batch, got %v", body["jobs"])
	}
}

func TestQueueHandler_GetBatch_Foreign(t *testing.T) {
	router, service, _, cleanup := setupQueueRouter(t)
	defer cleanup()

	job, reason, err := service.AddJob(queue.CreateJobRequest{
		FileID:   "file-1",
		FileName: "a.mp4",
		BatchID:  "batch-1",
	}, "user-2")
	if err != nil || job == nil {
		t.Fatalf("Failed to add batch job: %v %s", err, reason)
	}

	w := performJSON(router, "GET", "/queue/batch/batch-1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for foreign batch, got %d", w.Code)
	}
}
