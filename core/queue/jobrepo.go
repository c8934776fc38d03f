package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shkond/CloudVid-Bridge/core/ccc/db"
)

type JobRepository interface {
	// Add persists a new job
	Add(ctx context.Context, job *QueueJob) error
	// GetByID retrieves a job by its ID, or nil if it does not exist
	GetByID(ctx context.Context, id string) (*QueueJob, error)
	// GetAll retrieves all jobs, newest first
	GetAll(ctx context.Context) ([]*QueueJob, error)
	// GetByUser retrieves all jobs owned by the given user, newest first
	GetByUser(ctx context.Context, userID string) ([]*QueueJob, error)
	// GetByBatch retrieves all jobs belonging to a folder batch
	GetByBatch(ctx context.Context, batchID string) ([]*QueueJob, error)
	// GetPending retrieves pending jobs in FIFO order
	GetPending(ctx context.Context) ([]*QueueJob, error)
	// GetNextPending retrieves the oldest pending job, or nil if none exists
	GetNextPending(ctx context.Context) (*QueueJob, error)
	// GetActive retrieves jobs that are currently downloading or uploading
	GetActive(ctx context.Context) ([]*QueueJob, error)
	// Update applies a partial update to a job and returns the updated job,
	// or nil if the job does not exist
	Update(ctx context.Context, id string, update JobUpdate) (*QueueJob, error)
	// Transition applies a partial update only if the job is currently in one
	// of the given statuses. Returns the updated job, or nil if the job does
	// not exist or is not in an allowed status.
	Transition(ctx context.Context, id string, from []JobStatus, update JobUpdate) (*QueueJob, error)
	// Cancel moves a pending or downloading job to cancelled. The returned
	// job is non-nil only when the cancellation took effect.
	Cancel(ctx context.Context, id string) (CancelOutcome, *QueueJob, error)
	// Delete removes a job that has reached a terminal status. Returns true
	// if a row was deleted.
	Delete(ctx context.Context, id string) (bool, error)
	// IsFileIDInQueue reports whether a pending or active job references the file ID
	IsFileIDInQueue(ctx context.Context, fileID string) (bool, error)
	// IsMD5InQueue reports whether a pending or active job carries the checksum
	IsMD5InQueue(ctx context.Context, md5 string) (bool, error)
	// GetStatus returns aggregate queue counts, scoped to a user when userID
	// is non-empty
	GetStatus(ctx context.Context, userID string) (*QueueStatus, error)
	// ClearFinished deletes jobs in terminal statuses and returns the number removed
	ClearFinished(ctx context.Context, userID string) (int, error)
	// IncrementRetryCount increments the retry counter of a job
	IncrementRetryCount(ctx context.Context, id string) error
	// ResetForRetry moves a failed job back to pending if it has retries left.
	// Returns the updated job, or nil if the job was not eligible.
	ResetForRetry(ctx context.Context, id string) (*QueueJob, error)
}

// SQLiteJobRepository implements JobRepository using SQLite
type SQLiteJobRepository struct {
	db *sql.DB
}

// NewSQLiteJobRepository creates a new SQLite-based JobRepository
func NewSQLiteJobRepository(db *sql.DB) (*SQLiteJobRepository, error) {
	repo := &SQLiteJobRepository{db: db}
	if err := repo.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return repo, nil
}

// createTables ensures that the required tables exist
func (r *SQLiteJobRepository) createTables() error {
	createJobsTable := `
	CREATE TABLE IF NOT EXISTS queue_jobs (
		id TEXT PRIMARY KEY,
		file_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		md5_checksum TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL,
		batch_id TEXT NOT NULL DEFAULT '',
		folder_path TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		progress REAL NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		video_id TEXT NOT NULL DEFAULT '',
		video_url TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		category_id TEXT NOT NULL DEFAULT '',
		privacy_status TEXT NOT NULL DEFAULT '',
		made_for_kids INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`

	_, err := r.db.Exec(createJobsTable)
	return err
}

const jobColumns = `id, file_id, file_name, md5_checksum, user_id, batch_id, folder_path, status, progress, message, video_id, video_url, error, retry_count, max_retries, title, description, tags, category_id, privacy_status, made_for_kids, created_at, updated_at`

// scanJob reads one job row from a result set
func (r *SQLiteJobRepository) scanJob(rows *sql.Rows) (*QueueJob, error) {
	job := &QueueJob{}
	var status, tagsStr, createdAtStr, updatedAtStr string
	var madeForKids int

	err := rows.Scan(
		&job.ID, &job.FileID, &job.FileName, &job.MD5Checksum, &job.UserID, &job.BatchID,
		&job.FolderPath, &status, &job.Progress, &job.Message, &job.VideoID, &job.VideoURL, &job.Error,
		&job.RetryCount, &job.MaxRetries, &job.Title, &job.Description, &tagsStr,
		&job.CategoryID, &job.PrivacyStatus, &madeForKids, &createdAtStr, &updatedAtStr,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Status = JobStatus(status)
	job.MadeForKids = db.IntToBool(madeForKids)

	job.Tags, err = db.JSONToStrings(tagsStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tags: %w", err)
	}

	// Convert string timestamps back to time.Time
	job.CreatedAt, err = db.StringToTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}

	job.UpdatedAt, err = db.StringToTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at timestamp: %w", err)
	}

	return job, nil
}

// queryJobs runs a query that selects jobColumns and scans all rows
func (r *SQLiteJobRepository) queryJobs(ctx context.Context, query string, args ...any) ([]*QueueJob, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*QueueJob
	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// Add persists a new job
func (r *SQLiteJobRepository) Add(ctx context.Context, job *QueueJob) error {
	tagsStr, err := db.StringsToJSON(job.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	query := `
	INSERT INTO queue_jobs (` + jobColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		job.ID, job.FileID, job.FileName, job.MD5Checksum, job.UserID, job.BatchID,
		job.FolderPath, string(job.Status), job.Progress, job.Message, job.VideoID, job.VideoURL, job.Error,
		job.RetryCount, job.MaxRetries, job.Title, job.Description, tagsStr,
		job.CategoryID, job.PrivacyStatus, db.BoolToInt(job.MadeForKids),
		db.TimeToString(job.CreatedAt), db.TimeToString(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its ID, or nil if it does not exist
func (r *SQLiteJobRepository) GetByID(ctx context.Context, id string) (*QueueJob, error) {
	jobs, err := r.queryJobs(ctx, `SELECT `+jobColumns+` FROM queue_jobs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	return jobs[0], nil
}

// GetAll retrieves all jobs, newest first
func (r *SQLiteJobRepository) GetAll(ctx context.Context) ([]*QueueJob, error) {
	return r.queryJobs(ctx, `SELECT `+jobColumns+` FROM queue_jobs ORDER BY created_at DESC`)
}

// GetByUser retrieves all jobs owned by the given user, newest first
func (r *SQLiteJobRepository) GetByUser(ctx context.Context, userID string) ([]*QueueJob, error) {
	return r.queryJobs(ctx, `SELECT `+jobColumns+` FROM queue_jobs WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

// GetByBatch retrieves all jobs belonging to a folder batch
func (r *SQLiteJobRepository) GetByBatch(ctx context.Context, batchID string) ([]*QueueJob, error) {
	return r.queryJobs(ctx, `SELECT `+jobColumns+` FROM queue_jobs WHERE batch_id = ? ORDER BY created_at ASC`, batchID)
}

// GetPending retrieves pending jobs in FIFO order
func (r *SQLiteJobRepository) GetPending(ctx context.Context) ([]*QueueJob, error) {
	return r.queryJobs(ctx, `SELECT `+jobColumns+` FROM queue_jobs WHERE status = ? ORDER BY created_at ASC`, string(StatusPending))
}

// GetNextPending retrieves the oldest pending job, or nil if none exists
func (r *SQLiteJobRepository) GetNextPending(ctx context.Context) (*QueueJob, error) {
	jobs, err := r.queryJobs(ctx, `SELECT `+jobColumns+` FROM queue_jobs WHERE status = ? ORDER BY created_at ASC LIMIT 1`, string(StatusPending))
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	return jobs[0], nil
}

// GetActive retrieves jobs that are currently downloading or uploading
func (r *SQLiteJobRepository) GetActive(ctx context.Context) ([]*QueueJob, error) {
	return r.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM queue_jobs WHERE status IN (?, ?) ORDER BY created_at ASC`,
		string(StatusDownloading), string(StatusUploading))
}

// buildSetClause turns a JobUpdate into SQL SET fragments and their arguments.
// updated_at is always touched.
func buildSetClause(update JobUpdate) ([]string, []any) {
	setClauses := []string{"updated_at = ?"}
	args := []any{db.TimeToString(time.Now().UTC())}

	if update.Status != nil {
		setClauses = append(setClauses, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Progress != nil {
		setClauses = append(setClauses, "progress = ?")
		args = append(args, *update.Progress)
	}
	if update.Message != nil {
		setClauses = append(setClauses, "message = ?")
		args = append(args, *update.Message)
	}
	if update.VideoID != nil {
		setClauses = append(setClauses, "video_id = ?")
		args = append(args, *update.VideoID)
	}
	if update.VideoURL != nil {
		setClauses = append(setClauses, "video_url = ?")
		args = append(args, *update.VideoURL)
	}
	if update.Error != nil {
		setClauses = append(setClauses, "error = ?")
		args = append(args, *update.Error)
	}

	return setClauses, args
}

// Update applies a partial update to a job and returns the updated job,
// or nil if the job does not exist
func (r *SQLiteJobRepository) Update(ctx context.Context, id string, update JobUpdate) (*QueueJob, error) {
	setClauses, args := buildSetClause(update)
	args = append(args, id)

	query := fmt.Sprintf("UPDATE queue_jobs SET %s WHERE id = ?", strings.Join(setClauses, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, id)
}

// Transition applies a partial update only if the job is currently in one of
// the given statuses. The status check and the update are a single statement,
// so concurrent writers cannot move a job out of a terminal status.
func (r *SQLiteJobRepository) Transition(ctx context.Context, id string, from []JobStatus, update JobUpdate) (*QueueJob, error) {
	if len(from) == 0 {
		return nil, fmt.Errorf("transition requires at least one source status")
	}

	setClauses, args := buildSetClause(update)
	args = append(args, id)

	placeholders := make([]string, len(from))
	for i, s := range from {
		placeholders[i] = "?"
		args = append(args, string(s))
	}

	query := fmt.Sprintf("UPDATE queue_jobs SET %s WHERE id = ? AND status IN (%s)",
		strings.Join(setClauses, ", "), strings.Join(placeholders, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to transition job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, id)
}

// Cancel moves a pending or downloading job to cancelled. The returned job is
// non-nil only when the cancellation took effect.
func (r *SQLiteJobRepository) Cancel(ctx context.Context, id string) (CancelOutcome, *QueueJob, error) {
	query := `
	UPDATE queue_jobs SET status = ?, message = ?, updated_at = ?
	WHERE id = ? AND status IN (?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		string(StatusCancelled), "Cancelled by user", db.TimeToString(time.Now().UTC()),
		id, string(StatusPending), string(StatusDownloading),
	)
	if err != nil {
		return CancelOutcomeNotFound, nil, fmt.Errorf("failed to cancel job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return CancelOutcomeNotFound, nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		job, err := r.GetByID(ctx, id)
		if err != nil {
			return CancelOutcomeCancelled, nil, err
		}
		return CancelOutcomeCancelled, job, nil
	}

	// Nothing matched: either the job is gone or it is past cancellation.
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return CancelOutcomeNotFound, nil, err
	}
	if job == nil {
		return CancelOutcomeNotFound, nil, nil
	}

	return CancelOutcomeNotCancellable, nil, nil
}

// Delete removes a job that has reached a terminal status. Returns true if a
// row was deleted.
func (r *SQLiteJobRepository) Delete(ctx context.Context, id string) (bool, error) {
	query := `DELETE FROM queue_jobs WHERE id = ? AND status IN (?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		id, string(StatusCompleted), string(StatusFailed), string(StatusCancelled))
	if err != nil {
		return false, fmt.Errorf("failed to delete job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// IsFileIDInQueue reports whether a pending or active job references the file ID
func (r *SQLiteJobRepository) IsFileIDInQueue(ctx context.Context, fileID string) (bool, error) {
	query := `
	SELECT COUNT(*) FROM queue_jobs
	WHERE file_id = ? AND status IN (?, ?, ?)`

	var count int
	err := r.db.QueryRowContext(ctx, query,
		fileID, string(StatusPending), string(StatusDownloading), string(StatusUploading)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check file ID: %w", err)
	}

	return count > 0, nil
}

// IsMD5InQueue reports whether a pending or active job carries the checksum
func (r *SQLiteJobRepository) IsMD5InQueue(ctx context.Context, md5 string) (bool, error) {
	if md5 == "" {
		return false, nil
	}

	query := `
	SELECT COUNT(*) FROM queue_jobs
	WHERE md5_checksum = ? AND status IN (?, ?, ?)`

	var count int
	err := r.db.QueryRowContext(ctx, query,
		md5, string(StatusPending), string(StatusDownloading), string(StatusUploading)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check checksum: %w", err)
	}

	return count > 0, nil
}

// GetStatus returns aggregate queue counts, scoped to a user when userID is non-empty
func (r *SQLiteJobRepository) GetStatus(ctx context.Context, userID string) (*QueueStatus, error) {
	query := `SELECT status, COUNT(*) FROM queue_jobs`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue status: %w", err)
	}
	defer rows.Close()

	status := &QueueStatus{}
	for rows.Next() {
		var jobStatus string
		var count int
		if err := rows.Scan(&jobStatus, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}

		status.TotalJobs += count
		switch JobStatus(jobStatus) {
		case StatusPending:
			status.PendingJobs = count
		case StatusDownloading, StatusUploading:
			status.ActiveJobs += count
		case StatusCompleted:
			status.CompletedJobs = count
		case StatusFailed:
			status.FailedJobs = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	status.IsProcessing = status.ActiveJobs > 0
	return status, nil
}

// ClearFinished deletes jobs in terminal statuses and returns the number removed
func (r *SQLiteJobRepository) ClearFinished(ctx context.Context, userID string) (int, error) {
	query := `DELETE FROM queue_jobs WHERE status IN (?, ?, ?)`
	args := []any{string(StatusCompleted), string(StatusFailed), string(StatusCancelled)}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear finished jobs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

// IncrementRetryCount increments the retry counter of a job
func (r *SQLiteJobRepository) IncrementRetryCount(ctx context.Context, id string) error {
	query := `UPDATE queue_jobs SET retry_count = retry_count + 1, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, db.TimeToString(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("job with ID %s not found", id)
	}

	return nil
}

// ResetForRetry moves a failed job back to pending if it has retries left.
// The eligibility check, the counter increment and the reset are a single
// statement, so two concurrent retries cannot both succeed.
func (r *SQLiteJobRepository) ResetForRetry(ctx context.Context, id string) (*QueueJob, error) {
	query := `
	UPDATE queue_jobs
	SET status = ?, progress = 0, message = ?, error = '', retry_count = retry_count + 1, updated_at = ?
	WHERE id = ? AND status = ? AND retry_count < max_retries`

	result, err := r.db.ExecContext(ctx, query,
		string(StatusPending), "Queued for retry", db.TimeToString(time.Now().UTC()),
		id, string(StatusFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reset job for retry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, id)
}
