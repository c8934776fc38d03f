package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shkond/CloudVid-Bridge/core/ccc/db"
)

type HistoryRepository interface {
	// Add persists a new upload record and assigns its ID
	Add(ctx context.Context, record *UploadRecord) error
	// GetRecent retrieves the most recent records, newest first. An empty
	// user ID matches all users, a limit of 0 means no limit.
	GetRecent(ctx context.Context, userID string, limit int) ([]*UploadRecord, error)
	// HasFileBeenUploaded reports whether a completed upload exists for the
	// file ID or, when non-empty, the checksum. The check spans all users
	// since every upload lands on the same channel.
	HasFileBeenUploaded(ctx context.Context, fileID, md5 string) (bool, error)
}

// SQLiteHistoryRepository implements HistoryRepository using SQLite
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new SQLite-based HistoryRepository
func NewSQLiteHistoryRepository(db *sql.DB) (*SQLiteHistoryRepository, error) {
	repo := &SQLiteHistoryRepository{db: db}
	if err := repo.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return repo, nil
}

// createTables ensures that the required tables and indexes exist
func (r *SQLiteHistoryRepository) createTables() error {
	createHistoryTable := `
	CREATE TABLE IF NOT EXISTS upload_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL DEFAULT '',
		file_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		md5_checksum TEXT NOT NULL DEFAULT '',
		video_id TEXT NOT NULL DEFAULT '',
		video_url TEXT NOT NULL DEFAULT '',
		folder_path TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'completed',
		duration_seconds REAL NOT NULL DEFAULT 0,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		uploaded_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_upload_history_user_id ON upload_history(user_id);
	CREATE INDEX IF NOT EXISTS idx_upload_history_file_id ON upload_history(file_id);
	CREATE INDEX IF NOT EXISTS idx_upload_history_md5 ON upload_history(md5_checksum);`

	_, err := r.db.Exec(createHistoryTable)
	return err
}

// Add persists a new upload record and assigns its ID
func (r *SQLiteHistoryRepository) Add(ctx context.Context, record *UploadRecord) error {
	query := `
	INSERT INTO upload_history (user_id, file_id, file_name, md5_checksum, video_id, video_url, folder_path, status, duration_seconds, width, height, uploaded_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		record.UserID, record.FileID, record.FileName, record.MD5Checksum,
		record.VideoID, record.VideoURL, record.FolderPath, record.Status,
		record.DurationSeconds, record.Width, record.Height,
		db.TimeToString(record.UploadedAt), db.TimeToString(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add upload record: %w", err)
	}

	record.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get record ID: %w", err)
	}

	return nil
}

// GetRecent retrieves the most recent records, newest first
func (r *SQLiteHistoryRepository) GetRecent(ctx context.Context, userID string, limit int) ([]*UploadRecord, error) {
	query := `
	SELECT id, user_id, file_id, file_name, md5_checksum, video_id, video_url, folder_path, status, duration_seconds, width, height, uploaded_at, created_at
	FROM upload_history`

	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY uploaded_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query upload history: %w", err)
	}
	defer rows.Close()

	var records []*UploadRecord
	for rows.Next() {
		record := &UploadRecord{}
		var uploadedAtStr, createdAtStr string
		err := rows.Scan(
			&record.ID, &record.UserID, &record.FileID, &record.FileName, &record.MD5Checksum,
			&record.VideoID, &record.VideoURL, &record.FolderPath, &record.Status,
			&record.DurationSeconds, &record.Width, &record.Height,
			&uploadedAtStr, &createdAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload record: %w", err)
		}

		// Convert string timestamps back to time.Time
		record.UploadedAt, err = db.StringToTime(uploadedAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse uploaded_at timestamp: %w", err)
		}

		record.CreatedAt, err = db.StringToTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

// HasFileBeenUploaded reports whether a completed upload exists for the file
// ID or, when non-empty, the checksum
func (r *SQLiteHistoryRepository) HasFileBeenUploaded(ctx context.Context, fileID, md5 string) (bool, error) {
	query := `SELECT COUNT(*) FROM upload_history WHERE status = ? AND (file_id = ?`
	args := []any{StatusCompleted, fileID}
	if md5 != "" {
		query += ` OR md5_checksum = ?`
		args = append(args, md5)
	}
	query += `)`

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check upload history: %w", err)
	}

	return count > 0, nil
}
