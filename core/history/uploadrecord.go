package history

import "time"

// Status values for upload records
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// UploadRecord is a permanent record of a finished upload attempt. Completed
// records also serve duplicate detection across queue generations.
type UploadRecord struct {
	ID          int64
	UserID      string
	FileID      string
	FileName    string
	MD5Checksum string
	VideoID     string
	VideoURL    string
	FolderPath  string
	Status      string

	// Probed media properties, zero when probing was skipped or failed
	DurationSeconds float64
	Width           int
	Height          int

	UploadedAt time.Time
	CreatedAt  time.Time
}
