package queue

import (
	"time"
)

// JobStatus represents the lifecycle state of a queue job
type JobStatus string

const (
	StatusPending     JobStatus = "pending"
	StatusDownloading JobStatus = "downloading"
	StatusUploading   JobStatus = "uploading"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusCancelled   JobStatus = "cancelled"
)

// DefaultMaxRetries is the retry ceiling assigned to new jobs
const DefaultMaxRetries = 3

// IsActive reports whether a job in this status is currently being processed
func (s JobStatus) IsActive() bool {
	return s == StatusDownloading || s == StatusUploading
}

// IsTerminal reports whether no further automatic transition leaves this status
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// QueueJob is one requested file transfer and its lifecycle state
type QueueJob struct {
	ID          string
	FileID      string
	FileName    string
	MD5Checksum string
	UserID      string
	BatchID     string
	FolderPath  string
	Status      JobStatus
	Progress    float64
	Message     string
	VideoID     string
	VideoURL    string
	Error       string
	RetryCount  int
	MaxRetries  int

	// Upload metadata, immutable once the job is created
	Title         string
	Description   string
	Tags          []string
	CategoryID    string
	PrivacyStatus string
	MadeForKids   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobUpdate describes a partial update to a job. Nil fields are left untouched.
type JobUpdate struct {
	Status   *JobStatus
	Progress *float64
	Message  *string
	VideoID  *string
	VideoURL *string
	Error    *string
}

// QueueStatus is an aggregate summary of the queue
type QueueStatus struct {
	TotalJobs     int
	PendingJobs   int
	ActiveJobs    int
	CompletedJobs int
	FailedJobs    int
	IsProcessing  bool
}

// CancelOutcome disambiguates the result of a cancel attempt
type CancelOutcome int

const (
	// CancelOutcomeNotFound means no job with the given ID exists
	CancelOutcomeNotFound CancelOutcome = iota
	// CancelOutcomeNotCancellable means the job exists but is past the point of cancellation
	CancelOutcomeNotCancellable
	// CancelOutcomeCancelled means the job was moved to the cancelled state
	CancelOutcomeCancelled
)
