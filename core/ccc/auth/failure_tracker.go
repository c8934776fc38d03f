package auth

import (
	"sync"
	"time"
)

// FailureRecord represents a single failed login attempt
type FailureRecord struct {
	Username  string
	RemoteIP  string
	Timestamp time.Time
}

// FailureTracker tracks failed login attempts per account
type FailureTracker interface {
	// RecordFailure records a failed login and returns the failure count for
	// the username within the time window
	RecordFailure(username string, remoteIP string, timestamp time.Time) int
	// IsLockedOut returns true if the username has reached the lockout threshold
	IsLockedOut(username string, now time.Time) bool
	// ClearFailures forgets the failures of a username after a successful login
	ClearFailures(username string)
}

// LockoutSettings holds configuration for login throttling
type LockoutSettings struct {
	Threshold  int           // Number of failures that trigger a lockout (0 to disable)
	TimeWindow time.Duration // Time window for counting failures
}

// nopFailureTracker is a no-operation implementation
type nopFailureTracker struct{}

var NopFailureTracker FailureTracker = &nopFailureTracker{}

func (n *nopFailureTracker) RecordFailure(username string, remoteIP string, timestamp time.Time) int {
	return 0
}

func (n *nopFailureTracker) IsLockedOut(username string, now time.Time) bool {
	return false
}

func (n *nopFailureTracker) ClearFailures(username string) {}

// memoryFailureTracker implements FailureTracker using in-memory storage
type memoryFailureTracker struct {
	settings      LockoutSettings
	failures      []FailureRecord
	failuresMutex sync.Mutex
}

// NewMemoryFailureTracker creates a new in-memory failure tracker
func NewMemoryFailureTracker(settings LockoutSettings) FailureTracker {
	return &memoryFailureTracker{
		settings: settings,
		failures: make([]FailureRecord, 0),
	}
}

func (t *memoryFailureTracker) RecordFailure(username string, remoteIP string, timestamp time.Time) int {
	t.failuresMutex.Lock()
	defer t.failuresMutex.Unlock()

	// Add the new failure record
	t.failures = append(t.failures, FailureRecord{
		Username:  username,
		RemoteIP:  remoteIP,
		Timestamp: timestamp,
	})

	// Clean up old records outside the time window
	cutoffTime := timestamp.Add(-t.settings.TimeWindow)
	validFailures := make([]FailureRecord, 0)
	for _, failure := range t.failures {
		if !failure.Timestamp.Before(cutoffTime) {
			validFailures = append(validFailures, failure)
		}
	}
	t.failures = validFailures

	return t.countLocked(username, cutoffTime)
}

func (t *memoryFailureTracker) IsLockedOut(username string, now time.Time) bool {
	if t.settings.Threshold <= 0 {
		return false
	}

	t.failuresMutex.Lock()
	defer t.failuresMutex.Unlock()

	return t.countLocked(username, now.Add(-t.settings.TimeWindow)) >= t.settings.Threshold
}

func (t *memoryFailureTracker) ClearFailures(username string) {
	t.failuresMutex.Lock()
	defer t.failuresMutex.Unlock()

	remaining := make([]FailureRecord, 0, len(t.failures))
	for _, failure := range t.failures {
		if failure.Username != username {
			remaining = append(remaining, failure)
		}
	}
	t.failures = remaining
}

// countLocked counts the failures of a username at or after the cutoff.
// Callers must hold failuresMutex.
func (t *memoryFailureTracker) countLocked(username string, cutoffTime time.Time) int {
	count := 0
	for _, failure := range t.failures {
		if failure.Username == username && !failure.Timestamp.Before(cutoffTime) {
			count++
		}
	}
	return count
}
