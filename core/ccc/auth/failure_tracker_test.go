package auth

import (
	"testing"
	"time"
)

func TestMemoryFailureTracker_RecordFailure(t *testing.T) {
	settings := LockoutSettings{
		Threshold:  5,
		TimeWindow: time.Hour,
	}

	tracker := NewMemoryFailureTracker(settings)
	now := time.Now()

	// Test recording multiple failures
	count1 := tracker.RecordFailure("alice", "192.168.1.100", now)
	if count1 != 1 {
		t.Errorf("Expected failure count 1, got %d", count1)
	}

	count2 := tracker.RecordFailure("alice", "192.168.1.100", now.Add(1*time.Minute))
	if count2 != 2 {
		t.Errorf("Expected failure count 2, got %d", count2)
	}

	// Failures of different accounts don't interfere
	otherCount := tracker.RecordFailure("bob", "192.168.1.100", now.Add(2*time.Minute))
	if otherCount != 1 {
		t.Errorf("Expected failure count 1 for other account, got %d", otherCount)
	}

	count3 := tracker.RecordFailure("alice", "192.168.1.100", now.Add(3*time.Minute))
	if count3 != 3 {
		t.Errorf("Expected failure count 3 for original account, got %d", count3)
	}
}

func TestMemoryFailureTracker_TimeWindow(t *testing.T) {
	settings := LockoutSettings{
		Threshold:  5,
		TimeWindow: 10 * time.Minute,
	}

	tracker := NewMemoryFailureTracker(settings)
	now := time.Now()

	// Record failures within the time window
	tracker.RecordFailure("alice", "192.168.1.100", now)
	tracker.RecordFailure("alice", "192.168.1.100", now.Add(2*time.Minute))
	tracker.RecordFailure("alice", "192.168.1.100", now.Add(5*time.Minute))

	// The cutoff is (now+15min) - 10min = now+5min, so only the failures at
	// now+5min and now+15min still count
	count := tracker.RecordFailure("alice", "192.168.1.100", now.Add(15*time.Minute))
	if count != 2 {
		t.Errorf("Expected failure count 2 within the time window, got %d", count)
	}
}

func TestMemoryFailureTracker_IsLockedOut(t *testing.T) {
	settings := LockoutSettings{
		Threshold:  3,
		TimeWindow: time.Hour,
	}

	tracker := NewMemoryFailureTracker(settings)
	now := time.Now()

	if tracker.IsLockedOut("alice", now) {
		t.Error("Expected no lockout without failures")
	}

	tracker.RecordFailure("alice", "192.168.1.100", now)
	tracker.RecordFailure("alice", "192.168.1.100", now.Add(1*time.Minute))

	if tracker.IsLockedOut("alice", now.Add(2*time.Minute)) {
		t.Error("Expected no lockout below the threshold")
	}

	tracker.RecordFailure("alice", "192.168.1.100", now.Add(2*time.Minute))

	if !tracker.IsLockedOut("alice", now.Add(3*time.Minute)) {
		t.Error("Expected lockout at the threshold")
	}

	// Another account is unaffected
	if tracker.IsLockedOut("bob", now.Add(3*time.Minute)) {
		t.Error("Expected other accounts to stay unlocked")
	}

	// The lockout expires with the time window
	if tracker.IsLockedOut("alice", now.Add(2*time.Hour)) {
		t.Error("Expected lockout to expire after the time window")
	}
}

func TestMemoryFailureTracker_ThresholdDisabled(t *testing.T) {
	settings := LockoutSettings{
		Threshold:  0,
		TimeWindow: time.Hour,
	}

	tracker := NewMemoryFailureTracker(settings)
	now := time.Now()

	for i := 0; i < 100; i++ {
		tracker.RecordFailure("alice", "192.168.1.100", now)
	}

	if tracker.IsLockedOut("alice", now) {
		t.Error("Expected no lockout when the threshold is 0")
	}
}

func TestMemoryFailureTracker_ClearFailures(t *testing.T) {
	settings := LockoutSettings{
		Threshold:  2,
		TimeWindow: time.Hour,
	}

	tracker := NewMemoryFailureTracker(settings)
	now := time.Now()

	tracker.RecordFailure("alice", "192.168.1.100", now)
	tracker.RecordFailure("alice", "192.168.1.100", now)
	tracker.RecordFailure("bob", "192.168.1.101", now)

	if !tracker.IsLockedOut("alice", now) {
		t.Fatal("Expected lockout before clearing")
	}

	tracker.ClearFailures("alice")

	if tracker.IsLockedOut("alice", now) {
		t.Error("Expected no lockout after clearing")
	}

	// Other accounts keep their failures
	if count := tracker.RecordFailure("bob", "192.168.1.101", now); count != 2 {
		t.Errorf("Expected other account to keep its failures, got count %d", count)
	}
}

func TestNopFailureTracker(t *testing.T) {
	tracker := NopFailureTracker

	if count := tracker.RecordFailure("alice", "ip", time.Now()); count != 0 {
		t.Errorf("Expected 0 failure count, got %d", count)
	}

	if tracker.IsLockedOut("alice", time.Now()) {
		t.Error("Nop tracker should never lock anyone out")
	}
}
