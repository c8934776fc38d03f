package quota

import (
	"sync"
	"time"

	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
)

// YouTube Data API operation names with a quota cost attached
const (
	OpVideosInsert      = "videos.insert"
	OpVideosList        = "videos.list"
	OpChannelsList      = "channels.list"
	OpPlaylistItemsList = "playlistItems.list"
)

// quotaResetZone is the zone the API quota day rolls over in
const quotaResetZone = "America/Los_Angeles"

// CurrentDayStart returns the start of the quota day containing t
func CurrentDayStart(t time.Time) time.Time {
	location, err := time.LoadLocation(quotaResetZone)
	if err != nil {
		location = time.UTC
	}

	local := t.In(location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, location)
}

// UsageSummary is a snapshot of the current quota day
type UsageSummary struct {
	TotalUsed       int
	DailyLimit      int
	Remaining       int
	UsagePercentage float64
	Operations      map[string]int
	Date            string
}

// TrackerSettings holds configuration for quota tracking
type TrackerSettings struct {
	DailyLimit int            // Quota units available per day
	Costs      map[string]int // Units per operation, unknown operations cost 1
}

// Tracker tracks API quota consumption for the current quota day. Usage is
// kept per process, the worker owns the authoritative count.
type Tracker interface {
	// CanPerform returns true if count executions of the operation still fit
	// into the daily limit
	CanPerform(operation string, count int) bool
	// RecordUsage books count executions of the operation
	RecordUsage(operation string, count int)
	// GetRemainingQuota returns the quota units left for the current day
	GetRemainingQuota() int
	// GetUsageSummary returns a snapshot of the current quota day
	GetUsageSummary() *UsageSummary
}

// nopTracker is a no-operation implementation that never limits
type nopTracker struct{}

var NopTracker Tracker = &nopTracker{}

func (n *nopTracker) CanPerform(operation string, count int) bool { return true }

func (n *nopTracker) RecordUsage(operation string, count int) {}

func (n *nopTracker) GetRemainingQuota() int { return 0 }

func (n *nopTracker) GetUsageSummary() *UsageSummary {
	return &UsageSummary{Operations: map[string]int{}}
}

// memoryTracker implements Tracker using in-memory storage
type memoryTracker struct {
	logger     logging.Logger
	settings   TrackerSettings
	now        func() time.Time
	location   *time.Location
	usageMutex sync.Mutex

	day        string // quota day currently being counted, e.g. 2025-06-01
	used       int
	operations map[string]int
}

// NewMemoryTracker creates a new in-memory quota tracker. The quota day rolls
// over at midnight Pacific time, like the YouTube API quota.
func NewMemoryTracker(logger logging.Logger, settings TrackerSettings) Tracker {

	if logger == nil {
		logger = logging.NopLogger
	}

	location, err := time.LoadLocation(quotaResetZone)
	if err != nil {
		logger.Warn("Failed to load quota reset zone, falling back to UTC", "zone", quotaResetZone, "error", err)
		location = time.UTC
	}

	return &memoryTracker{
		logger:     logger,
		settings:   settings,
		now:        time.Now,
		location:   location,
		operations: make(map[string]int),
	}
}

// rollover resets the counters when the quota day has changed. Callers must
// hold usageMutex.
func (t *memoryTracker) rollover() {
	today := t.now().In(t.location).Format("2006-01-02")
	if today == t.day {
		return
	}

	if t.day != "" {
		t.logger.Info("Quota day rolled over", "previous_day", t.day, "used", t.used)
	}
	t.day = today
	t.used = 0
	t.operations = make(map[string]int)
}

func (t *memoryTracker) costOf(operation string, count int) int {
	cost, ok := t.settings.Costs[operation]
	if !ok {
		cost = 1
	}
	return cost * count
}

func (t *memoryTracker) CanPerform(operation string, count int) bool {
	t.usageMutex.Lock()
	defer t.usageMutex.Unlock()

	t.rollover()
	return t.used+t.costOf(operation, count) <= t.settings.DailyLimit
}

func (t *memoryTracker) RecordUsage(operation string, count int) {
	t.usageMutex.Lock()
	defer t.usageMutex.Unlock()

	t.rollover()
	cost := t.costOf(operation, count)
	t.used += cost
	t.operations[operation] += cost

	t.logger.Debug("Recorded quota usage", "operation", operation, "cost", cost, "used", t.used, "limit", t.settings.DailyLimit)
}

func (t *memoryTracker) GetRemainingQuota() int {
	t.usageMutex.Lock()
	defer t.usageMutex.Unlock()

	t.rollover()
	remaining := t.settings.DailyLimit - t.used
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (t *memoryTracker) GetUsageSummary() *UsageSummary {
	t.usageMutex.Lock()
	defer t.usageMutex.Unlock()

	t.rollover()

	operations := make(map[string]int, len(t.operations))
	for op, units := range t.operations {
		operations[op] = units
	}

	remaining := t.settings.DailyLimit - t.used
	if remaining < 0 {
		remaining = 0
	}

	var percentage float64
	if t.settings.DailyLimit > 0 {
		percentage = float64(t.used) / float64(t.settings.DailyLimit) * 100
	}

	return &UsageSummary{
		TotalUsed:       t.used,
		DailyLimit:      t.settings.DailyLimit,
		Remaining:       remaining,
		UsagePercentage: percentage,
		Operations:      operations,
		Date:            t.day,
	}
}
