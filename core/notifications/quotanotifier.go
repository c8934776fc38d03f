package notifications

import (
	"fmt"
	"sync"
	"time"

	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
)

type QuotaNotifier interface {
	// NotifyQuotaExhausted notifies when the daily YouTube API quota is spent
	// and the worker has gone to sleep until the next reset.
	NotifyQuotaExhausted(usedUnits, dailyLimit int) error

	// NotifyQuotaWarning notifies when quota usage crosses the warning threshold.
	NotifyQuotaWarning(usedUnits, dailyLimit int) error

	// ShouldWarn reports whether usage has crossed the warning threshold.
	ShouldWarn(usedUnits, dailyLimit int) bool
}

type nopQuotaNotifier struct{}

var NopQuotaNotifier QuotaNotifier = &nopQuotaNotifier{}

// NotifyQuotaExhausted does nothing and returns nil.
func (n *nopQuotaNotifier) NotifyQuotaExhausted(usedUnits, dailyLimit int) error {
	return nil
}

// NotifyQuotaWarning does nothing and returns nil.
func (n *nopQuotaNotifier) NotifyQuotaWarning(usedUnits, dailyLimit int) error {
	return nil
}

// ShouldWarn always returns false.
func (n *nopQuotaNotifier) ShouldWarn(usedUnits, dailyLimit int) bool {
	return false
}

type QuotaNotificationSettings struct {
	Recipient   string
	MinInterval time.Duration
	// WarningThreshold is the used fraction of the daily limit above which
	// a warning is sent, e.g. 0.9 for 90 percent.
	WarningThreshold float64
}

type emailQuotaNotifier struct {
	settings          QuotaNotificationSettings
	sender            EmailSender
	logger            logging.Logger
	lastWarning       time.Time
	lastNotification  time.Time
	notificationMutex sync.Mutex
}

func NewEmailQuotaNotifier(settings QuotaNotificationSettings, sender EmailSender, logger logging.Logger) QuotaNotifier {
	return &emailQuotaNotifier{
		settings: settings,
		sender:   sender,
		logger:   logger,
	}
}

func (n *emailQuotaNotifier) NotifyQuotaExhausted(usedUnits, dailyLimit int) error {
	n.notificationMutex.Lock()
	defer n.notificationMutex.Unlock()

	if time.Since(n.lastNotification) < n.settings.MinInterval {
		n.logger.Info("Skipping quota exhausted notification due to rate limiting.")
		return nil
	}

	subject := "CloudVid YouTube quota exhausted"
	body := fmt.Sprintf("The daily YouTube API quota is exhausted.\n\nUsed: %d of %d units\n\nQueued uploads wait until the quota resets at midnight Pacific time.",
		usedUnits,
		dailyLimit)

	n.logger.Info("Sending quota exhausted notification.", "recipient", n.settings.Recipient)
	err := n.sender.SendEmail(n.settings.Recipient, subject, body)
	if err != nil {
		n.logger.Error("Failed to send quota exhausted notification.", "error", err)
		return err
	}

	n.lastNotification = time.Now()
	return nil
}

func (n *emailQuotaNotifier) NotifyQuotaWarning(usedUnits, dailyLimit int) error {
	n.notificationMutex.Lock()
	defer n.notificationMutex.Unlock()

	if time.Since(n.lastWarning) < n.settings.MinInterval {
		n.logger.Info("Skipping quota warning notification due to rate limiting.")
		return nil
	}

	subject := "CloudVid YouTube quota warning"
	body := fmt.Sprintf("YouTube API quota usage is getting close to the daily limit.\n\nUsed: %d of %d units\n\nUploads stop once the limit is reached and resume after the reset at midnight Pacific time.",
		usedUnits,
		dailyLimit)

	n.logger.Info("Sending quota warning notification.", "recipient", n.settings.Recipient)
	err := n.sender.SendEmail(n.settings.Recipient, subject, body)
	if err != nil {
		n.logger.Error("Failed to send quota warning notification.", "error", err)
		return err
	}

	n.lastWarning = time.Now()
	return nil
}

func (n *emailQuotaNotifier) ShouldWarn(usedUnits, dailyLimit int) bool {
	if dailyLimit <= 0 || n.settings.WarningThreshold <= 0 {
		return false
	}
	return float64(usedUnits) >= float64(dailyLimit)*n.settings.WarningThreshold
}
