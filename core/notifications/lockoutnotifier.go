package notifications

import (
	"fmt"
	"sync"
	"time"

	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
)

type LockoutNotifier interface {
	// NotifyAccountLocked notifies when repeated login failures lock an account.
	NotifyAccountLocked(username string, failureCount int, remoteIP string) error

	// ShouldNotify reports whether the failure count warrants a notification.
	ShouldNotify(failureCount int) bool
}

type nopLockoutNotifier struct{}

var NopLockoutNotifier LockoutNotifier = &nopLockoutNotifier{}

// NotifyAccountLocked does nothing and returns nil.
func (n *nopLockoutNotifier) NotifyAccountLocked(username string, failureCount int, remoteIP string) error {
	return nil
}

// ShouldNotify always returns false.
func (n *nopLockoutNotifier) ShouldNotify(failureCount int) bool {
	return false
}

type LockoutNotificationSettings struct {
	Recipient        string
	MinInterval      time.Duration
	FailureThreshold int
}

type emailLockoutNotifier struct {
	settings          LockoutNotificationSettings
	sender            EmailSender
	logger            logging.Logger
	lastNotification  map[string]time.Time
	notificationMutex sync.Mutex
}

func NewEmailLockoutNotifier(settings LockoutNotificationSettings, sender EmailSender, logger logging.Logger) LockoutNotifier {
	return &emailLockoutNotifier{
		settings:         settings,
		sender:           sender,
		logger:           logger,
		lastNotification: make(map[string]time.Time),
	}
}

func (n *emailLockoutNotifier) NotifyAccountLocked(username string, failureCount int, remoteIP string) error {
	n.notificationMutex.Lock()
	defer n.notificationMutex.Unlock()

	if time.Since(n.lastNotification[username]) < n.settings.MinInterval {
		n.logger.Info("Skipping lockout notification due to rate limiting.", "username", username)
		return nil
	}

	subject := "CloudVid account locked after failed logins"
	body := fmt.Sprintf("An account has been locked after repeated failed login attempts.\n\nUsername: %s\nFailed attempts: %d\nRemote IP: %s\n\nThe lock expires on its own once the failure window passes.",
		username,
		failureCount,
		remoteIP)

	n.logger.Info("Sending lockout notification.", "username", username, "recipient", n.settings.Recipient)
	err := n.sender.SendEmail(n.settings.Recipient, subject, body)
	if err != nil {
		n.logger.Error("Failed to send lockout notification.", "error", err, "username", username)
		return err
	}

	n.lastNotification[username] = time.Now()
	return nil
}

func (n *emailLockoutNotifier) ShouldNotify(failureCount int) bool {
	return failureCount >= n.settings.FailureThreshold
}
