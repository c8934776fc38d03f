package notifications

import (
	"fmt"
	"sync"
	"time"

	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
)

type UploadNotifier interface {
	// NotifyUploadFailed notifies when a queued upload ends in failed status.
	NotifyUploadFailed(userID, fileName, reason string) error
}

type nopUploadNotifier struct{}

var NopUploadNotifier UploadNotifier = &nopUploadNotifier{}

// NotifyUploadFailed does nothing and returns nil.
func (n *nopUploadNotifier) NotifyUploadFailed(userID, fileName, reason string) error {
	return nil
}

type UploadNotificationSettings struct {
	Recipient   string
	MinInterval time.Duration
}

type emailUploadNotifier struct {
	settings          UploadNotificationSettings
	sender            EmailSender
	logger            logging.Logger
	lastNotification  map[string]time.Time
	notificationMutex sync.Mutex
}

func NewEmailUploadNotifier(settings UploadNotificationSettings, sender EmailSender, logger logging.Logger) UploadNotifier {
	return &emailUploadNotifier{
		settings:         settings,
		sender:           sender,
		logger:           logger,
		lastNotification: make(map[string]time.Time),
	}
}

func (n *emailUploadNotifier) NotifyUploadFailed(userID, fileName, reason string) error {
	n.notificationMutex.Lock()
	defer n.notificationMutex.Unlock()

	if time.Since(n.lastNotification[userID]) < n.settings.MinInterval {
		n.logger.Info("Skipping upload failure notification due to rate limiting.", "user", userID)
		return nil
	}

	subject := "CloudVid upload failed"
	body := fmt.Sprintf("An upload from your queue has failed.\n\nFile: %s\nReason: %s\n\nThe job stays in the queue and can be retried from the dashboard.",
		fileName,
		reason)

	n.logger.Info("Sending upload failure notification.", "user", userID, "recipient", n.settings.Recipient)
	err := n.sender.SendEmail(n.settings.Recipient, subject, body)
	if err != nil {
		n.logger.Error("Failed to send upload failure notification.", "error", err, "user", userID)
		return err
	}

	n.lastNotification[userID] = time.Now()
	return nil
}
