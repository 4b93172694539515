package controller

import (
	"sync"
	"time"

	"github.com/MegaGrindStone/ragdesk/internal/models"
	"go.uber.org/zap"
)

// NotificationCenter surfaces transient success and error messages. It only remembers the notification
// currently shown; a new one replaces it.
type NotificationCenter struct {
	mu      sync.Mutex
	current *models.Notification

	view   View
	now    func() time.Time
	logger *zap.Logger
}

// NewNotificationCenter creates a NotificationCenter that shows notifications on view.
func NewNotificationCenter(view View, logger *zap.Logger) *NotificationCenter {
	return &NotificationCenter{
		view:   view,
		now:    time.Now,
		logger: logger.With(zap.String("module", "notifications")),
	}
}

// Success shows an informational notification.
func (c *NotificationCenter) Success(title, message string) {
	c.show(title, message, false)
}

// Error shows an error notification.
func (c *NotificationCenter) Error(title, message string) {
	c.show(title, message, true)
}

// Current returns the notification currently shown, if any.
func (c *NotificationCenter) Current() (models.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return models.Notification{}, false
	}
	return *c.current, true
}

func (c *NotificationCenter) show(title, message string, isError bool) {
	n := models.Notification{
		Title:   title,
		Message: message,
		IsError: isError,
		Time:    c.now(),
	}

	c.mu.Lock()
	c.current = &n
	c.mu.Unlock()

	if isError {
		c.logger.Warn(message, zap.String("title", title))
	} else {
		c.logger.Debug(message, zap.String("title", title))
	}
	c.view.Notified(n)
}
