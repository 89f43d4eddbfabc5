package tasks

import (
	"sync"
	"time"

	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/shared"
)

const DefaultNotificationTTL = 5 * time.Second

// Notifier receives user-visible messages from the trackers.
type Notifier interface {
	Notify(severity models.Severity, message string) models.Notification
}

// NotificationCenter keeps live notifications and dismisses each one after its TTL.
type NotificationCenter struct {
	mu     sync.Mutex
	ttl    time.Duration
	items  []models.Notification
	timers map[string]*time.Timer
	onPost func(models.Notification)
	closed bool
}

// NewNotificationCenter creates a center with the given TTL. onPost, when set, is called for every new notification.
func NewNotificationCenter(ttl time.Duration, onPost func(models.Notification)) *NotificationCenter {
	if ttl <= 0 {
		ttl = DefaultNotificationTTL
	}
	return &NotificationCenter{
		ttl:    ttl,
		timers: make(map[string]*time.Timer),
		onPost: onPost,
	}
}

// Notify posts a message and schedules its dismissal.
func (c *NotificationCenter) Notify(severity models.Severity, message string) models.Notification {
	n := models.Notification{
		ID:        shared.GenerateID(),
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return n
	}
	c.items = append(c.items, n)
	c.timers[n.ID] = time.AfterFunc(c.ttl, func() { c.Dismiss(n.ID) })
	onPost := c.onPost
	c.mu.Unlock()

	if onPost != nil {
		onPost(n)
	}
	return n
}

func (c *NotificationCenter) Success(message string) models.Notification {
	return c.Notify(models.SeveritySuccess, message)
}

func (c *NotificationCenter) Error(message string) models.Notification {
	return c.Notify(models.SeverityError, message)
}

func (c *NotificationCenter) Info(message string) models.Notification {
	return c.Notify(models.SeverityInfo, message)
}

// Dismiss removes a notification early. Unknown ids are ignored.
func (c *NotificationCenter) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// Active returns the live notifications, oldest first.
func (c *NotificationCenter) Active() []models.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Notification(nil), c.items...)
}

// Close stops pending dismissal timers and drops further notifications.
func (c *NotificationCenter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.items = nil
}
