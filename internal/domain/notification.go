package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotificationEmpty = errors.New("notification has neither title nor message")
	ErrNotificationType  = errors.New("unknown notification type")
)

type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Notification is delivered at most once to each connected subscriber and then discarded.
type Notification struct {
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Normalize fills defaults and validates. now stamps CreatedAt when it is zero.
func (n Notification) Normalize(now time.Time) (Notification, error) {
	if n.Title == "" && n.Message == "" {
		return Notification{}, ErrNotificationEmpty
	}
	switch n.Type {
	case "":
		n.Type = NotificationInfo
	case NotificationInfo, NotificationSuccess, NotificationWarning, NotificationError:
	default:
		return Notification{}, fmt.Errorf("%w: %q", ErrNotificationType, n.Type)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now.UTC()
	}
	return n, nil
}
