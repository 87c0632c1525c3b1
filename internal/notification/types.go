// Package notification provides the worker-side notification service:
// rendered notifications, subscriber broadcast, pruning, and email delivery.
package notification

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Type categorizes a notification.
type Type string

const (
	TypeReminder Type = "reminder"
	TypeSystem   Type = "system"
	TypeError    Type = "error"
)

// Priority mirrors the reminder priority carried in push payloads.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Status tracks a notification through its lifecycle.
type Status string

const (
	StatusUnread       Status = "unread"
	StatusRead         Status = "read"
	StatusAcknowledged Status = "acknowledged"
)

// Action is a button attached to a rendered notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification is one rendered notification as shown to the user.
// Tag groups repeats: a new notification with the same tag replaces the
// previous one instead of stacking.
type Notification struct {
	ID                 string         `json:"id"`
	Type               Type           `json:"type"`
	Priority           Priority       `json:"priority"`
	Status             Status         `json:"status"`
	Title              string         `json:"title"`
	Message            string         `json:"message"`
	Component          string         `json:"component,omitempty"`
	Tag                string         `json:"tag,omitempty"`
	RequireInteraction bool           `json:"requireInteraction"`
	Actions            []Action       `json:"actions,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
	ExpiresAt          time.Time      `json:"expiresAt,omitzero"`
}

// NewNotification creates an unread notification with a fresh ID.
func NewNotification(typ Type, priority Priority, title, message string) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		Type:      typ,
		Priority:  priority,
		Status:    StatusUnread,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithComponent sets the originating component.
func (n *Notification) WithComponent(component string) *Notification {
	n.Component = component
	return n
}

// WithTag sets the collapse tag.
func (n *Notification) WithTag(tag string) *Notification {
	n.Tag = tag
	return n
}

// WithActions sets the action buttons.
func (n *Notification) WithActions(actions ...Action) *Notification {
	n.Actions = actions
	return n
}

// WithRequireInteraction marks the notification as sticky.
func (n *Notification) WithRequireInteraction(v bool) *Notification {
	n.RequireInteraction = v
	return n
}

// WithMetadata attaches one metadata key/value pair.
func (n *Notification) WithMetadata(key string, value any) *Notification {
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}
	n.Metadata[key] = value
	return n
}

// WithExpiry sets an expiry relative to now.
func (n *Notification) WithExpiry(d time.Duration) *Notification {
	n.ExpiresAt = time.Now().Add(d)
	return n
}

// Expired reports whether the notification has passed its expiry.
func (n *Notification) Expired(now time.Time) bool {
	return !n.ExpiresAt.IsZero() && now.After(n.ExpiresAt)
}

// Clone returns a deep copy safe for concurrent marshaling.
func (n *Notification) Clone() *Notification {
	c := *n
	if n.Metadata != nil {
		c.Metadata = maps.Clone(n.Metadata)
	}
	if n.Actions != nil {
		c.Actions = make([]Action, len(n.Actions))
		copy(c.Actions, n.Actions)
	}
	return &c
}
