// Package push decodes push payloads, renders them as notifications, and
// routes notification clicks back to the app or the backend action
// endpoint.
package push

import (
	"encoding/json"

	"github.com/tempoapp/tempo-worker/internal/errors"
	"github.com/tempoapp/tempo-worker/internal/notification"
)

// Action identifiers attached to every reminder notification.
const (
	ActionComplete = "complete"
	ActionSnooze   = "snooze"
)

// PriorityHigh marks payloads that demand a sticky notification.
const PriorityHigh = "high"

// PayloadNotification is the display half of a push payload.
type PayloadNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PayloadData carries the reminder context of a push payload.
type PayloadData struct {
	ReminderID       string `json:"reminderId"`
	Priority         string `json:"priority"`
	PeriodID         string `json:"periodId,omitempty"`
	NotificationType string `json:"notificationType"`
	ClickAction      string `json:"clickAction,omitempty"`
	DeepLink         string `json:"deepLink,omitempty"`
	Timestamp        int64  `json:"timestamp,omitempty"`
}

// Payload is the wire format produced by the messaging backend.
type Payload struct {
	Notification PayloadNotification `json:"notification"`
	Data         PayloadData         `json:"data"`
}

// ParsePayload decodes and validates a raw push message.
func ParsePayload(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.New(err).
			Component("push").
			Category(errors.CategoryValidation).
			Context("operation", "parse_payload").
			Build()
	}
	if p.Notification.Title == "" {
		return nil, errors.Newf("push payload missing notification title").
			Component("push").
			Category(errors.CategoryValidation).
			Build()
	}
	if p.Data.ReminderID == "" {
		return nil, errors.Newf("push payload missing reminder id").
			Component("push").
			Category(errors.CategoryValidation).
			Build()
	}
	return &p, nil
}

// Tag derives the collapse key for a user's notification. Payloads for
// the same user and period (or priority, when no period is set) share a
// tag so repeats replace the previous notification instead of stacking.
func (p *Payload) Tag(userID string) string {
	if p.Data.PeriodID != "" {
		return userID + "-" + p.Data.PeriodID
	}
	return userID + "-" + p.Data.Priority
}

// RequireInteraction reports whether the notification should stay on
// screen until dismissed. Only high priority payloads are sticky.
func (p *Payload) RequireInteraction() bool {
	return p.Data.Priority == PriorityHigh
}

// Actions returns the reminder action buttons.
func (p *Payload) Actions() []notification.Action {
	return []notification.Action{
		{Action: ActionComplete, Title: "Complete"},
		{Action: ActionSnooze, Title: "Snooze"},
	}
}

// Priority maps the payload priority onto the notification service's
// priority scale. Unknown values default to medium.
func (p *Payload) Priority() notification.Priority {
	switch p.Data.Priority {
	case PriorityHigh:
		return notification.PriorityHigh
	case "low":
		return notification.PriorityLow
	default:
		return notification.PriorityMedium
	}
}
