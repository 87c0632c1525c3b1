package push

import (
	"github.com/tempoapp/tempo-worker/internal/errors"
	"github.com/tempoapp/tempo-worker/internal/logger"
	"github.com/tempoapp/tempo-worker/internal/notification"
	"github.com/tempoapp/tempo-worker/internal/observability/metrics"
)

// NotificationCreator is the slice of the notification service the
// receiver needs.
type NotificationCreator interface {
	CreateWithMetadata(n *notification.Notification) error
}

// Receiver turns raw push messages into rendered notifications.
type Receiver struct {
	notifications NotificationCreator
	metrics       *metrics.PushMetrics
	log           logger.Logger
}

// NewReceiver creates a Receiver. metrics may be nil.
func NewReceiver(notifications NotificationCreator, m *metrics.PushMetrics, log logger.Logger) *Receiver {
	if log == nil {
		log = logger.Default()
	}
	return &Receiver{notifications: notifications, metrics: m, log: log}
}

// Receive parses a push message for a user and renders it as a tagged
// notification. The tag makes repeated payloads for the same period or
// priority replace the previous notification.
func (r *Receiver) Receive(userID string, raw []byte) (*notification.Notification, error) {
	payload, err := ParsePayload(raw)
	if err != nil {
		r.log.Warn("discarding malformed push payload", logger.Error(err))
		return nil, err
	}

	n := notification.NewNotification(
		notification.TypeReminder,
		payload.Priority(),
		payload.Notification.Title,
		payload.Notification.Body,
	).
		WithComponent("push").
		WithTag(payload.Tag(userID)).
		WithRequireInteraction(payload.RequireInteraction()).
		WithActions(payload.Actions()...).
		WithMetadata("reminderId", payload.Data.ReminderID).
		WithMetadata("userId", userID).
		WithMetadata("notificationType", payload.Data.NotificationType)
	if payload.Data.PeriodID != "" {
		n = n.WithMetadata("periodId", payload.Data.PeriodID)
	}
	if payload.Data.DeepLink != "" {
		n = n.WithMetadata("deepLink", payload.Data.DeepLink)
	}

	if err := r.notifications.CreateWithMetadata(n); err != nil {
		return nil, errors.New(err).
			Component("push").
			Category(errors.CategoryState).
			Context("operation", "render_notification").
			Build()
	}
	if r.metrics != nil {
		r.metrics.RecordDelivery(payload.Data.Priority)
	}
	r.log.Debug("push notification rendered",
		logger.String("tag", n.Tag),
		logger.String("reminder_id", payload.Data.ReminderID),
		logger.Bool("require_interaction", n.RequireInteraction))
	return n, nil
}
