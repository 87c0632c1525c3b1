package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempoapp/tempo-worker/internal/conf"
	"github.com/tempoapp/tempo-worker/internal/logger"
	"github.com/tempoapp/tempo-worker/internal/notification"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	interceptor, store, _ := newTestInterceptor(t, true)
	assets := NewAssetManager(store, interceptor, "v1", testManifest, logger.Default())
	notifications := notification.NewService(nil)
	t.Cleanup(notifications.Stop)

	w := New(
		"v1",
		interceptor.classifier,
		store,
		interceptor.config,
		interceptor,
		assets,
		NewBus(logger.Default()),
		nil,
		notifications,
		notification.CleanupConfig{},
		logger.Default(),
	)
	return w
}

func TestWorkerPing(t *testing.T) {
	w := newTestWorker(t)

	reply := w.Bus.Request(context.Background(), Message{Type: MessagePing})
	require.True(t, reply.Success)

	pong, ok := reply.Data.(PongData)
	require.True(t, ok)
	assert.Equal(t, "v1", pong.Version)
	assert.NotZero(t, pong.Timestamp)
	assert.Contains(t, pong.Capabilities, string(MessageSyncReminders))
	assert.Contains(t, pong.Capabilities, string(MessageSetImplementation))
}

func TestWorkerSetImplementation(t *testing.T) {
	w := newTestWorker(t)
	const nav = "https://app.example.com/dashboard"

	payload, _ := json.Marshal(SetImplementationPayload{UseNewImplementation: false})
	reply := w.Bus.Request(context.Background(), Message{Type: MessageSetImplementation, Payload: payload})
	require.True(t, reply.Success)
	assert.Equal(t, StrategyNetworkFirst, w.Classifier.Classify(nav, ModeNavigate))

	payload, _ = json.Marshal(SetImplementationPayload{UseNewImplementation: true})
	reply = w.Bus.Request(context.Background(), Message{Type: MessageSetImplementation, Payload: payload})
	require.True(t, reply.Success)
	assert.Equal(t, StrategyStaleWhileRevalidate, w.Classifier.Classify(nav, ModeNavigate))
}

func TestWorkerUpdateConfig(t *testing.T) {
	w := newTestWorker(t)

	payload, _ := json.Marshal(Config{
		Enabled:    false,
		Expiration: map[string]conf.Duration{conf.CacheCategoryStatic: conf.Duration(time.Minute)},
		Debug:      true,
	})
	reply := w.Bus.Request(context.Background(), Message{Type: MessageUpdateConfig, Payload: payload})
	require.True(t, reply.Success)

	cfg := w.Config.Get()
	assert.False(t, cfg.Enabled)
	assert.True(t, cfg.Debug)
	assert.Equal(t, time.Minute, w.Config.ExpirationFor(conf.CacheCategoryStatic, 0))
}

func TestWorkerSyncWithoutQueue(t *testing.T) {
	w := newTestWorker(t)

	reply := w.Bus.Request(context.Background(), Message{Type: MessageSyncReminders})
	assert.False(t, reply.Success)
	assert.Contains(t, reply.Error, "sync queue not configured")
}

func TestWorkerClearNotificationsByTag(t *testing.T) {
	w := newTestWorker(t)

	n := notification.NewNotification(notification.TypeReminder, notification.PriorityHigh, "Math", "Due now").
		WithTag("user-1-period-2")
	svc := w.notifications.(*notification.Service)
	require.NoError(t, svc.CreateWithMetadata(n))

	payload, _ := json.Marshal(ClearNotificationsPayload{Tag: "user-1-period-2"})
	reply := w.Bus.Request(context.Background(), Message{Type: MessageClearNotifications, Payload: payload})
	require.True(t, reply.Success)
	assert.Equal(t, map[string]int{"cleared": 1}, reply.Data)

	_, ok := svc.GetByTag("user-1-period-2")
	assert.False(t, ok)
}

func TestWorkerCleanupNotificationsOptions(t *testing.T) {
	w := newTestWorker(t)
	svc := w.notifications.(*notification.Service)

	stale := notification.NewNotification(notification.TypeReminder, notification.PriorityMedium, "Old", "past")
	stale.Timestamp = time.Now().AddDate(0, 0, -10)
	require.NoError(t, svc.CreateWithMetadata(stale))
	fresh := notification.NewNotification(notification.TypeReminder, notification.PriorityMedium, "New", "today")
	require.NoError(t, svc.CreateWithMetadata(fresh))

	// Boot config leaves cleanup disabled; the message enables it using
	// the legacy maxAge alias.
	reply := w.Bus.Request(context.Background(), Message{
		Type:    MessageCleanupNotifications,
		Payload: json.RawMessage(`{"enabled":true,"maxAge":7}`),
	})
	require.True(t, reply.Success)
	assert.Equal(t, map[string]int{"removed": 1}, reply.Data)

	remaining, err := svc.List(nil)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "New", remaining[0].Title)
}

func TestWorkerCacheStats(t *testing.T) {
	w := newTestWorker(t)

	reply := w.Bus.Request(context.Background(), Message{Type: MessageGetCacheStats})
	require.True(t, reply.Success)
}
