package push

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempoapp/tempo-worker/internal/logger"
	"github.com/tempoapp/tempo-worker/internal/notification"
)

func newTestReceiver(t *testing.T) (*Receiver, *notification.Service) {
	t.Helper()
	svc := notification.NewService(nil)
	t.Cleanup(svc.Stop)
	return NewReceiver(svc, nil, logger.Default()), svc
}

func TestReceiveHighPriorityPayload(t *testing.T) {
	receiver, _ := newTestReceiver(t)

	raw := []byte(`{
		"notification": {"title": "Parent Conference", "body": "Starts in 30 min"},
		"data": {"reminderId": "r1", "priority": "high", "notificationType": "upcoming"}
	}`)

	n, err := receiver.Receive("user-1", raw)
	require.NoError(t, err)

	assert.Equal(t, "Parent Conference", n.Title)
	assert.Equal(t, "Starts in 30 min", n.Message)
	assert.True(t, n.RequireInteraction)
	assert.Equal(t, notification.PriorityHigh, n.Priority)
	assert.Equal(t, "user-1-high", n.Tag)

	var actions []string
	for _, a := range n.Actions {
		actions = append(actions, a.Action)
	}
	assert.ElementsMatch(t, []string{"complete", "snooze"}, actions)
}

func TestReceiveMediumPriorityNotSticky(t *testing.T) {
	receiver, _ := newTestReceiver(t)

	raw := []byte(`{
		"notification": {"title": "Grade quizzes", "body": "Period 3"},
		"data": {"reminderId": "r2", "priority": "medium", "periodId": "p3", "notificationType": "upcoming"}
	}`)

	n, err := receiver.Receive("user-1", raw)
	require.NoError(t, err)
	assert.False(t, n.RequireInteraction)
	assert.Equal(t, "user-1-p3", n.Tag)
}

func TestReceiveSamePeriodCollapses(t *testing.T) {
	receiver, svc := newTestReceiver(t)

	first := []byte(`{
		"notification": {"title": "First bell", "body": "Period 2"},
		"data": {"reminderId": "r1", "priority": "medium", "periodId": "p2", "notificationType": "upcoming"}
	}`)
	second := []byte(`{
		"notification": {"title": "Second bell", "body": "Period 2 again"},
		"data": {"reminderId": "r2", "priority": "high", "periodId": "p2", "notificationType": "upcoming"}
	}`)

	_, err := receiver.Receive("user-1", first)
	require.NoError(t, err)
	_, err = receiver.Receive("user-1", second)
	require.NoError(t, err)

	all, err := svc.List(nil)
	require.NoError(t, err)
	require.Len(t, all, 1, "same-period notifications must collapse")
	assert.Equal(t, "Second bell", all[0].Title)

	n, ok := svc.GetByTag("user-1-p2")
	require.True(t, ok)
	assert.Equal(t, "r2", n.Metadata["reminderId"])
}

func TestReceiveDifferentUsersKeepSeparateTags(t *testing.T) {
	receiver, svc := newTestReceiver(t)

	raw := []byte(`{
		"notification": {"title": "Bell", "body": "Period 2"},
		"data": {"reminderId": "r1", "priority": "medium", "periodId": "p2", "notificationType": "upcoming"}
	}`)

	_, err := receiver.Receive("user-1", raw)
	require.NoError(t, err)
	_, err = receiver.Receive("user-2", raw)
	require.NoError(t, err)

	all, err := svc.List(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReceiveRejectsMalformedPayloads(t *testing.T) {
	receiver, svc := newTestReceiver(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{not json`},
		{"missing title", `{"notification":{"body":"x"},"data":{"reminderId":"r1","priority":"high"}}`},
		{"missing reminder id", `{"notification":{"title":"x","body":"y"},"data":{"priority":"high"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := receiver.Receive("user-1", []byte(tt.raw))
			assert.Error(t, err)
		})
	}

	all, err := svc.List(nil)
	require.NoError(t, err)
	assert.Empty(t, all)
}
