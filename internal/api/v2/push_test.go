package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempoapp/tempo-worker/internal/notification"
)

const pushPayload = `{
	"notification": {"title": "Math homework", "body": "Due tomorrow"},
	"data": {"reminderId": "rem-1", "priority": "high", "periodId": "p3", "notificationType": "reminder"}
}`

func TestReceivePushRendersNotification(t *testing.T) {
	env := setupTestController(t)

	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/v2/push", pushPayload, "user-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user-1-p3", resp["tag"])

	n, ok := env.notifications.GetByTag("user-1-p3")
	require.True(t, ok)
	assert.Equal(t, "Math homework", n.Title)
	assert.True(t, n.RequireInteraction)
	assert.Equal(t, notification.PriorityHigh, n.Priority)
}

func TestReceivePushRejectsMalformedPayload(t *testing.T) {
	env := setupTestController(t)

	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/v2/push",
		`{"notification":{"body":"no title"},"data":{}}`, "user-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReceivePushRequiresAuth(t *testing.T) {
	env := setupTestController(t)

	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/v2/push", pushPayload, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPushClickActionClosesAndDispatches(t *testing.T) {
	env := setupTestController(t)

	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/v2/push", pushPayload, "user-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	env.transport.RegisterResponder(http.MethodPost, testUpstream+"/handleNotificationAction",
		httpmock.NewStringResponder(http.StatusOK, `{"success":true}`))

	rec = httptest.NewRecorder()
	env.echo.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/v2/push/click",
		`{"action":"complete","tag":"user-1-p3","data":{"reminderId":"rem-1"}}`, "user-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, true, result["success"])

	// The rendered notification is gone even though the action succeeded.
	_, ok := env.notifications.GetByTag("user-1-p3")
	assert.False(t, ok)
}

func TestPushClickBodyReportsTarget(t *testing.T) {
	env := setupTestController(t)

	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/v2/push/click",
		`{"tag":"user-1-p3","data":{"reminderId":"rem-1"}}`, "user-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "/dashboard/reminders/rem-1", result["opened"])
}
