package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempoapp/tempo-worker/internal/datastore/v2/entities"
)

func postAction(t *testing.T, env *testEnv, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/handleNotificationAction", strings.NewReader(body))
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func seedReminder(t *testing.T, env *testEnv, id string) {
	t.Helper()
	require.NoError(t, env.reminders.CreateReminder(context.Background(), &entities.Reminder{
		ID:       id,
		UserUID:  "user-1",
		Priority: "high",
		DueAt:    time.Now().Add(time.Hour),
	}))
}

func TestHandleActionComplete(t *testing.T) {
	env := setupTestController(t)
	seedReminder(t, env, "r1")

	rec := postAction(t, env, `{"action":"complete","reminderId":"r1","userId":"user-1","timestamp":1700000000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])

	reminder, err := env.reminders.GetReminder(context.Background(), "r1")
	require.NoError(t, err)
	assert.True(t, reminder.Completed)
	require.NotNil(t, reminder.CompletedAt)
}

func TestHandleActionSnoozeUsesDefaultMinutes(t *testing.T) {
	env := setupTestController(t)
	seedReminder(t, env, "r1")

	before := time.Now()
	rec := postAction(t, env, `{"action":"snooze","reminderId":"r1","userId":"user-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	reminder, err := env.reminders.GetReminder(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, reminder.SnoozedUntil)
	assert.WithinDuration(t, before.Add(30*time.Minute), *reminder.SnoozedUntil, time.Minute)
}

func TestHandleActionUnknownReminder(t *testing.T) {
	env := setupTestController(t)

	rec := postAction(t, env, `{"action":"complete","reminderId":"nope","userId":"user-1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestHandleActionValidation(t *testing.T) {
	env := setupTestController(t)
	seedReminder(t, env, "r1")

	tests := []struct {
		name string
		body string
	}{
		{"unknown action", `{"action":"archive","reminderId":"r1","userId":"user-1"}`},
		{"missing reminder id", `{"action":"complete","userId":"user-1"}`},
		{"missing user id", `{"action":"complete","reminderId":"r1"}`},
		{"malformed body", `{not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postAction(t, env, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
