package push

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tempoapp/tempo-worker/internal/logger"
	"github.com/tempoapp/tempo-worker/internal/notification"
	"github.com/tempoapp/tempo-worker/internal/observability/metrics"
)

const (
	defaultDashboardPath = "/dashboard"
	dispatchTimeout      = 10 * time.Second
)

// Client is one open app window the click handler can steer.
type Client interface {
	URL() string
	Navigate(url string) error
	Focus() error
}

// ClientRegistry lists open app windows and opens new ones.
type ClientRegistry interface {
	Clients() []Client
	OpenWindow(url string) error
}

// NotificationCloser removes a rendered notification. Closing happens
// before any other click side effect so a duplicate click is a no-op.
type NotificationCloser interface {
	GetByTag(tag string) (*notification.Notification, bool)
	Delete(id string) error
}

// Click is one notification click event.
type Click struct {
	// Action is empty for a click on the notification body.
	Action string
	UserID string
	Tag    string
	Data   PayloadData
}

// ClickResult reports what the handler did. Action dispatch failures are
// swallowed into Success=false; they are not retried or queued.
type ClickResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Opened  string `json:"opened,omitempty"`
	Focused bool   `json:"focused,omitempty"`
}

// actionRequest is the body POSTed to the backend action endpoint.
type actionRequest struct {
	Action        string `json:"action"`
	ReminderID    string `json:"reminderId"`
	UserID        string `json:"userId"`
	Timestamp     int64  `json:"timestamp"`
	SnoozeMinutes int    `json:"snoozeMinutes,omitempty"`
}

// ClickHandler routes notification clicks: action buttons go to the
// backend action endpoint, body clicks focus or open the dashboard.
type ClickHandler struct {
	closer        NotificationCloser
	registry      ClientRegistry
	client        *http.Client
	endpoint      string
	dashboardPath string
	snoozeMinutes int
	metrics       *metrics.PushMetrics
	log           logger.Logger
}

// NewClickHandler creates a ClickHandler. endpoint is the absolute URL
// of the backend action endpoint; dashboardPath is the app path body
// clicks steer to (empty means /dashboard); snoozeMinutes is the default
// snooze length sent with snooze actions.
func NewClickHandler(
	closer NotificationCloser,
	registry ClientRegistry,
	client *http.Client,
	endpoint string,
	dashboardPath string,
	snoozeMinutes int,
	m *metrics.PushMetrics,
	log logger.Logger,
) *ClickHandler {
	if client == nil {
		client = http.DefaultClient
	}
	if dashboardPath == "" {
		dashboardPath = defaultDashboardPath
	}
	if log == nil {
		log = logger.Default()
	}
	return &ClickHandler{
		closer:        closer,
		registry:      registry,
		client:        client,
		endpoint:      endpoint,
		dashboardPath: dashboardPath,
		snoozeMinutes: snoozeMinutes,
		metrics:       m,
		log:           log,
	}
}

// HandleClick processes one click. The notification is closed first in
// every path; the remaining side effect depends on whether an action
// button or the body was clicked.
func (h *ClickHandler) HandleClick(ctx context.Context, click Click) ClickResult {
	h.closeNotification(click.Tag)

	if click.Action != "" {
		return h.dispatchAction(ctx, click)
	}
	return h.openApp(click)
}

// closeNotification removes the rendered notification, if still present.
func (h *ClickHandler) closeNotification(tag string) {
	if h.closer == nil || tag == "" {
		return
	}
	if n, ok := h.closer.GetByTag(tag); ok {
		if err := h.closer.Delete(n.ID); err != nil {
			h.log.Warn("closing clicked notification", logger.Error(err))
		}
	}
}

// dispatchAction POSTs the action to the backend endpoint. Failures are
// reported in the result and never retried.
func (h *ClickHandler) dispatchAction(ctx context.Context, click Click) ClickResult {
	req := actionRequest{
		Action:     click.Action,
		ReminderID: click.Data.ReminderID,
		UserID:     click.UserID,
		Timestamp:  time.Now().UnixMilli(),
	}
	if click.Action == ActionSnooze {
		req.SnoozeMinutes = h.snoozeMinutes
	}

	result := h.postAction(ctx, req)
	if h.metrics != nil {
		outcome := "ok"
		if !result.Success {
			outcome = "error"
		}
		h.metrics.RecordActionDispatch(click.Action, outcome)
	}
	if !result.Success {
		h.log.Warn("notification action dispatch failed",
			logger.String("action", click.Action),
			logger.String("reminder_id", click.Data.ReminderID),
			logger.String("error", result.Error))
	}
	return result
}

func (h *ClickHandler) postAction(ctx context.Context, action actionRequest) ClickResult {
	body, err := json.Marshal(action)
	if err != nil {
		return ClickResult{Success: false, Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return ClickResult{Success: false, Error: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return ClickResult{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ClickResult{Success: false, Error: http.StatusText(resp.StatusCode)}
	}
	return ClickResult{Success: true}
}

// openApp focuses an open dashboard window if one exists, otherwise
// opens a new window at the reminder's deep link.
func (h *ClickHandler) openApp(click Click) ClickResult {
	target := click.Data.DeepLink
	if target == "" {
		target = h.dashboardPath + "/reminders/" + click.Data.ReminderID
	}

	if h.registry != nil {
		for _, c := range h.registry.Clients() {
			if !strings.Contains(c.URL(), h.dashboardPath) {
				continue
			}
			if err := c.Navigate(target); err != nil {
				h.log.Warn("navigating dashboard client", logger.Error(err))
				break
			}
			if err := c.Focus(); err != nil {
				h.log.Warn("focusing dashboard client", logger.Error(err))
			}
			return ClickResult{Success: true, Opened: target, Focused: true}
		}
		if err := h.registry.OpenWindow(target); err != nil {
			return ClickResult{Success: false, Error: err.Error()}
		}
	}
	return ClickResult{Success: true, Opened: target}
}
