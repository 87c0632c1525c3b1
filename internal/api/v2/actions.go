package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tempoapp/tempo-worker/internal/datastore/v2/repository"
	"github.com/tempoapp/tempo-worker/internal/errors"
	"github.com/tempoapp/tempo-worker/internal/logger"
	"github.com/tempoapp/tempo-worker/internal/push"
)

// actionRateLimit bounds notification action submissions per client IP.
const (
	actionRateLimit = 30
	actionRateBurst = 10
)

// ActionRequest is the body POSTed by a notification action click.
type ActionRequest struct {
	Action        string `json:"action"`
	ReminderID    string `json:"reminderId"`
	UserID        string `json:"userId"`
	Timestamp     int64  `json:"timestamp"`
	SnoozeMinutes int    `json:"snoozeMinutes"`
}

// initActionRoutes registers the notification action endpoint at the
// path the worker's click handler targets.
func (c *Controller) initActionRoutes() {
	limiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      actionRateLimit,
				Burst:     actionRateBurst,
				ExpiresIn: time.Minute,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many action requests",
			})
		},
	})
	c.Echo.POST("/handleNotificationAction", c.HandleNotificationAction, limiter)
}

// HandleNotificationAction applies a complete or snooze click to the
// reminder store.
func (c *Controller) HandleNotificationAction(ctx echo.Context) error {
	var req ActionRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{
			"success": false, "error": "malformed request body",
		})
	}
	if req.ReminderID == "" || req.UserID == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]any{
			"success": false, "error": "reminderId and userId are required",
		})
	}

	reqCtx := ctx.Request().Context()
	var err error
	switch req.Action {
	case push.ActionComplete:
		err = c.reminders.CompleteReminder(reqCtx, req.ReminderID, time.Now())
	case push.ActionSnooze:
		minutes := req.SnoozeMinutes
		if minutes <= 0 {
			minutes = c.settings.Push.SnoozeMinutesDefault
		}
		err = c.reminders.SnoozeReminder(reqCtx, req.ReminderID, time.Now().Add(time.Duration(minutes)*time.Minute))
	default:
		return ctx.JSON(http.StatusBadRequest, map[string]any{
			"success": false, "error": "unknown action",
		})
	}

	if err != nil {
		if errors.Is(err, repository.ErrReminderNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]any{
				"success": false, "error": "reminder not found",
			})
		}
		c.log.Error("applying notification action",
			logger.String("action", req.Action),
			logger.String("reminder_id", req.ReminderID),
			logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]any{
			"success": false, "error": "action failed",
		})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"action":     req.Action,
		"reminderId": req.ReminderID,
	})
}
