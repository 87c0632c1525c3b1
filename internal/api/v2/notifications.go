package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tempoapp/tempo-worker/internal/errors"
	"github.com/tempoapp/tempo-worker/internal/logger"
	"github.com/tempoapp/tempo-worker/internal/notification"
)

// SSE connection configuration
const (
	maxSSEConnectionDuration = 30 * time.Minute
	heartbeatInterval        = 30 * time.Second
	sseEndpoint              = "/api/v2/notifications/stream"

	rateLimitWindow            = 1 * time.Minute
	rateLimitRequestsPerWindow = 10
	rateLimitBurst             = 15
)

// SSENotificationData is one notification event on the stream.
type SSENotificationData struct {
	*notification.Notification
	EventType string `json:"eventType"`
}

// notificationAction is the shared shape of the per-id operations.
type notificationAction struct {
	operation      func(service *notification.Service, id string) error
	errorLogMsg    string
	errorRespMsg   string
	successRespMsg string
}

// initNotificationRoutes registers the stream and management endpoints.
func (c *Controller) initNotificationRoutes() {
	c.Group.GET("/notifications/stream", c.StreamNotifications,
		middleware.RateLimiterWithConfig(sseRateLimiterConfig()))

	group := c.Group.Group("/notifications")
	group.GET("", c.GetNotifications)
	group.GET("/:id", c.GetNotification)
	group.PUT("/:id/read", c.MarkNotificationRead)
	group.PUT("/:id/acknowledge", c.MarkNotificationAcknowledged)
	group.DELETE("/:id", c.DeleteNotification)
	group.GET("/unread/count", c.GetUnreadCount)
}

func sseRateLimiterConfig() middleware.RateLimiterConfig {
	return middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rateLimitRequestsPerWindow,
				Burst:     rateLimitBurst,
				ExpiresIn: rateLimitWindow,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many stream connection attempts, please wait before trying again",
			})
		},
	}
}

// StreamNotifications serves the SSE notification stream. The
// connection is bounded to maxSSEConnectionDuration and kept alive with
// heartbeats between notifications.
func (c *Controller) StreamNotifications(ctx echo.Context) error {
	if c.notifications == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "Notification service not available",
		})
	}

	if c.metrics != nil && c.metrics.HTTP != nil {
		c.metrics.HTTP.SSEConnectionStarted(sseEndpoint)
		defer c.metrics.HTTP.SSEConnectionClosed(sseEndpoint)
	}

	setSSEHeaders(ctx)
	clientID := uuid.New().String()
	subscriberCh, subscriberCtx := c.notifications.Subscribe()
	defer c.notifications.Unsubscribe(subscriberCh)

	if err := c.sendSSEMessage(ctx, "connected", map[string]string{
		"clientId": clientID,
		"message":  "Connected to notification stream",
	}); err != nil {
		return err
	}
	c.recordSSEMessage("connected")
	c.log.Debug("notification stream connected",
		logger.String("client_id", clientID),
		logger.String("ip", ctx.RealIP()))

	connectionStart := time.Now()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case notif := <-subscriberCh:
			if notif == nil {
				return nil
			}
			event := SSENotificationData{
				Notification: notif.Clone(),
				EventType:    "notification",
			}
			if err := c.sendSSEMessage(ctx, "notification", event); err != nil {
				c.log.Debug("notification stream send failed",
					logger.String("client_id", clientID),
					logger.Error(err))
				return err
			}
			c.recordSSEMessage("notification")

		case <-ticker.C:
			if time.Since(connectionStart) > maxSSEConnectionDuration {
				c.log.Debug("notification stream max duration reached",
					logger.String("client_id", clientID))
				return nil
			}
			if err := c.sendSSEMessage(ctx, "heartbeat", map[string]int64{
				"timestamp": time.Now().Unix(),
			}); err != nil {
				return err
			}
			c.recordSSEMessage("heartbeat")

		case <-ctx.Request().Context().Done():
			c.log.Debug("notification stream disconnected",
				logger.String("client_id", clientID))
			return nil

		case <-subscriberCtx.Done():
			return nil
		}
	}
}

func setSSEHeaders(ctx echo.Context) {
	header := ctx.Response().Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
}

func (c *Controller) sendSSEMessage(ctx echo.Context, event string, data any) error {
	payload, err := jsonMarshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(ctx.Response(), "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	ctx.Response().Flush()
	return nil
}

func (c *Controller) recordSSEMessage(event string) {
	if c.metrics != nil && c.metrics.HTTP != nil {
		c.metrics.HTTP.RecordSSEMessageSent(sseEndpoint, event)
	}
}

// GetNotifications lists stored notifications, newest first.
// Query params: status, type, limit, offset.
func (c *Controller) GetNotifications(ctx echo.Context) error {
	if c.notifications == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "Notification service not available",
		})
	}

	filter := &notification.FilterOptions{}
	if status := ctx.QueryParam("status"); status != "" {
		filter.Status = []notification.Status{notification.Status(status)}
	}
	if typ := ctx.QueryParam("type"); typ != "" {
		filter.Types = []notification.Type{notification.Type(typ)}
	}
	if limit := ctx.QueryParam("limit"); limit != "" {
		if n, err := parsePositiveInt(limit); err == nil {
			filter.Limit = n
		}
	}
	if offset := ctx.QueryParam("offset"); offset != "" {
		if n, err := parsePositiveInt(offset); err == nil {
			filter.Offset = n
		}
	}

	items, err := c.notifications.List(filter)
	if err != nil {
		c.log.Error("listing notifications", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to list notifications",
		})
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"notifications": items,
		"total":         len(items),
	})
}

// GetNotification returns one notification by id.
func (c *Controller) GetNotification(ctx echo.Context) error {
	if c.notifications == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "Notification service not available",
		})
	}
	n, err := c.notifications.Get(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "Notification not found",
		})
	}
	return ctx.JSON(http.StatusOK, n)
}

// MarkNotificationRead marks one notification as read.
func (c *Controller) MarkNotificationRead(ctx echo.Context) error {
	return c.executeNotificationAction(ctx, notificationAction{
		operation:      (*notification.Service).MarkAsRead,
		errorLogMsg:    "marking notification read",
		errorRespMsg:   "Failed to mark notification as read",
		successRespMsg: "Notification marked as read",
	})
}

// MarkNotificationAcknowledged marks one notification as acknowledged.
func (c *Controller) MarkNotificationAcknowledged(ctx echo.Context) error {
	return c.executeNotificationAction(ctx, notificationAction{
		operation:      (*notification.Service).MarkAsAcknowledged,
		errorLogMsg:    "acknowledging notification",
		errorRespMsg:   "Failed to acknowledge notification",
		successRespMsg: "Notification acknowledged",
	})
}

// DeleteNotification removes one notification.
func (c *Controller) DeleteNotification(ctx echo.Context) error {
	return c.executeNotificationAction(ctx, notificationAction{
		operation:      (*notification.Service).Delete,
		errorLogMsg:    "deleting notification",
		errorRespMsg:   "Failed to delete notification",
		successRespMsg: "Notification deleted",
	})
}

// GetUnreadCount returns the number of unread notifications.
func (c *Controller) GetUnreadCount(ctx echo.Context) error {
	if c.notifications == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "Notification service not available",
		})
	}
	count, err := c.notifications.GetUnreadCount()
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to count unread notifications",
		})
	}
	return ctx.JSON(http.StatusOK, map[string]int{"count": count})
}

// executeNotificationAction handles the shared per-id operation pattern:
// validate the id, run the operation, map errors to responses.
func (c *Controller) executeNotificationAction(ctx echo.Context, action notificationAction) error {
	if c.notifications == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "Notification service not available",
		})
	}
	id := ctx.Param("id")
	if id == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "Notification ID is required",
		})
	}
	if err := action.operation(c.notifications, id); err != nil {
		if errors.Is(err, notification.ErrNotificationNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{
				"error": "Notification not found",
			})
		}
		c.log.Error(action.errorLogMsg, logger.Error(err), logger.String("id", id))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": action.errorRespMsg,
		})
	}
	return ctx.JSON(http.StatusOK, map[string]string{
		"message": action.successRespMsg,
	})
}
