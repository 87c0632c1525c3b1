// Package api implements the HTTP surface of the edge worker: the SSE
// notification stream, the WebSocket message bus transport, the
// notification action endpoint, token registration, and the permission
// flow endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tempoapp/tempo-worker/internal/conf"
	"github.com/tempoapp/tempo-worker/internal/datastore/v2/repository"
	"github.com/tempoapp/tempo-worker/internal/logger"
	"github.com/tempoapp/tempo-worker/internal/notification"
	"github.com/tempoapp/tempo-worker/internal/observability/metrics"
	"github.com/tempoapp/tempo-worker/internal/permission"
	"github.com/tempoapp/tempo-worker/internal/push"
	"github.com/tempoapp/tempo-worker/internal/token"
	"github.com/tempoapp/tempo-worker/internal/worker"
)

// userHeader carries the authenticated user id. Authentication proper is
// delegated to the fronting identity proxy; the API trusts this header.
const userHeader = "X-User-ID"

// Controller wires the worker subsystems into Echo routes under /api/v2.
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group

	ctx         context.Context
	settings    *conf.Settings
	worker      *worker.Worker
	flow        *permission.Flow
	tokens      *token.Manager
	reminders   repository.ReminderRepository
	permissions repository.PermissionRepository

	notifications *notification.Service
	receiver      *push.Receiver
	clicks        *push.ClickHandler
	metrics       *metrics.Metrics
	log           logger.Logger
}

// New creates the Controller and registers every route.
func New(
	ctx context.Context,
	e *echo.Echo,
	settings *conf.Settings,
	w *worker.Worker,
	flow *permission.Flow,
	tokens *token.Manager,
	reminders repository.ReminderRepository,
	permissions repository.PermissionRepository,
	notifications *notification.Service,
	clicks *push.ClickHandler,
	m *metrics.Metrics,
	registry *prometheus.Registry,
	log logger.Logger,
) *Controller {
	if log == nil {
		log = logger.Default()
	}
	var pushMetrics *metrics.PushMetrics
	if m != nil {
		pushMetrics = m.Push
	}
	c := &Controller{
		Echo:          e,
		Group:         e.Group("/api/v2"),
		ctx:           ctx,
		settings:      settings,
		worker:        w,
		flow:          flow,
		tokens:        tokens,
		reminders:     reminders,
		permissions:   permissions,
		notifications: notifications,
		receiver:      push.NewReceiver(notifications, pushMetrics, log),
		clicks:        clicks,
		metrics:       m,
		log:           log,
	}

	e.Use(middleware.Recover())

	c.initWorkerRoutes()
	c.initNotificationRoutes()
	c.initBusRoutes()
	c.initActionRoutes()
	c.initPushRoutes()
	c.initTokenRoutes()
	c.initPermissionRoutes()

	if registry != nil {
		e.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
	return c
}

// jsonMarshal is the encoding used for SSE payloads.
func jsonMarshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// parsePositiveInt parses a non-negative integer query parameter.
func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}

// requireUser extracts the authenticated user id or rejects the request.
func (c *Controller) requireUser(ctx echo.Context) (string, error) {
	uid := ctx.Request().Header.Get(userHeader)
	if uid == "" {
		return "", ctx.JSON(http.StatusUnauthorized, map[string]string{
			"error": "authentication required",
		})
	}
	return uid, nil
}
