package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tempoapp/tempo-worker/internal/logger"
	"github.com/tempoapp/tempo-worker/internal/push"
)

// pushMaxPayload bounds the accepted push message size.
const pushMaxPayload = 16 * 1024

// ClickRequest is one notification click forwarded by a client.
type ClickRequest struct {
	// Action is empty for a click on the notification body.
	Action string           `json:"action"`
	Tag    string           `json:"tag"`
	Data   push.PayloadData `json:"data"`
}

// initPushRoutes registers the push ingest and click endpoints.
func (c *Controller) initPushRoutes() {
	c.Group.POST("/push", c.ReceivePush)
	c.Group.POST("/push/click", c.HandlePushClick)
}

// ReceivePush renders an incoming push message as a tagged notification
// and broadcasts it to stream subscribers.
func (c *Controller) ReceivePush(ctx echo.Context) error {
	userID, err := c.requireUser(ctx)
	if err != nil {
		return err
	}

	raw, err := io.ReadAll(io.LimitReader(ctx.Request().Body, pushMaxPayload))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "unreadable payload",
		})
	}

	n, err := c.receiver.Receive(userID, raw)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}
	return ctx.JSON(http.StatusCreated, map[string]string{
		"id":  n.ID,
		"tag": n.Tag,
	})
}

// HandlePushClick routes a notification click: the rendered notification
// is closed first, then the action is dispatched or the dashboard opened.
func (c *Controller) HandlePushClick(ctx echo.Context) error {
	userID, err := c.requireUser(ctx)
	if err != nil {
		return err
	}

	var req ClickRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "malformed request body",
		})
	}

	result := c.clicks.HandleClick(ctx.Request().Context(), push.Click{
		Action: req.Action,
		UserID: userID,
		Tag:    req.Tag,
		Data:   req.Data,
	})
	c.log.Debug("notification click handled",
		logger.String("action", req.Action),
		logger.String("tag", req.Tag),
		logger.Bool("success", result.Success))
	return ctx.JSON(http.StatusOK, result)
}
