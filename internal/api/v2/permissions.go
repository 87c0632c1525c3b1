package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tempoapp/tempo-worker/internal/logger"
	"github.com/tempoapp/tempo-worker/internal/permission"
)

// RunFlowRequest starts one permission flow run for a client.
type RunFlowRequest struct {
	ClientID    string `json:"clientId"`
	DeviceClass string `json:"deviceClass"`
	UserAgent   string `json:"userAgent"`
	IOSVersion  string `json:"iosVersion"`
	IsPWA       bool   `json:"isPwa"`
}

// initPermissionRoutes registers the permission flow endpoints.
func (c *Controller) initPermissionRoutes() {
	group := c.Group.Group("/permission")
	group.POST("/run", c.RunPermissionFlow)
	group.GET("/status/:clientId", c.PermissionStatus)
	group.DELETE("/status/:clientId", c.ResetPermissionFlow)
	group.GET("/history/:clientId", c.PermissionHistory)
}

// RunPermissionFlow drives the state machine for one client. The run is
// synchronous; clients poll status after a reload instead of rerunning.
func (c *Controller) RunPermissionFlow(ctx echo.Context) error {
	userID, err := c.requireUser(ctx)
	if err != nil {
		return err
	}

	var req RunFlowRequest
	if err := ctx.Bind(&req); err != nil || req.ClientID == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "clientId is required",
		})
	}
	if req.UserAgent == "" {
		req.UserAgent = ctx.Request().UserAgent()
	}

	outcome, err := c.flow.Run(ctx.Request().Context(), permission.Request{
		ClientID:    req.ClientID,
		UserID:      userID,
		DeviceClass: req.DeviceClass,
		UserAgent:   req.UserAgent,
		IOSVersion:  req.IOSVersion,
		IsPWA:       req.IsPWA,
	})
	if err != nil {
		c.log.Error("permission flow run",
			logger.String("client_id", req.ClientID),
			logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "permission flow failed to persist state",
		})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"step":     outcome.Step,
		"reason":   outcome.Reason,
		"attempts": outcome.Attempts,
	})
}

// PermissionStatus reports the client's last persisted flow step.
func (c *Controller) PermissionStatus(ctx echo.Context) error {
	step, reason, err := c.flow.Status(ctx.Request().Context(), ctx.Param("clientId"))
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to read flow state",
		})
	}
	return ctx.JSON(http.StatusOK, map[string]string{
		"step":   string(step),
		"reason": reason,
	})
}

// ResetPermissionFlow clears the persisted flow state so a client can
// rerun after a failure.
func (c *Controller) ResetPermissionFlow(ctx echo.Context) error {
	if err := c.flow.Reset(ctx.Request().Context(), ctx.Param("clientId")); err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to reset flow state",
		})
	}
	return ctx.JSON(http.StatusOK, map[string]string{
		"message": "flow state cleared",
	})
}

// PermissionHistory lists the client's recent attempt diagnostics,
// most recent first.
func (c *Controller) PermissionHistory(ctx echo.Context) error {
	limit := 50
	if raw := ctx.QueryParam("limit"); raw != "" {
		if n, err := parsePositiveInt(raw); err == nil && n > 0 {
			limit = n
		}
	}
	items, err := c.permissions.ListHistory(ctx.Request().Context(), ctx.Param("clientId"), limit)
	if err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to read history",
		})
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"history": items,
		"total":   len(items),
	})
}
