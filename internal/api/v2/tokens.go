package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tempoapp/tempo-worker/internal/logger"
)

// RegisterTokenRequest registers one push token for a user.
type RegisterTokenRequest struct {
	UserID      string `json:"userId"`
	Token       string `json:"token"`
	DeviceClass string `json:"deviceClass"`
}

// DeregisterTokenRequest removes one push token from a user.
type DeregisterTokenRequest struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// initTokenRoutes registers the token management endpoints.
func (c *Controller) initTokenRoutes() {
	group := c.Group.Group("/tokens")
	group.POST("/register", c.RegisterToken)
	group.POST("/deregister", c.DeregisterToken)
	group.POST("/prune", c.PruneTokens)
}

// RegisterToken saves a push token. The authenticated caller must match
// the target user; mismatches are rejected without a write.
func (c *Controller) RegisterToken(ctx echo.Context) error {
	callerUID, err := c.requireUser(ctx)
	if err != nil {
		return err
	}

	var req RegisterTokenRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "malformed request body",
		})
	}
	if req.Token == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "token is required",
		})
	}

	if err := c.tokens.SaveToken(ctx.Request().Context(), callerUID, req.UserID, req.Token, req.DeviceClass); err != nil {
		c.log.Warn("token registration rejected",
			logger.String("caller_uid", callerUID),
			logger.Error(err))
		return ctx.JSON(http.StatusForbidden, map[string]string{
			"error": "token registration rejected",
		})
	}
	return ctx.JSON(http.StatusOK, map[string]string{
		"message": "token registered",
	})
}

// DeregisterToken removes a token from the caller's token set.
func (c *Controller) DeregisterToken(ctx echo.Context) error {
	callerUID, err := c.requireUser(ctx)
	if err != nil {
		return err
	}

	var req DeregisterTokenRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "malformed request body",
		})
	}
	if req.UserID != "" && req.UserID != callerUID {
		return ctx.JSON(http.StatusForbidden, map[string]string{
			"error": "cannot deregister another user's token",
		})
	}

	if err := c.tokens.RemoveToken(ctx.Request().Context(), callerUID, req.Token); err != nil {
		c.log.Error("removing token", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to remove token",
		})
	}
	return ctx.JSON(http.StatusOK, map[string]string{
		"message": "token removed",
	})
}

// PruneTokens removes a batch of dead tokens from every user that
// references them. Called by the delivery backend after a bulk send
// reports per-token failures.
func (c *Controller) PruneTokens(ctx echo.Context) error {
	var req struct {
		Tokens []string `json:"tokens"`
	}
	if err := ctx.Bind(&req); err != nil || len(req.Tokens) == 0 {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "tokens are required",
		})
	}

	removed, err := c.tokens.PruneInvalidTokens(ctx.Request().Context(), req.Tokens)
	if err != nil {
		c.log.Error("pruning invalid tokens", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "prune failed",
		})
	}
	return ctx.JSON(http.StatusOK, map[string]int{"removed": removed})
}
