package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/tempoapp/tempo-worker/internal/logger"
	"github.com/tempoapp/tempo-worker/internal/worker"
)

const (
	busWriteWait  = 10 * time.Second
	busPongWait   = 60 * time.Second
	busPingPeriod = (busPongWait * 9) / 10 // must be < pongWait
	busMaxMsgSize = 64 * 1024
)

var busUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Validate Origin against Host to prevent cross-site WebSocket
		// hijacking. Non-browser clients may omit Origin; those pass.
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// initBusRoutes registers the WebSocket message bus endpoint.
func (c *Controller) initBusRoutes() {
	c.Group.GET("/bus/ws", c.HandleBusWS)
}

// HandleBusWS serves one bus session: incoming typed messages are
// dispatched to the worker's handlers and answered with a reply; worker
// broadcasts are pushed to the client as they happen.
func (c *Controller) HandleBusWS(ctx echo.Context) error {
	conn, err := busUpgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		c.log.Error("upgrading bus WebSocket", logger.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(busMaxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(busPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(busPongWait))
	})

	// gorilla/websocket allows at most one concurrent writer; the reply
	// path, the broadcast pump, and the ping loop share this mutex.
	var writeMu sync.Mutex
	writeJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(busWriteWait))
		return conn.WriteJSON(v)
	}

	sessionID, broadcasts := c.worker.Bus.Subscribe()
	defer c.worker.Bus.Unsubscribe(sessionID)

	done := make(chan struct{})
	defer close(done)

	// Broadcast pump.
	go func() {
		for {
			select {
			case msg, ok := <-broadcasts:
				if !ok {
					return
				}
				if err := writeJSON(msg); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Keep-alive pings.
	go func() {
		ticker := time.NewTicker(busPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(busWriteWait))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	c.log.Debug("bus session connected",
		logger.Uint64("session", sessionID),
		logger.String("ip", ctx.RealIP()))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("bus session read error", logger.Error(err))
			}
			return nil
		}

		var msg worker.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			if writeErr := writeJSON(worker.Reply{Success: false, Error: "malformed message"}); writeErr != nil {
				return nil
			}
			continue
		}

		reply := c.worker.Bus.Request(ctx.Request().Context(), msg)
		if err := writeJSON(reply); err != nil {
			return nil
		}
	}
}
