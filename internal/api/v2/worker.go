package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tempoapp/tempo-worker/internal/logger"
	"github.com/tempoapp/tempo-worker/internal/worker"
)

// passthroughHeaders are the response headers forwarded from a proxied
// result to the client.
var passthroughHeaders = []string{
	"Content-Type",
	"Date",
	"X-Tempo-Served-From",
}

// initWorkerRoutes registers the worker script, the routed fetch proxy,
// and cache diagnostics.
func (c *Controller) initWorkerRoutes() {
	// The worker script and manifest must be served from root paths so
	// the worker scope covers the whole origin.
	c.Echo.GET("/sw.js", c.ServeWorkerScript)
	c.Echo.GET("/manifest.webmanifest", c.ServeManifest)

	group := c.Group.Group("/worker")
	group.GET("/fetch", c.ProxyFetch)
	group.GET("/stats", c.CacheStats)
	group.POST("/maintenance", c.RunMaintenance)
	group.POST("/sync", c.TriggerSync)
}

// ServeWorkerScript serves the client worker bootstrap script. Claiming
// open tabs on activation is opt-in via worker.claimclients.
func (c *Controller) ServeWorkerScript(ctx echo.Context) error {
	header := ctx.Response().Header()
	header.Set("Service-Worker-Allowed", "/")
	header.Set("Cache-Control", "no-cache")
	script := workerScript
	if c.settings.Worker.ClaimClients {
		script = append(append([]byte{}, script...), workerClaimLine...)
	}
	return ctx.Blob(http.StatusOK, "application/javascript", script)
}

// ServeManifest serves the app manifest. The file has a fixed name, so
// it gets no-cache headers instead of the immutable caching applied to
// hashed assets.
func (c *Controller) ServeManifest(ctx echo.Context) error {
	ctx.Response().Header().Set("Cache-Control", "no-cache")
	return ctx.Blob(http.StatusOK, "application/manifest+json", appManifest)
}

// ProxyFetch routes one request through the interceptor and relays the
// result. The interceptor never fails: offline upstreams degrade to a
// cached copy or a synthetic 503.
// GET /api/v2/worker/fetch?url=<url>&mode=<navigate|cors|no-cors>
func (c *Controller) ProxyFetch(ctx echo.Context) error {
	rawURL := ctx.QueryParam("url")
	if rawURL == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "url parameter is required",
		})
	}
	mode := worker.RequestMode(ctx.QueryParam("mode"))
	if mode == "" {
		mode = worker.ModeCORS
	}

	result := c.worker.Interceptor.Handle(ctx.Request().Context(), http.MethodGet, rawURL, mode)

	header := ctx.Response().Header()
	for _, name := range passthroughHeaders {
		if v := result.Header.Get(name); v != "" {
			header.Set(name, v)
		}
	}
	contentType := result.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return ctx.Blob(result.StatusCode, contentType, result.Body)
}

// CacheStats reports per-cache hit/miss counters and entry counts.
func (c *Controller) CacheStats(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.worker.Store.Stats())
}

// RunMaintenance sweeps expired cache entries immediately.
func (c *Controller) RunMaintenance(ctx echo.Context) error {
	c.worker.Store.Maintain()
	return ctx.JSON(http.StatusOK, c.worker.Store.Stats())
}

// TriggerSync replays the queued reminder mutations.
func (c *Controller) TriggerSync(ctx echo.Context) error {
	if c.worker.Syncer == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "sync queue not available",
		})
	}
	result, err := c.worker.Syncer.HandleSync(ctx.Request().Context(), worker.SyncTagReminders)
	if err != nil {
		c.log.Error("manual sync trigger failed", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "sync failed",
		})
	}
	return ctx.JSON(http.StatusOK, result)
}

// workerScript is the bootstrap served at /sw.js. It registers the
// client against this origin's worker endpoints.
var workerScript = []byte(`// tempo worker bootstrap
self.addEventListener('install', () => self.skipWaiting());
`)

// workerClaimLine is appended when worker.claimclients is enabled.
var workerClaimLine = []byte(`self.addEventListener('activate', (event) => event.waitUntil(self.clients.claim()));
`)

// appManifest is the installable-app manifest served at the root.
var appManifest = []byte(`{
  "name": "Tempo",
  "short_name": "Tempo",
  "start_url": "/dashboard",
  "display": "standalone",
  "background_color": "#ffffff",
  "theme_color": "#1a73e8"
}
`)
