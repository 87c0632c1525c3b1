package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Cache categories used for per-category expiration.
const (
	CacheCategoryStatic     = "static"
	CacheCategoryNavigation = "navigation"
	CacheCategoryAPI        = "api"
)

// Device classes used to select a permission flow profile.
const (
	DeviceClassDefault = "default"
	DeviceClassIOS     = "ios"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("main.name", "tempo-worker")
	v.SetDefault("main.loglevel", "info")

	v.SetDefault("webserver.port", "8080")
	v.SetDefault("webserver.debug", false)

	v.SetDefault("upstream.baseurl", "http://localhost:3000")
	v.SetDefault("upstream.timeout", "10s")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.version", "v2")
	v.SetDefault("cache.precache", []string{
		"/",
		"/index.html",
		"/manifest.webmanifest",
		"/offline.html",
		"/icons/icon-192.png",
		"/icons/icon-512.png",
	})
	v.SetDefault("cache.expiration", map[string]any{
		CacheCategoryStatic:     "168h", // one week
		CacheCategoryNavigation: "24h",
		CacheCategoryAPI:        "5m",
	})
	v.SetDefault("cache.maintenanceinterval", "1h")
	v.SetDefault("cache.debug", false)

	v.SetDefault("worker.claimclients", false)
	v.SetDefault("worker.scriptpath", "/firebase-messaging-sw.js")
	v.SetDefault("worker.dashboardpath", "/dashboard")
	v.SetDefault("worker.nevercache", []string{
		"/api/",
		"firestore.googleapis.com",
		"identitytoolkit.googleapis.com",
		"firebaseappcheck.googleapis.com",
	})

	v.SetDefault("push.actionendpoint", "/handleNotificationAction")
	v.SetDefault("push.snoozeminutesdefault", 30)
	v.SetDefault("push.vapidpublickey", "")
	v.SetDefault("push.promptendpoint", "/messaging/permission")
	v.SetDefault("push.registrationendpoint", "/messaging/registration")
	v.SetDefault("push.tokenendpoint", "/messaging/token")

	v.SetDefault("permission.prompttimeout", "15s")
	v.SetDefault("permission.registrationtimeout", "10s")
	v.SetDefault("permission.profiles", map[string]any{
		DeviceClassDefault: map[string]any{
			"prepermissiondelay":  "500ms",
			"postpermissiondelay": "1s",
			"tokenmaxattempts":    2,
			"tokenbackoff":        "2s",
		},
		// iOS Safari PWAs reject prompts fired too soon after a gesture and
		// need extra settle time before the token request succeeds.
		DeviceClassIOS: map[string]any{
			"prepermissiondelay":  "2s",
			"postpermissiondelay": "3s",
			"tokenmaxattempts":    3,
			"tokenbackoff":        "3s",
		},
	})

	v.SetDefault("notification.email.enabled", false)
	v.SetDefault("notification.email.url", "")
	v.SetDefault("notification.cleanup.enabled", true)
	v.SetDefault("notification.cleanup.maxagedays", 7)
	v.SetDefault("notification.cleanup.maxcount", 200)
	v.SetDefault("notification.cleanup.excludehighpriority", true)
	v.SetDefault("notification.cleanup.highprioritymaxagedays", 30)
	v.SetDefault("notification.cleanup.interval", "6h")

	v.SetDefault("datastore.path", "tempo.db")
}

// DefaultExpiration returns the configured expiration for a cache category,
// or fallback when the category is not configured.
func (c *CacheSettings) DefaultExpiration(category string, fallback time.Duration) time.Duration {
	if d, ok := c.Expiration[category]; ok && d > 0 {
		return d.Std()
	}
	return fallback
}
