// Package conf handles worker configuration: loading, defaults, and the
// process-wide settings singleton.
package conf

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

// Settings is the root configuration for the worker process.
type Settings struct {
	Main         MainSettings         `mapstructure:"main"`
	WebServer    WebServerSettings    `mapstructure:"webserver"`
	Upstream     UpstreamSettings     `mapstructure:"upstream"`
	Cache        CacheSettings        `mapstructure:"cache"`
	Worker       WorkerSettings       `mapstructure:"worker"`
	Push         PushSettings         `mapstructure:"push"`
	Permission   PermissionSettings   `mapstructure:"permission"`
	Notification NotificationSettings `mapstructure:"notification"`
	Datastore    DatastoreSettings    `mapstructure:"datastore"`
}

// MainSettings holds top-level application options.
type MainSettings struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"loglevel"`
}

// WebServerSettings configures the HTTP server.
type WebServerSettings struct {
	Port  string `mapstructure:"port"`
	Debug bool   `mapstructure:"debug"`
}

// UpstreamSettings configures the origin the fetch interceptor proxies to.
type UpstreamSettings struct {
	BaseURL string   `mapstructure:"baseurl"`
	Timeout Duration `mapstructure:"timeout"`
}

// CacheSettings configures the response cache at startup. The running
// worker copy of these values is mutable via the UPDATE_CONFIG bus message;
// this struct is only the boot-time seed.
type CacheSettings struct {
	Enabled             bool                `mapstructure:"enabled"`
	Version             string              `mapstructure:"version"`
	Precache            []string            `mapstructure:"precache"`
	Expiration          map[string]Duration `mapstructure:"expiration"`
	MaintenanceInterval Duration            `mapstructure:"maintenanceinterval"`
	Debug               bool                `mapstructure:"debug"`
}

// WorkerSettings configures request routing inside the fetch interceptor.
type WorkerSettings struct {
	ClaimClients  bool     `mapstructure:"claimclients"`
	ScriptPath    string   `mapstructure:"scriptpath"`
	DashboardPath string   `mapstructure:"dashboardpath"`
	NeverCache    []string `mapstructure:"nevercache"`
}

// PushSettings configures notification delivery and click actions.
type PushSettings struct {
	ActionEndpoint       string `mapstructure:"actionendpoint"`
	SnoozeMinutesDefault int    `mapstructure:"snoozeminutesdefault"`
	VAPIDPublicKey       string `mapstructure:"vapidpublickey"`
	// Messaging platform endpoints driven by the permission flow.
	PromptEndpoint       string `mapstructure:"promptendpoint"`
	RegistrationEndpoint string `mapstructure:"registrationendpoint"`
	TokenEndpoint        string `mapstructure:"tokenendpoint"`
}

// PermissionProfile tunes the permission flow for one device class.
// iOS Safari needs longer settle delays around the permission prompt and
// more token attempts than other browsers.
type PermissionProfile struct {
	PrePermissionDelay  Duration `mapstructure:"prepermissiondelay"`
	PostPermissionDelay Duration `mapstructure:"postpermissiondelay"`
	TokenMaxAttempts    int      `mapstructure:"tokenmaxattempts"`
	TokenBackoff        Duration `mapstructure:"tokenbackoff"`
}

// PermissionSettings configures the permission flow state machine.
type PermissionSettings struct {
	PromptTimeout       Duration                     `mapstructure:"prompttimeout"`
	RegistrationTimeout Duration                     `mapstructure:"registrationtimeout"`
	Profiles            map[string]PermissionProfile `mapstructure:"profiles"`
}

// Profile returns the profile for a device class, falling back to "default".
func (p *PermissionSettings) Profile(deviceClass string) PermissionProfile {
	if prof, ok := p.Profiles[deviceClass]; ok {
		return prof
	}
	return p.Profiles["default"]
}

// EmailSettings configures outbound email delivery via a shoutrrr URL.
type EmailSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// CleanupSettings are the boot-time defaults for notification pruning.
type CleanupSettings struct {
	Enabled                bool     `mapstructure:"enabled"`
	MaxAgeDays             int      `mapstructure:"maxagedays"`
	MaxCount               int      `mapstructure:"maxcount"`
	ExcludeHighPriority    bool     `mapstructure:"excludehighpriority"`
	HighPriorityMaxAgeDays int      `mapstructure:"highprioritymaxagedays"`
	Interval               Duration `mapstructure:"interval"`
}

// NotificationSettings configures the notification service.
type NotificationSettings struct {
	Email   EmailSettings   `mapstructure:"email"`
	Cleanup CleanupSettings `mapstructure:"cleanup"`
}

// DatastoreSettings configures the SQLite datastore.
type DatastoreSettings struct {
	Path string `mapstructure:"path"`
}

var (
	settingsInstance *Settings
	settingsMu       sync.RWMutex
)

// Load reads configuration from the given file path (optional; empty path
// uses defaults plus TEMPO_* environment overrides) and installs the result
// as the process-wide settings.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("tempo")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	SetSettings(settings)
	return settings, nil
}

// GetSettings returns the process-wide settings, or nil before Load.
func GetSettings() *Settings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settingsInstance
}

// SetSettings installs the process-wide settings. Exposed for tests.
func SetSettings(s *Settings) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	settingsInstance = s
}
