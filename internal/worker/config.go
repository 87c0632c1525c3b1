package worker

import (
	"sync"
	"time"

	"github.com/tempoapp/tempo-worker/internal/conf"
)

// Config is the worker's runtime cache configuration. Initialized from
// settings at startup and mutated only through the UPDATE_CONFIG bus
// message; the fetch path and maintenance loop read snapshots. It is
// worker-local and never persisted across restarts.
type Config struct {
	Enabled             bool                     `json:"enabled"`
	Expiration          map[string]conf.Duration `json:"expiration"`
	MaintenanceInterval conf.Duration            `json:"maintenanceInterval"`
	Debug               bool                     `json:"debug"`
}

// ConfigFromSettings seeds the runtime config from boot settings.
func ConfigFromSettings(s *conf.CacheSettings) Config {
	expiration := make(map[string]conf.Duration, len(s.Expiration))
	for k, v := range s.Expiration {
		expiration[k] = v
	}
	return Config{
		Enabled:             s.Enabled,
		Expiration:          expiration,
		MaintenanceInterval: s.MaintenanceInterval,
		Debug:               s.Debug,
	}
}

// ConfigState guards the mutable runtime config.
type ConfigState struct {
	mu  sync.RWMutex
	cfg Config
}

// NewConfigState creates a ConfigState holding the initial config.
func NewConfigState(cfg Config) *ConfigState {
	return &ConfigState{cfg: cfg}
}

// Get returns a snapshot of the current config.
func (s *ConfigState) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	expiration := make(map[string]conf.Duration, len(s.cfg.Expiration))
	for k, v := range s.cfg.Expiration {
		expiration[k] = v
	}
	cfg.Expiration = expiration
	return cfg
}

// Update replaces the config. Called only from the UPDATE_CONFIG handler.
func (s *ConfigState) Update(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.Expiration == nil {
		cfg.Expiration = s.cfg.Expiration
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = s.cfg.MaintenanceInterval
	}
	s.cfg = cfg
}

// ExpirationFor returns the TTL for a cache category, or fallback.
func (s *ConfigState) ExpirationFor(category string, fallback time.Duration) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.cfg.Expiration[category]; ok && d > 0 {
		return d.Std()
	}
	return fallback
}
