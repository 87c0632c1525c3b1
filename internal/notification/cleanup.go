package notification

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/tempoapp/tempo-worker/internal/conf"
	"github.com/tempoapp/tempo-worker/internal/logger"
)

// CleanupConfig governs periodic pruning of stored notifications.
//
// Older clients send the legacy field names (maxAge, maxNotifications,
// keepHighPriority, highPriorityMaxAge, interval); UnmarshalJSON maps
// them onto the canonical fields.
type CleanupConfig struct {
	Enabled                bool          `json:"enabled"`
	MaxAgeDays             int           `json:"maxAgeDays"`
	MaxCount               int           `json:"maxCount"`
	ExcludeHighPriority    bool          `json:"excludeHighPriority"`
	HighPriorityMaxAgeDays int           `json:"highPriorityMaxAgeDays"`
	CleanupInterval        conf.Duration `json:"cleanupInterval"`
}

// cleanupConfigWire carries both canonical and legacy field names.
type cleanupConfigWire struct {
	Enabled                *bool          `json:"enabled"`
	MaxAgeDays             *int           `json:"maxAgeDays"`
	MaxCount               *int           `json:"maxCount"`
	ExcludeHighPriority    *bool          `json:"excludeHighPriority"`
	HighPriorityMaxAgeDays *int           `json:"highPriorityMaxAgeDays"`
	CleanupInterval        *conf.Duration `json:"cleanupInterval"`

	// Legacy aliases.
	LegacyMaxAge              *int           `json:"maxAge"`
	LegacyMaxNotifications    *int           `json:"maxNotifications"`
	LegacyKeepHighPriority    *bool          `json:"keepHighPriority"`
	LegacyHighPriorityMaxAge  *int           `json:"highPriorityMaxAge"`
	LegacyInterval            *conf.Duration `json:"interval"`
}

// UnmarshalJSON decodes a cleanup config, accepting legacy aliases.
// Canonical fields win when both spellings are present.
func (c *CleanupConfig) UnmarshalJSON(b []byte) error {
	var wire cleanupConfigWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	if wire.Enabled != nil {
		c.Enabled = *wire.Enabled
	}
	c.MaxAgeDays = pick(wire.MaxAgeDays, wire.LegacyMaxAge, c.MaxAgeDays)
	c.MaxCount = pick(wire.MaxCount, wire.LegacyMaxNotifications, c.MaxCount)
	c.HighPriorityMaxAgeDays = pick(wire.HighPriorityMaxAgeDays, wire.LegacyHighPriorityMaxAge, c.HighPriorityMaxAgeDays)
	if wire.ExcludeHighPriority != nil {
		c.ExcludeHighPriority = *wire.ExcludeHighPriority
	} else if wire.LegacyKeepHighPriority != nil {
		c.ExcludeHighPriority = *wire.LegacyKeepHighPriority
	}
	if wire.CleanupInterval != nil {
		c.CleanupInterval = *wire.CleanupInterval
	} else if wire.LegacyInterval != nil {
		c.CleanupInterval = *wire.LegacyInterval
	}
	return nil
}

func pick(canonical, legacy *int, fallback int) int {
	if canonical != nil {
		return *canonical
	}
	if legacy != nil {
		return *legacy
	}
	return fallback
}

// CleanupConfigFromSettings maps boot-time settings onto a CleanupConfig.
func CleanupConfigFromSettings(s *conf.CleanupSettings) CleanupConfig {
	return CleanupConfig{
		Enabled:                s.Enabled,
		MaxAgeDays:             s.MaxAgeDays,
		MaxCount:               s.MaxCount,
		ExcludeHighPriority:    s.ExcludeHighPriority,
		HighPriorityMaxAgeDays: s.HighPriorityMaxAgeDays,
		CleanupInterval:        s.Interval,
	}
}

// Cleanup prunes stored notifications per the config and returns how many
// were removed. Age pruning removes notifications older than MaxAgeDays;
// high-priority ones are held back until HighPriorityMaxAgeDays when
// ExcludeHighPriority is set. Count pruning then drops the oldest entries
// beyond MaxCount, again sparing high priority when excluded.
func (s *Service) Cleanup(cfg *CleanupConfig, now time.Time) int {
	if cfg == nil || !cfg.Enabled {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.notifications)

	if cfg.MaxAgeDays > 0 {
		cutoff := now.AddDate(0, 0, -cfg.MaxAgeDays)
		highCutoff := now.AddDate(0, 0, -cfg.HighPriorityMaxAgeDays)
		s.notifications = slices.DeleteFunc(s.notifications, func(n *Notification) bool {
			if n.Priority == PriorityHigh && cfg.ExcludeHighPriority {
				return cfg.HighPriorityMaxAgeDays > 0 && n.Timestamp.Before(highCutoff)
			}
			return n.Timestamp.Before(cutoff)
		})
	}

	if cfg.MaxCount > 0 && len(s.notifications) > cfg.MaxCount {
		excess := len(s.notifications) - cfg.MaxCount
		// Entries are kept in insertion order, so pruning walks oldest-first.
		kept := s.notifications[:0]
		for _, n := range s.notifications {
			if excess > 0 && !(cfg.ExcludeHighPriority && n.Priority == PriorityHigh) {
				excess--
				continue
			}
			kept = append(kept, n)
		}
		s.notifications = kept
	}

	return before - len(s.notifications)
}

// StartCleanup runs Cleanup on the configured interval until Stop is
// called on the returned channel's owner. A disabled config is a no-op.
func (s *Service) StartCleanup(cfg CleanupConfig, log logger.Logger) (stop func()) {
	if !cfg.Enabled || cfg.CleanupInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval.Std())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := s.Cleanup(&cfg, time.Now()); removed > 0 && log != nil {
					log.Info("notification cleanup completed",
						logger.Int("removed", removed))
				}
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
