package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tempoapp/tempo-worker/internal/cache"
	"github.com/tempoapp/tempo-worker/internal/errors"
	"github.com/tempoapp/tempo-worker/internal/logger"
	"github.com/tempoapp/tempo-worker/internal/notification"
)

var (
	errNoSyncQueue     = errors.Newf("sync queue not configured").Component("worker").Category(errors.CategoryState).Build()
	errNoNotifications = errors.Newf("notification service not configured").Component("worker").Category(errors.CategoryState).Build()
)

// capabilities enumerates the message types this worker answers,
// reported in PONG replies so clients can feature-detect.
var capabilities = []string{
	string(MessageSkipWaiting),
	string(MessageSetImplementation),
	string(MessageSyncReminders),
	string(MessageClearNotifications),
	string(MessageCacheMaintenance),
	string(MessageUpdateConfig),
	string(MessageGetCacheStats),
	string(MessageCleanupNotifications),
	string(MessagePing),
}

// NotificationStore is the slice of the notification service the worker
// needs for CLEAR_NOTIFICATIONS and CLEANUP_NOTIFICATIONS messages.
type NotificationStore interface {
	Clear() int
	GetByTag(tag string) (*notification.Notification, bool)
	Delete(id string) error
	Cleanup(cfg *notification.CleanupConfig, now time.Time) int
}

// Worker ties the request interceptor, asset manager, cache store,
// message bus and sync queue into one lifecycle.
type Worker struct {
	Version     string
	Classifier  *Classifier
	Store       *cache.Store
	Config      *ConfigState
	Interceptor *Interceptor
	Assets      *AssetManager
	Bus         *Bus
	Syncer      *Syncer

	notifications NotificationStore
	cleanupCfg    notification.CleanupConfig
	log           logger.Logger
	stop          chan struct{}
}

// New assembles a Worker from already constructed parts and registers
// the message handlers. notifications may be nil when the notification
// service is disabled.
func New(
	version string,
	classifier *Classifier,
	store *cache.Store,
	config *ConfigState,
	interceptor *Interceptor,
	assets *AssetManager,
	bus *Bus,
	syncer *Syncer,
	notifications NotificationStore,
	cleanupCfg notification.CleanupConfig,
	log logger.Logger,
) *Worker {
	if log == nil {
		log = logger.Default()
	}
	w := &Worker{
		Version:       version,
		Classifier:    classifier,
		Store:         store,
		Config:        config,
		Interceptor:   interceptor,
		Assets:        assets,
		Bus:           bus,
		Syncer:        syncer,
		notifications: notifications,
		cleanupCfg:    cleanupCfg,
		log:           log,
		stop:          make(chan struct{}),
	}
	w.registerHandlers()
	return w
}

// Install precaches the app shell and is safe to call repeatedly.
func (w *Worker) Install(ctx context.Context) error {
	return w.Assets.Install(ctx)
}

// Activate evicts caches from older versions.
func (w *Worker) Activate(ctx context.Context) {
	w.Assets.Activate(ctx)
}

// Start launches the periodic cache maintenance loop.
func (w *Worker) Start() {
	interval := w.Config.Get().MaintenanceInterval.Std()
	if interval <= 0 {
		w.log.Info("cache maintenance disabled")
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.Store.Maintain()
			case <-w.stop:
				return
			}
		}
	}()
	w.log.Info("cache maintenance started", logger.Duration("interval", interval))
}

// Stop halts the maintenance loop and waits for in-flight
// revalidations to finish.
func (w *Worker) Stop() {
	close(w.stop)
	w.Interceptor.Flush()
}

func (w *Worker) registerHandlers() {
	w.Bus.Handle(MessagePing, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return PongData{
			Timestamp:    time.Now().UnixMilli(),
			Version:      w.Version,
			Capabilities: capabilities,
		}, nil
	})

	w.Bus.Handle(MessageSkipWaiting, func(ctx context.Context, _ json.RawMessage) (any, error) {
		deleted := w.Assets.Activate(ctx)
		return map[string]any{"activated": w.Version, "evicted": deleted}, nil
	})

	w.Bus.Handle(MessageSetImplementation, func(ctx context.Context, payload json.RawMessage) (any, error) {
		var p SetImplementationPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		w.Classifier.SetLegacyNavigation(!p.UseNewImplementation)
		w.log.Info("navigation routing switched",
			logger.Bool("new_implementation", p.UseNewImplementation))
		return map[string]bool{"useNewImplementation": p.UseNewImplementation}, nil
	})

	w.Bus.Handle(MessageSyncReminders, func(ctx context.Context, _ json.RawMessage) (any, error) {
		if w.Syncer == nil {
			return nil, errNoSyncQueue
		}
		return w.Syncer.HandleSync(ctx, SyncTagReminders)
	})

	w.Bus.Handle(MessageCacheMaintenance, func(ctx context.Context, _ json.RawMessage) (any, error) {
		w.Store.Maintain()
		return w.Store.Stats(), nil
	})

	w.Bus.Handle(MessageGetCacheStats, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return w.Store.Stats(), nil
	})

	w.Bus.Handle(MessageUpdateConfig, func(ctx context.Context, payload json.RawMessage) (any, error) {
		var cfg Config
		if err := json.Unmarshal(payload, &cfg); err != nil {
			return nil, err
		}
		w.Config.Update(cfg)
		applied := w.Config.Get()
		w.log.Info("runtime config updated",
			logger.Bool("enabled", applied.Enabled),
			logger.Bool("debug", applied.Debug))
		return applied, nil
	})

	w.Bus.Handle(MessageClearNotifications, func(ctx context.Context, payload json.RawMessage) (any, error) {
		if w.notifications == nil {
			return nil, errNoNotifications
		}
		var p ClearNotificationsPayload
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, err
			}
		}
		if p.Tag == "" {
			return map[string]int{"cleared": w.notifications.Clear()}, nil
		}
		n, ok := w.notifications.GetByTag(p.Tag)
		if !ok {
			return map[string]int{"cleared": 0}, nil
		}
		if err := w.notifications.Delete(n.ID); err != nil {
			return nil, err
		}
		return map[string]int{"cleared": 1}, nil
	})

	w.Bus.Handle(MessageCleanupNotifications, func(ctx context.Context, payload json.RawMessage) (any, error) {
		if w.notifications == nil {
			return nil, errNoNotifications
		}
		// Message options overlay the boot config; absent fields keep
		// their boot values, and legacy aliases are accepted.
		cfg := w.cleanupCfg
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &cfg); err != nil {
				return nil, err
			}
		}
		removed := w.notifications.Cleanup(&cfg, time.Now())
		return map[string]int{"removed": removed}, nil
	})
}
