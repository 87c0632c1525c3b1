package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	api "github.com/tempoapp/tempo-worker/internal/api/v2"
	"github.com/tempoapp/tempo-worker/internal/cache"
	"github.com/tempoapp/tempo-worker/internal/conf"
	datastore "github.com/tempoapp/tempo-worker/internal/datastore/v2"
	"github.com/tempoapp/tempo-worker/internal/datastore/v2/repository"
	"github.com/tempoapp/tempo-worker/internal/logger"
	"github.com/tempoapp/tempo-worker/internal/notification"
	"github.com/tempoapp/tempo-worker/internal/observability/metrics"
	"github.com/tempoapp/tempo-worker/internal/permission"
	"github.com/tempoapp/tempo-worker/internal/platform"
	"github.com/tempoapp/tempo-worker/internal/push"
	"github.com/tempoapp/tempo-worker/internal/token"
	"github.com/tempoapp/tempo-worker/internal/worker"
)

// shutdownTimeout bounds how long in-flight requests get to finish.
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the edge worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	settings, err := conf.Load(cfgFile)
	if err != nil {
		return err
	}
	log := logger.NewSlogLogger(os.Stderr, logger.ParseLevel(settings.Main.LogLevel), nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := datastore.Open(settings.Datastore.Path)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	upstreamClient := &http.Client{Timeout: settings.Upstream.Timeout.Std()}

	store := cache.NewStore(log, m.Cache)
	classifier := worker.NewClassifier(settings.Worker.ScriptPath, settings.Worker.NeverCache)
	configState := worker.NewConfigState(worker.ConfigFromSettings(&settings.Cache))
	staticName := worker.StaticCacheName(settings.Cache.Version)
	interceptor, err := worker.NewInterceptor(classifier, store, configState,
		upstreamClient, settings.Upstream.BaseURL, staticName, log)
	if err != nil {
		return err
	}
	assets := worker.NewAssetManager(store, interceptor, settings.Cache.Version, settings.Cache.Precache, log)
	bus := worker.NewBus(log)

	syncRepo := repository.NewSyncRepository(db)
	syncer, err := worker.NewSyncer(syncRepo, upstreamClient, settings.Upstream.BaseURL, bus, log)
	if err != nil {
		return err
	}

	notification.Initialize(&notification.ServiceConfig{})
	notifications := notification.GetService()
	defer notifications.Stop()

	cleanupCfg := notification.CleanupConfigFromSettings(&settings.Notification.Cleanup)
	stopCleanup := notifications.StartCleanup(cleanupCfg, log)
	defer stopCleanup()

	if settings.Notification.Email.Enabled && settings.Notification.Email.URL != "" {
		sender, err := notification.NewEmailSender(settings.Notification.Email.URL, log)
		if err != nil {
			return err
		}
		go forwardEmail(ctx, notifications, sender, log)
	}

	w := worker.New(settings.Cache.Version, classifier, store, configState,
		interceptor, assets, bus, syncer, notifications, cleanupCfg, log)
	if err := w.Install(ctx); err != nil {
		log.Warn("precaching app shell failed, continuing without it", logger.Error(err))
	}
	w.Activate(ctx)
	w.Start()
	defer w.Stop()

	users := repository.NewUserRepository(db)
	reminders := repository.NewReminderRepository(db)
	permissions := repository.NewPermissionRepository(db)

	messaging, err := platform.NewMessaging(upstreamClient, settings.Upstream.BaseURL, platform.Endpoints{
		Prompt:       settings.Push.PromptEndpoint,
		Registration: settings.Push.RegistrationEndpoint,
		Token:        settings.Push.TokenEndpoint,
	}, log)
	if err != nil {
		return err
	}

	tokens := token.NewManager(messaging, users, settings.Push.VAPIDPublicKey, log)
	flow := permission.NewFlow(permissions, messaging, tokens, tokens, settings.Permission, log)

	clicks := push.NewClickHandler(notifications, worker.NewWindowRegistry(bus), upstreamClient,
		"http://127.0.0.1:"+settings.WebServer.Port+settings.Push.ActionEndpoint,
		settings.Worker.DashboardPath, settings.Push.SnoozeMinutesDefault, m.Push, log)

	e := echo.New()
	e.HideBanner = true
	e.Debug = settings.WebServer.Debug
	api.New(ctx, e, settings, w, flow, tokens, reminders, permissions,
		notifications, clicks, m, registry, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(":" + settings.WebServer.Port)
	}()
	log.Info("edge worker listening",
		logger.String("port", settings.WebServer.Port),
		logger.String("version", settings.Cache.Version))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// forwardEmail relays high priority notifications to the email sender
// until ctx is cancelled or the service stops.
func forwardEmail(ctx context.Context, svc *notification.Service, sender *notification.EmailSender, log logger.Logger) {
	ch, subCtx := svc.Subscribe()
	defer svc.Unsubscribe(ch)

	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			if n.Priority != notification.PriorityHigh {
				continue
			}
			if err := sender.Send(n); err != nil {
				log.Warn("email delivery failed",
					logger.String("notification_id", n.ID),
					logger.Error(err))
			}
		case <-subCtx.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}
