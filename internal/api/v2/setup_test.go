package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/tempoapp/tempo-worker/internal/cache"
	"github.com/tempoapp/tempo-worker/internal/conf"
	"github.com/tempoapp/tempo-worker/internal/datastore/v2/entities"
	"github.com/tempoapp/tempo-worker/internal/datastore/v2/repository"
	"github.com/tempoapp/tempo-worker/internal/logger"
	"github.com/tempoapp/tempo-worker/internal/notification"
	"github.com/tempoapp/tempo-worker/internal/permission"
	"github.com/tempoapp/tempo-worker/internal/push"
	"github.com/tempoapp/tempo-worker/internal/token"
	"github.com/tempoapp/tempo-worker/internal/worker"
)

const testUpstream = "https://app.example.com"

// testEnv bundles the wired controller with its backing stores.
type testEnv struct {
	controller    *Controller
	echo          *echo.Echo
	db            *gorm.DB
	transport     *httpmock.MockTransport
	notifications *notification.Service
	reminders     repository.ReminderRepository
	users         repository.UserRepository
}

// grantingPlatform always grants the permission prompt.
type grantingPlatform struct{}

func (grantingPlatform) RequestPermission(ctx context.Context) (permission.PermissionResult, error) {
	return permission.PermissionGranted, nil
}

func (grantingPlatform) ConfirmRegistration(ctx context.Context) (string, error) {
	return "/scope", nil
}

// staticTokenAPI returns a fixed platform token.
type staticTokenAPI struct{}

func (staticTokenAPI) Token(ctx context.Context, publicKey, registration string) (string, error) {
	return "tok-platform", nil
}

func setupTestController(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_foreign_keys=ON"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(
		&entities.User{},
		&entities.PushToken{},
		&entities.Reminder{},
		&entities.PermissionFlowState{},
		&entities.PermissionHistoryItem{},
		&entities.SyncMutation{},
	))

	log := logger.Default()
	transport := httpmock.NewMockTransport()
	client := &http.Client{Transport: transport}

	settings := &conf.Settings{}
	settings.Push.SnoozeMinutesDefault = 30
	settings.Permission = conf.PermissionSettings{
		PromptTimeout:       conf.Duration(time.Second),
		RegistrationTimeout: conf.Duration(time.Second),
		Profiles: map[string]conf.PermissionProfile{
			conf.DeviceClassDefault: {TokenMaxAttempts: 2, TokenBackoff: conf.Duration(time.Millisecond)},
		},
	}

	store := cache.NewStore(log, nil)
	classifier := worker.NewClassifier("/firebase-messaging-sw.js", []string{"/api/"})
	configState := worker.NewConfigState(worker.Config{
		Enabled: true,
		Expiration: map[string]conf.Duration{
			conf.CacheCategoryStatic:     conf.Duration(time.Hour),
			conf.CacheCategoryNavigation: conf.Duration(time.Hour),
		},
	})
	interceptor, err := worker.NewInterceptor(classifier, store, configState, client, testUpstream, "tempo-static-v1", log)
	require.NoError(t, err)
	assets := worker.NewAssetManager(store, interceptor, "v1", []string{"/"}, log)
	bus := worker.NewBus(log)
	syncRepo := repository.NewSyncRepository(db)
	syncer, err := worker.NewSyncer(syncRepo, client, testUpstream, bus, log)
	require.NoError(t, err)

	notifications := notification.NewService(nil)
	t.Cleanup(notifications.Stop)

	w := worker.New("v1", classifier, store, configState, interceptor, assets, bus, syncer,
		notifications, notification.CleanupConfig{}, log)

	users := repository.NewUserRepository(db)
	reminders := repository.NewReminderRepository(db)
	permissions := repository.NewPermissionRepository(db)

	tokens := token.NewManager(staticTokenAPI{}, users, "vapid-key", log)
	flow := permission.NewFlow(permissions, grantingPlatform{}, tokens, tokens, settings.Permission, log)

	clicks := push.NewClickHandler(notifications, worker.NewWindowRegistry(bus), client,
		testUpstream+"/handleNotificationAction", settings.Worker.DashboardPath,
		settings.Push.SnoozeMinutesDefault, nil, log)

	e := echo.New()
	controller := New(context.Background(), e, settings, w, flow, tokens, reminders, permissions,
		notifications, clicks, nil, nil, log)

	return &testEnv{
		controller:    controller,
		echo:          e,
		db:            db,
		transport:     transport,
		notifications: notifications,
		reminders:     reminders,
		users:         users,
	}
}
