package token

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/tempoapp/tempo-worker/internal/datastore/v2/entities"
	"github.com/tempoapp/tempo-worker/internal/datastore/v2/repository"
	"github.com/tempoapp/tempo-worker/internal/logger"
)

type fakeAPI struct {
	token string
	err   error
	calls int
}

func (a *fakeAPI) Token(ctx context.Context, publicKey, registration string) (string, error) {
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	return a.token, nil
}

func setupUsers(t *testing.T) repository.UserRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_foreign_keys=ON"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&entities.User{}, &entities.PushToken{}))
	return repository.NewUserRepository(db)
}

func newTestManager(t *testing.T, api *fakeAPI) (*Manager, repository.UserRepository) {
	t.Helper()
	users := setupUsers(t)
	return NewManager(api, users, "vapid-public-key", logger.Default()), users
}

func TestRequestTokenRequiresUser(t *testing.T) {
	m, _ := newTestManager(t, &fakeAPI{token: "tok-1"})

	_, err := m.RequestToken(context.Background(), "", "/scope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authenticated user")
}

func TestRequestTokenRejectsEmptyToken(t *testing.T) {
	m, _ := newTestManager(t, &fakeAPI{token: ""})

	_, err := m.RequestToken(context.Background(), "user-1", "/scope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty token")
}

func TestRequestTokenReturnsPlatformToken(t *testing.T) {
	api := &fakeAPI{token: "tok-1"}
	m, _ := newTestManager(t, api)

	token, err := m.RequestToken(context.Background(), "user-1", "/scope")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, 1, api.calls)
}

func TestSaveTokenRejectsCrossUserWrite(t *testing.T) {
	m, users := newTestManager(t, &fakeAPI{})

	err := m.SaveToken(context.Background(), "attacker", "victim", "tok-1", "default")
	require.Error(t, err)

	// Nothing was written, not even the user record.
	_, err = users.GetUser(context.Background(), "victim")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestSaveTokenCreatesUserWithDefaults(t *testing.T) {
	m, users := newTestManager(t, &fakeAPI{})

	require.NoError(t, m.SaveToken(context.Background(), "user-1", "user-1", "tok-1", "ios"))

	user, err := users.GetUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, user.PushEnabled)
	require.Len(t, user.Tokens, 1)
	assert.Equal(t, "tok-1", user.Tokens[0].Token)
	assert.Equal(t, "ios", user.Tokens[0].DeviceClass)
}

func TestSaveTokenIdempotent(t *testing.T) {
	m, users := newTestManager(t, &fakeAPI{})

	require.NoError(t, m.SaveToken(context.Background(), "user-1", "user-1", "tok-1", "default"))
	require.NoError(t, m.SaveToken(context.Background(), "user-1", "user-1", "tok-1", "default"))

	tokens, err := users.ListTokens(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestPruneInvalidTokensAcrossUsers(t *testing.T) {
	m, users := newTestManager(t, &fakeAPI{})
	ctx := context.Background()

	// tok-dead is shared by two users; tok-live must survive.
	require.NoError(t, m.SaveToken(ctx, "user-1", "user-1", "tok-dead", "default"))
	require.NoError(t, m.SaveToken(ctx, "user-1", "user-1", "tok-live", "default"))
	require.NoError(t, m.SaveToken(ctx, "user-2", "user-2", "tok-dead", "ios"))

	removed, err := m.PruneInvalidTokens(ctx, []string{"tok-dead"})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	tokens1, err := users.ListTokens(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, tokens1, 1)
	assert.Equal(t, "tok-live", tokens1[0].Token)

	tokens2, err := users.ListTokens(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, tokens2)
}

func TestPruneNoMatches(t *testing.T) {
	m, _ := newTestManager(t, &fakeAPI{})

	removed, err := m.PruneInvalidTokens(context.Background(), []string{"tok-unknown"})
	require.NoError(t, err)
	assert.Zero(t, removed)
}
