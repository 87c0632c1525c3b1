package permission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/tempoapp/tempo-worker/internal/conf"
	"github.com/tempoapp/tempo-worker/internal/datastore/v2/entities"
	"github.com/tempoapp/tempo-worker/internal/datastore/v2/repository"
	"github.com/tempoapp/tempo-worker/internal/logger"
)

func setupTestRepo(t *testing.T) repository.PermissionRepository {
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
		&entities.PermissionFlowState{},
		&entities.PermissionHistoryItem{},
	))
	return repository.NewPermissionRepository(db)
}

// fakePlatform scripts the browser side of the flow.
type fakePlatform struct {
	result     PermissionResult
	promptErr  error
	promptHang bool
	regErr     error
	regCalls   int
}

func (p *fakePlatform) RequestPermission(ctx context.Context) (PermissionResult, error) {
	if p.promptHang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return p.result, p.promptErr
}

func (p *fakePlatform) ConfirmRegistration(ctx context.Context) (string, error) {
	p.regCalls++
	if p.regErr != nil {
		return "", p.regErr
	}
	return "/scope", nil
}

// fakeTokens fails a scripted number of times before succeeding.
type fakeTokens struct {
	failures int
	failWith string
	calls    int
}

func (s *fakeTokens) RequestToken(ctx context.Context, userID, registration string) (string, error) {
	s.calls++
	if s.calls <= s.failures {
		return "", &CodedError{Code: s.failWith}
	}
	return "tok-" + userID, nil
}

type fakeSaver struct {
	saved map[string]string
	err   error
}

func (s *fakeSaver) SaveToken(ctx context.Context, callerUID, userID, token, deviceClass string) error {
	if s.err != nil {
		return s.err
	}
	if s.saved == nil {
		s.saved = make(map[string]string)
	}
	s.saved[userID] = token
	return nil
}

func testSettings() conf.PermissionSettings {
	return conf.PermissionSettings{
		PromptTimeout:       conf.Duration(time.Second),
		RegistrationTimeout: conf.Duration(time.Second),
		Profiles: map[string]conf.PermissionProfile{
			conf.DeviceClassDefault: {
				TokenMaxAttempts: 2,
				TokenBackoff:     conf.Duration(time.Millisecond),
			},
			conf.DeviceClassIOS: {
				PrePermissionDelay:  conf.Duration(time.Millisecond),
				PostPermissionDelay: conf.Duration(time.Millisecond),
				TokenMaxAttempts:    3,
				TokenBackoff:        conf.Duration(time.Millisecond),
			},
		},
	}
}

func newTestFlow(t *testing.T, platform Platform, tokens TokenSource, saver TokenSaver) (*Flow, repository.PermissionRepository) {
	t.Helper()
	repo := setupTestRepo(t)
	flow := NewFlow(repo, platform, tokens, saver, testSettings(), logger.Default())
	return flow, repo
}

func TestFlowHappyPath(t *testing.T) {
	platform := &fakePlatform{result: PermissionGranted}
	tokens := &fakeTokens{}
	saver := &fakeSaver{}
	flow, repo := newTestFlow(t, platform, tokens, saver)

	req := Request{ClientID: "c1", UserID: "user-1", DeviceClass: conf.DeviceClassDefault}
	outcome, err := flow.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StepTokenSaved, outcome.Step)
	assert.Equal(t, "tok-user-1", outcome.Token)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, "tok-user-1", saver.saved["user-1"])
	assert.Equal(t, 1, platform.regCalls)

	step, _, err := flow.Status(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, StepTokenSaved, step)

	history, err := repo.ListHistory(context.Background(), "c1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, string(StepTokenSaved), history[0].Result)
	assert.True(t, history[0].TokenObtained)
}

func TestFlowDenied(t *testing.T) {
	flow, _ := newTestFlow(t, &fakePlatform{result: PermissionDenied}, &fakeTokens{}, &fakeSaver{})

	outcome, err := flow.Run(context.Background(), Request{ClientID: "c1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, StepFailed, outcome.Step)
	assert.Equal(t, ReasonPermissionDenied, outcome.Reason)

	step, reason, err := flow.Status(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, StepFailed, step)
	assert.Equal(t, ReasonPermissionDenied, reason)
}

func TestFlowPromptTimeoutIsNotDenied(t *testing.T) {
	settings := testSettings()
	settings.PromptTimeout = conf.Duration(20 * time.Millisecond)
	repo := setupTestRepo(t)
	flow := NewFlow(repo, &fakePlatform{promptHang: true}, &fakeTokens{}, &fakeSaver{}, settings, logger.Default())

	outcome, err := flow.Run(context.Background(), Request{ClientID: "c1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, StepFailed, outcome.Step)
	assert.Equal(t, ReasonPermissionRequestFailed, outcome.Reason)
	assert.NotEqual(t, ReasonPermissionDenied, outcome.Reason)
}

func TestFlowRetriesTransientTokenErrors(t *testing.T) {
	tokens := &fakeTokens{failures: 2, failWith: CodeTokenRequestFailed}
	flow, repo := newTestFlow(t, &fakePlatform{result: PermissionGranted}, tokens, &fakeSaver{})

	req := Request{ClientID: "c1", UserID: "user-1", DeviceClass: conf.DeviceClassIOS}
	outcome, err := flow.Run(context.Background(), req)
	require.NoError(t, err)

	// The iOS profile allows three attempts, so two transient failures
	// still produce a token.
	assert.Equal(t, StepTokenSaved, outcome.Step)
	assert.Equal(t, 3, outcome.Attempts)

	// One history entry per failed attempt plus the success entry.
	history, err := repo.ListHistory(context.Background(), "c1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestFlowExhaustsTokenAttempts(t *testing.T) {
	tokens := &fakeTokens{failures: 5, failWith: CodeNetworkError}
	flow, _ := newTestFlow(t, &fakePlatform{result: PermissionGranted}, tokens, &fakeSaver{})

	outcome, err := flow.Run(context.Background(), Request{ClientID: "c1", UserID: "user-1", DeviceClass: conf.DeviceClassDefault})
	require.NoError(t, err)
	assert.Equal(t, StepFailed, outcome.Step)
	assert.Equal(t, ReasonTokenRequestFailed, outcome.Reason)
	assert.Equal(t, 2, tokens.calls, "default profile allows two attempts")
}

func TestFlowDoesNotRetryPermanentTokenErrors(t *testing.T) {
	tokens := &fakeTokens{failures: 5, failWith: CodePermissionBlocked}
	flow, _ := newTestFlow(t, &fakePlatform{result: PermissionGranted}, tokens, &fakeSaver{})

	outcome, err := flow.Run(context.Background(), Request{ClientID: "c1", UserID: "user-1", DeviceClass: conf.DeviceClassIOS})
	require.NoError(t, err)
	assert.Equal(t, StepFailed, outcome.Step)
	assert.Equal(t, 1, tokens.calls, "permanent errors fail immediately")
}

func TestFlowRegistrationFailure(t *testing.T) {
	platform := &fakePlatform{result: PermissionGranted, regErr: context.DeadlineExceeded}
	flow, _ := newTestFlow(t, platform, &fakeTokens{}, &fakeSaver{})

	outcome, err := flow.Run(context.Background(), Request{ClientID: "c1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, StepFailed, outcome.Step)
	assert.Equal(t, ReasonRegistrationFailed, outcome.Reason)
}

func TestFlowSaveFailure(t *testing.T) {
	saver := &fakeSaver{err: assert.AnError}
	flow, _ := newTestFlow(t, &fakePlatform{result: PermissionGranted}, &fakeTokens{}, saver)

	outcome, err := flow.Run(context.Background(), Request{ClientID: "c1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, StepFailed, outcome.Step)
	assert.Equal(t, ReasonTokenSaveFailed, outcome.Reason)
}

func TestFlowStatusAndReset(t *testing.T) {
	flow, _ := newTestFlow(t, &fakePlatform{result: PermissionDenied}, &fakeTokens{}, &fakeSaver{})

	step, _, err := flow.Status(context.Background(), "fresh-client")
	require.NoError(t, err)
	assert.Equal(t, StepNotStarted, step)

	_, err = flow.Run(context.Background(), Request{ClientID: "c1", UserID: "user-1"})
	require.NoError(t, err)

	require.NoError(t, flow.Reset(context.Background(), "c1"))
	step, _, err = flow.Status(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, StepNotStarted, step)
}
