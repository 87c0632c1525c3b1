package permission

import (
	"context"
	"time"

	"github.com/tempoapp/tempo-worker/internal/conf"
	"github.com/tempoapp/tempo-worker/internal/datastore/v2/entities"
	"github.com/tempoapp/tempo-worker/internal/datastore/v2/repository"
	"github.com/tempoapp/tempo-worker/internal/errors"
	"github.com/tempoapp/tempo-worker/internal/logger"
)

// Step is one state of the permission flow.
type Step string

const (
	StepNotStarted          Step = "NOT_STARTED"
	StepPermissionRequested Step = "PERMISSION_REQUESTED"
	StepPermissionGranted   Step = "PERMISSION_GRANTED"
	StepTokenRequested      Step = "TOKEN_REQUESTED"
	StepTokenSaved          Step = "TOKEN_SAVED"
	// StepFailed is absorbing: a flow that reaches it stays there until
	// reset.
	StepFailed Step = "FAILED"
)

// Failure reasons recorded with StepFailed. A prompt timeout is a
// request failure, not a denial.
const (
	ReasonPermissionDenied        = "PERMISSION_DENIED"
	ReasonPermissionRequestFailed = "PERMISSION_REQUEST_FAILED"
	ReasonRegistrationFailed      = "REGISTRATION_FAILED"
	ReasonTokenRequestFailed      = "TOKEN_REQUEST_FAILED"
	ReasonTokenSaveFailed         = "TOKEN_SAVE_FAILED"
)

// PermissionResult is the browser's answer to the permission prompt.
type PermissionResult string

const (
	PermissionGranted PermissionResult = "granted"
	PermissionDenied  PermissionResult = "denied"
	PermissionDefault PermissionResult = "default"
)

// Platform is the browser messaging surface the flow drives.
type Platform interface {
	// RequestPermission shows the permission prompt.
	RequestPermission(ctx context.Context) (PermissionResult, error)
	// ConfirmRegistration returns the active worker registration scope,
	// creating one if none exists. Idempotent.
	ConfirmRegistration(ctx context.Context) (string, error)
}

// TokenSource acquires a push token against a confirmed registration.
// Transient failures carry CodeTokenRequestFailed or CodeNetworkError.
type TokenSource interface {
	RequestToken(ctx context.Context, userID, registration string) (string, error)
}

// TokenSaver persists an acquired token for a user.
type TokenSaver interface {
	SaveToken(ctx context.Context, callerUID, userID, token, deviceClass string) error
}

// Request identifies one client's run through the flow.
type Request struct {
	ClientID    string
	UserID      string
	DeviceClass string
	UserAgent   string
	IOSVersion  string
	IsPWA       bool
}

// Outcome reports where a flow run ended.
type Outcome struct {
	Step     Step
	Reason   string
	Token    string
	Attempts int
}

// Flow runs the permission state machine. It is not reentrant per
// client: two concurrent runs for the same client id race on the
// persisted flow state.
type Flow struct {
	repo     repository.PermissionRepository
	platform Platform
	tokens   TokenSource
	saver    TokenSaver
	settings conf.PermissionSettings
	log      logger.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewFlow creates a Flow.
func NewFlow(
	repo repository.PermissionRepository,
	platform Platform,
	tokens TokenSource,
	saver TokenSaver,
	settings conf.PermissionSettings,
	log logger.Logger,
) *Flow {
	if log == nil {
		log = logger.Default()
	}
	return &Flow{
		repo:     repo,
		platform: platform,
		tokens:   tokens,
		saver:    saver,
		settings: settings,
		log:      log,
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

// Status returns the client's last persisted step, or StepNotStarted
// when the client has never run the flow.
func (f *Flow) Status(ctx context.Context, clientID string) (Step, string, error) {
	state, err := f.repo.GetFlowState(ctx, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrFlowStateNotFound) {
			return StepNotStarted, "", nil
		}
		return "", "", err
	}
	return Step(state.Step), state.Reason, nil
}

// Reset clears the client's persisted flow state, allowing a rerun
// after StepFailed.
func (f *Flow) Reset(ctx context.Context, clientID string) error {
	return f.repo.ClearFlowState(ctx, clientID)
}

// Run drives one client through the flow. Each step is persisted before
// the step's work proceeds, so a crash mid-flow leaves the last known
// step behind. The returned Outcome mirrors the persisted end state;
// the error is non-nil only for storage failures, not flow failures.
func (f *Flow) Run(ctx context.Context, req Request) (*Outcome, error) {
	profile := f.settings.Profile(req.DeviceClass)

	// Browsers silently reject prompts fired too soon after the user
	// gesture, so wait out the settle delay first.
	if err := f.sleep(ctx, profile.PrePermissionDelay.Std()); err != nil {
		return nil, err
	}

	if err := f.persist(ctx, req.ClientID, StepPermissionRequested, ""); err != nil {
		return nil, err
	}
	result, err := f.requestPermission(ctx)
	if err != nil {
		f.record(ctx, req, ReasonPermissionRequestFailed, string(result), false)
		return f.fail(ctx, req.ClientID, ReasonPermissionRequestFailed)
	}
	if result != PermissionGranted {
		f.record(ctx, req, ReasonPermissionDenied, string(result), false)
		return f.fail(ctx, req.ClientID, ReasonPermissionDenied)
	}

	if err := f.persist(ctx, req.ClientID, StepPermissionGranted, ""); err != nil {
		return nil, err
	}
	if err := f.sleep(ctx, profile.PostPermissionDelay.Std()); err != nil {
		return nil, err
	}

	regCtx, cancel := context.WithTimeout(ctx, timeoutOr(f.settings.RegistrationTimeout.Std(), 10*time.Second))
	registration, err := f.platform.ConfirmRegistration(regCtx)
	cancel()
	if err != nil {
		f.record(ctx, req, ReasonRegistrationFailed, string(PermissionGranted), false)
		return f.fail(ctx, req.ClientID, ReasonRegistrationFailed)
	}

	if err := f.persist(ctx, req.ClientID, StepTokenRequested, ""); err != nil {
		return nil, err
	}
	policy := RetryPolicy{
		MaxAttempts: profile.TokenMaxAttempts,
		ShouldRetry: DefaultShouldRetry,
		Backoff:     LinearBackoff(profile.TokenBackoff.Std()),
	}
	token, attempts, err := withRetry(ctx, policy,
		func(ctx context.Context, _ int) (string, error) {
			return f.tokens.RequestToken(ctx, req.UserID, registration)
		},
		func(_ int, attemptErr error) {
			if attemptErr != nil {
				f.record(ctx, req, ReasonTokenRequestFailed, string(PermissionGranted), false)
			}
		})
	if err != nil {
		outcome, failErr := f.fail(ctx, req.ClientID, ReasonTokenRequestFailed)
		if outcome != nil {
			outcome.Attempts = attempts
		}
		return outcome, failErr
	}

	if err := f.saver.SaveToken(ctx, req.UserID, req.UserID, token, req.DeviceClass); err != nil {
		f.record(ctx, req, ReasonTokenSaveFailed, string(PermissionGranted), true)
		outcome, failErr := f.fail(ctx, req.ClientID, ReasonTokenSaveFailed)
		if outcome != nil {
			outcome.Attempts = attempts
		}
		return outcome, failErr
	}

	if err := f.persist(ctx, req.ClientID, StepTokenSaved, ""); err != nil {
		return nil, err
	}
	f.record(ctx, req, string(StepTokenSaved), string(PermissionGranted), true)
	f.log.Info("permission flow completed",
		logger.String("client_id", req.ClientID),
		logger.String("device_class", req.DeviceClass),
		logger.Int("token_attempts", attempts))
	return &Outcome{Step: StepTokenSaved, Token: token, Attempts: attempts}, nil
}

// requestPermission wraps the prompt in the configured timeout. A
// timeout is a request failure, never treated as a denial.
func (f *Flow) requestPermission(ctx context.Context) (PermissionResult, error) {
	promptCtx, cancel := context.WithTimeout(ctx, timeoutOr(f.settings.PromptTimeout.Std(), 15*time.Second))
	defer cancel()
	result, err := f.platform.RequestPermission(promptCtx)
	if err != nil {
		return result, err
	}
	if promptCtx.Err() != nil {
		return result, promptCtx.Err()
	}
	return result, nil
}

// timeoutOr substitutes a fallback for unset timeouts.
func timeoutOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (f *Flow) persist(ctx context.Context, clientID string, step Step, reason string) error {
	err := f.repo.SaveFlowState(ctx, &entities.PermissionFlowState{
		ClientID: clientID,
		Step:     string(step),
		Reason:   reason,
	})
	if err != nil {
		return errors.New(err).
			Component("permission").
			Category(errors.CategoryState).
			Context("step", string(step)).
			Build()
	}
	return nil
}

func (f *Flow) fail(ctx context.Context, clientID, reason string) (*Outcome, error) {
	if err := f.persist(ctx, clientID, StepFailed, reason); err != nil {
		return nil, err
	}
	f.log.Warn("permission flow failed",
		logger.String("client_id", clientID),
		logger.String("reason", reason))
	return &Outcome{Step: StepFailed, Reason: reason}, nil
}

// record appends one diagnostics history item. History failures are
// logged and ignored; the ring never gates the flow itself.
func (f *Flow) record(ctx context.Context, req Request, result, browserState string, tokenObtained bool) {
	err := f.repo.AppendHistory(ctx, &entities.PermissionHistoryItem{
		ClientID:      req.ClientID,
		Timestamp:     f.now(),
		Result:        result,
		BrowserState:  browserState,
		TokenObtained: tokenObtained,
		UserAgent:     req.UserAgent,
		IOSVersion:    req.IOSVersion,
		IsPWA:         req.IsPWA,
	})
	if err != nil {
		f.log.Warn("appending permission history", logger.Error(err))
	}
}
