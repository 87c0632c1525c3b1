// Package platform is the HTTP client for the external messaging
// service: the permission prompt, registration confirmation, and token
// endpoints driven by the permission flow.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/tempoapp/tempo-worker/internal/errors"
	"github.com/tempoapp/tempo-worker/internal/logger"
	"github.com/tempoapp/tempo-worker/internal/permission"
)

// Endpoints are the messaging service paths, resolved against the
// upstream base URL when relative.
type Endpoints struct {
	Prompt       string
	Registration string
	Token        string
}

// Messaging talks to the external messaging service. It implements both
// the permission flow's Platform and the token manager's PlatformAPI.
type Messaging struct {
	client    *http.Client
	baseURL   *url.URL
	endpoints Endpoints
	log       logger.Logger
}

// NewMessaging creates a Messaging client. base resolves relative
// endpoint paths.
func NewMessaging(client *http.Client, base string, endpoints Endpoints, log logger.Logger) (*Messaging, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, errors.Newf("parse messaging base url %q: %v", base, err).
			Component("platform").
			Category(errors.CategoryValidation).
			Build()
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.Default()
	}
	return &Messaging{client: client, baseURL: baseURL, endpoints: endpoints, log: log}, nil
}

func (m *Messaging) resolve(endpoint string) string {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return m.baseURL.ResolveReference(ref).String()
}

// RequestPermission asks the messaging service for the user's prompt
// answer.
func (m *Messaging) RequestPermission(ctx context.Context) (permission.PermissionResult, error) {
	var resp struct {
		Result string `json:"result"`
	}
	if err := m.postJSON(ctx, m.endpoints.Prompt, nil, &resp); err != nil {
		return "", err
	}
	switch result := permission.PermissionResult(resp.Result); result {
	case permission.PermissionGranted, permission.PermissionDenied, permission.PermissionDefault:
		return result, nil
	default:
		return "", errors.Newf("unexpected permission result %q", resp.Result).
			Component("platform").
			Category(errors.CategoryState).
			Build()
	}
}

// ConfirmRegistration confirms or creates the worker registration and
// returns its scope. Idempotent on the service side.
func (m *Messaging) ConfirmRegistration(ctx context.Context) (string, error) {
	var resp struct {
		Scope string `json:"scope"`
	}
	if err := m.postJSON(ctx, m.endpoints.Registration, nil, &resp); err != nil {
		return "", err
	}
	if resp.Scope == "" {
		return "", errors.Newf("registration confirmed without scope").
			Component("platform").
			Category(errors.CategoryState).
			Build()
	}
	return resp.Scope, nil
}

// Token acquires a push token. Network failures and service errors are
// wrapped with the flow's transient codes so the retry policy applies.
func (m *Messaging) Token(ctx context.Context, publicKey, registration string) (string, error) {
	req := map[string]string{
		"publicKey":    publicKey,
		"registration": registration,
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := m.postJSON(ctx, m.endpoints.Token, req, &resp); err != nil {
		m.log.Warn("token request failed", logger.Error(err))
		return "", &permission.CodedError{Code: tokenErrorCode(err), Err: err}
	}
	return resp.Token, nil
}

// tokenErrorCode maps a transport error to the flow's retry codes. A
// non-2xx service response is a token request failure, anything below
// that (DNS, connect, timeout) is a network error.
func tokenErrorCode(err error) string {
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return permission.CodeTokenRequestFailed
	}
	return permission.CodeNetworkError
}

// statusError is a non-2xx response from the messaging service.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return "messaging service returned status " + http.StatusText(e.status)
}

func (m *Messaging) postJSON(ctx context.Context, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.resolve(endpoint), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &statusError{status: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
