// Package token manages push token acquisition, persistence, and
// invalid-token pruning against the user store.
package token

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tempoapp/tempo-worker/internal/datastore/v2/repository"
	"github.com/tempoapp/tempo-worker/internal/errors"
	"github.com/tempoapp/tempo-worker/internal/logger"
)

// pruneConcurrency bounds parallel per-user updates during invalid-token
// cleanup.
const pruneConcurrency = 8

// PlatformAPI is the messaging platform's token endpoint.
type PlatformAPI interface {
	// Token acquires a push token bound to the given registration scope.
	Token(ctx context.Context, publicKey, registration string) (string, error)
}

// Manager acquires and persists push tokens.
type Manager struct {
	api       PlatformAPI
	users     repository.UserRepository
	publicKey string
	log       logger.Logger
}

// NewManager creates a Manager. publicKey is the VAPID public key
// presented to the platform token API.
func NewManager(api PlatformAPI, users repository.UserRepository, publicKey string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{api: api, users: users, publicKey: publicKey, log: log}
}

// RequestToken acquires a push token for an authenticated user. An
// empty user id fails immediately; an empty token from the platform is
// an error, never treated as "no permission".
func (m *Manager) RequestToken(ctx context.Context, userID, registration string) (string, error) {
	if userID == "" {
		return "", errors.Newf("token request without authenticated user").
			Component("token").
			Category(errors.CategoryAuth).
			Build()
	}
	token, err := m.api.Token(ctx, m.publicKey, registration)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errors.Newf("platform returned empty token").
			Component("token").
			Category(errors.CategoryState).
			Context("user_id", userID).
			Build()
	}
	return token, nil
}

// SaveToken upserts a token into the target user's token set, creating
// the user record with default notification settings if absent. The
// caller's authenticated UID must match the target user; a mismatch is
// rejected without touching the store.
func (m *Manager) SaveToken(ctx context.Context, callerUID, userID, token, deviceClass string) error {
	if callerUID == "" || callerUID != userID {
		m.log.Warn("rejecting cross-user token write",
			logger.String("caller_uid", callerUID),
			logger.String("target_uid", userID))
		return errors.Newf("caller uid does not match target user").
			Component("token").
			Category(errors.CategoryAuth).
			Context("target_uid", userID).
			Build()
	}
	if token == "" {
		return errors.Newf("refusing to save empty token").
			Component("token").
			Category(errors.CategoryValidation).
			Build()
	}
	if _, err := m.users.EnsureUser(ctx, userID); err != nil {
		return err
	}
	if err := m.users.UpsertToken(ctx, userID, token, deviceClass); err != nil {
		return err
	}
	m.log.Info("push token saved",
		logger.String("user_id", userID),
		logger.String("device_class", deviceClass))
	return nil
}

// RemoveToken deletes one token from a user's token set.
func (m *Manager) RemoveToken(ctx context.Context, userID, token string) error {
	return m.users.RemoveToken(ctx, userID, token)
}

// PruneInvalidTokens deletes dead tokens from every user that
// references them. The scan is not scoped to one user; per-user deletes
// run with bounded concurrency. Returns the number of deletions.
func (m *Manager) PruneInvalidTokens(ctx context.Context, invalid []string) (int, error) {
	type target struct {
		uid   string
		token string
	}
	var targets []target
	for _, token := range invalid {
		uids, err := m.users.UsersWithToken(ctx, token)
		if err != nil {
			return 0, err
		}
		for _, uid := range uids {
			targets = append(targets, target{uid: uid, token: token})
		}
	}

	var removed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pruneConcurrency)
	results := make([]bool, len(targets))
	for idx, tgt := range targets {
		g.Go(func() error {
			if err := m.users.DeleteTokenForUser(gctx, tgt.uid, tgt.token); err != nil {
				return err
			}
			results[idx] = true
			return nil
		})
	}
	err := g.Wait()
	for _, ok := range results {
		if ok {
			removed++
		}
	}
	if removed > 0 {
		m.log.Info("invalid push tokens pruned",
			logger.Int("tokens", len(invalid)),
			logger.Int64("removed", removed))
	}
	return int(removed), err
}
