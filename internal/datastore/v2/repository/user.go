package repository

import (
	"context"

	"github.com/tempoapp/tempo-worker/internal/datastore/v2/entities"
)

// UserRepository handles user records and their push token sets.
type UserRepository interface {
	GetUser(ctx context.Context, uid string) (*entities.User, error)
	// EnsureUser creates the user with default notification settings if
	// absent and returns the stored record either way.
	EnsureUser(ctx context.Context, uid string) (*entities.User, error)

	// Token set operations
	UpsertToken(ctx context.Context, uid, token, deviceClass string) error
	RemoveToken(ctx context.Context, uid, token string) error
	ListTokens(ctx context.Context, uid string) ([]entities.PushToken, error)

	// UsersWithToken returns the UIDs of every user whose token set
	// contains the given token. Used by invalid-token pruning, which is
	// not scoped to one user.
	UsersWithToken(ctx context.Context, token string) ([]string, error)
	DeleteTokenForUser(ctx context.Context, uid, token string) error
}
