package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tempoapp/tempo-worker/internal/datastore/v2/entities"
	"github.com/tempoapp/tempo-worker/internal/errors"
)

// userRepository implements UserRepository.
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// GetUser returns a user with its token set preloaded.
// Returns ErrUserNotFound if the UID does not exist.
func (r *userRepository) GetUser(ctx context.Context, uid string) (*entities.User, error) {
	var user entities.User
	if err := r.db.WithContext(ctx).Preload("Tokens").First(&user, "uid = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", uid, err)
	}
	return &user, nil
}

// EnsureUser creates the user record with default notification settings
// if it does not exist yet.
func (r *userRepository) EnsureUser(ctx context.Context, uid string) (*entities.User, error) {
	user, err := r.GetUser(ctx, uid)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	created := &entities.User{
		UID:         uid,
		PushEnabled: true,
	}
	if err := r.db.WithContext(ctx).Create(created).Error; err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", uid, err)
	}
	return created, nil
}

// UpsertToken adds a token to the user's token set, refreshing its
// last-seen time on conflict.
func (r *userRepository) UpsertToken(ctx context.Context, uid, token, deviceClass string) error {
	record := entities.PushToken{
		UserUID:     uid,
		Token:       token,
		DeviceClass: deviceClass,
		LastSeenAt:  time.Now(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_uid"}, {Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"device_class", "last_seen_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert token for user %s: %w", uid, err)
	}
	return nil
}

// RemoveToken removes one token from the user's token set.
func (r *userRepository) RemoveToken(ctx context.Context, uid, token string) error {
	result := r.db.WithContext(ctx).
		Where("user_uid = ? AND token = ?", uid, token).
		Delete(&entities.PushToken{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove token for user %s: %w", uid, result.Error)
	}
	return nil
}

// ListTokens returns the user's token set.
func (r *userRepository) ListTokens(ctx context.Context, uid string) ([]entities.PushToken, error) {
	var tokens []entities.PushToken
	if err := r.db.WithContext(ctx).Where("user_uid = ?", uid).Order("id ASC").Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("failed to list tokens for user %s: %w", uid, err)
	}
	return tokens, nil
}

// UsersWithToken returns every UID referencing the token.
func (r *userRepository) UsersWithToken(ctx context.Context, token string) ([]string, error) {
	var uids []string
	err := r.db.WithContext(ctx).Model(&entities.PushToken{}).
		Where("token = ?", token).
		Distinct().
		Pluck("user_uid", &uids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find users with token: %w", err)
	}
	return uids, nil
}

// DeleteTokenForUser removes the token from one user's set.
func (r *userRepository) DeleteTokenForUser(ctx context.Context, uid, token string) error {
	return r.RemoveToken(ctx, uid, token)
}
