package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tempoapp/tempo-worker/internal/datastore/v2/entities"
)

// syncRepository implements SyncRepository.
type syncRepository struct {
	db *gorm.DB
}

// NewSyncRepository creates a new SyncRepository.
func NewSyncRepository(db *gorm.DB) SyncRepository {
	return &syncRepository{db: db}
}

// Enqueue adds a mutation to the queue.
func (r *syncRepository) Enqueue(ctx context.Context, mutation *entities.SyncMutation) error {
	if err := r.db.WithContext(ctx).Create(mutation).Error; err != nil {
		return fmt.Errorf("failed to enqueue sync mutation: %w", err)
	}
	return nil
}

// ListPending returns queued mutations for a tag, oldest first.
func (r *syncRepository) ListPending(ctx context.Context, tag string) ([]entities.SyncMutation, error) {
	var mutations []entities.SyncMutation
	if err := r.db.WithContext(ctx).Where("tag = ?", tag).Order("id ASC").Find(&mutations).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending mutations: %w", err)
	}
	return mutations, nil
}

// Delete removes a replayed mutation from the queue.
func (r *syncRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&entities.SyncMutation{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete sync mutation %d: %w", id, err)
	}
	return nil
}

// RecordFailure bumps the attempt counter and stores the failure reason,
// leaving the mutation queued for the next sync event.
func (r *syncRepository) RecordFailure(ctx context.Context, id uint, reason string) error {
	err := r.db.WithContext(ctx).Model(&entities.SyncMutation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record sync failure for %d: %w", id, err)
	}
	return nil
}
