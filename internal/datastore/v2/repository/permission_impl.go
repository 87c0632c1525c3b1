package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tempoapp/tempo-worker/internal/datastore/v2/entities"
	"github.com/tempoapp/tempo-worker/internal/errors"
)

// permissionRepository implements PermissionRepository.
type permissionRepository struct {
	db *gorm.DB
}

// NewPermissionRepository creates a new PermissionRepository.
func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

// GetFlowState returns the persisted flow step for one client.
// Returns ErrFlowStateNotFound if the client has never started a flow.
func (r *permissionRepository) GetFlowState(ctx context.Context, clientID string) (*entities.PermissionFlowState, error) {
	var state entities.PermissionFlowState
	if err := r.db.WithContext(ctx).First(&state, "client_id = ?", clientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFlowStateNotFound
		}
		return nil, fmt.Errorf("failed to get flow state for %s: %w", clientID, err)
	}
	return &state, nil
}

// SaveFlowState upserts the flow step for one client. Last writer wins;
// the flow is user-driven and rarely concurrent in practice.
func (r *permissionRepository) SaveFlowState(ctx context.Context, state *entities.PermissionFlowState) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"step", "reason", "updated_at"}),
	}).Create(state).Error
	if err != nil {
		return fmt.Errorf("failed to save flow state for %s: %w", state.ClientID, err)
	}
	return nil
}

// ClearFlowState removes a client's persisted flow step.
func (r *permissionRepository) ClearFlowState(ctx context.Context, clientID string) error {
	if err := r.db.WithContext(ctx).Delete(&entities.PermissionFlowState{}, "client_id = ?", clientID).Error; err != nil {
		return fmt.Errorf("failed to clear flow state for %s: %w", clientID, err)
	}
	return nil
}

// AppendHistory inserts one history item and evicts the oldest entries
// beyond the per-client cap.
func (r *permissionRepository) AppendHistory(ctx context.Context, item *entities.PermissionHistoryItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(item).Error; err != nil {
			return fmt.Errorf("failed to append permission history: %w", err)
		}
		// Ring-buffer eviction: delete everything older than the newest
		// historyCap rows for this client.
		subQuery := tx.Model(&entities.PermissionHistoryItem{}).
			Select("id").
			Where("client_id = ?", item.ClientID).
			Order("timestamp DESC, id DESC").
			Limit(historyCap)
		err := tx.Where("client_id = ? AND id NOT IN (?)", item.ClientID, subQuery).
			Delete(&entities.PermissionHistoryItem{}).Error
		if err != nil {
			return fmt.Errorf("failed to trim permission history: %w", err)
		}
		return nil
	})
}

// ListHistory returns a client's history, most recent first.
func (r *permissionRepository) ListHistory(ctx context.Context, clientID string, limit int) ([]entities.PermissionHistoryItem, error) {
	if limit <= 0 || limit > historyCap {
		limit = historyCap
	}
	var items []entities.PermissionHistoryItem
	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list permission history: %w", err)
	}
	return items, nil
}
