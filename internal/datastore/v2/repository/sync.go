package repository

import (
	"context"

	"github.com/tempoapp/tempo-worker/internal/datastore/v2/entities"
)

// SyncRepository persists the offline mutation queue for background sync.
type SyncRepository interface {
	Enqueue(ctx context.Context, mutation *entities.SyncMutation) error
	ListPending(ctx context.Context, tag string) ([]entities.SyncMutation, error)
	Delete(ctx context.Context, id uint) error
	RecordFailure(ctx context.Context, id uint, reason string) error
}
