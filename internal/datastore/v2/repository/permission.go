package repository

import (
	"context"

	"github.com/tempoapp/tempo-worker/internal/datastore/v2/entities"
)

// historyCap is the number of permission history items retained per
// client. Appends beyond the cap evict the oldest entries.
const historyCap = 50

// PermissionRepository persists permission flow state and the diagnostics
// history ring.
type PermissionRepository interface {
	// Flow state
	GetFlowState(ctx context.Context, clientID string) (*entities.PermissionFlowState, error)
	SaveFlowState(ctx context.Context, state *entities.PermissionFlowState) error
	ClearFlowState(ctx context.Context, clientID string) error

	// History ring (diagnostics only, never read by flow logic)
	AppendHistory(ctx context.Context, item *entities.PermissionHistoryItem) error
	ListHistory(ctx context.Context, clientID string, limit int) ([]entities.PermissionHistoryItem, error)
}
