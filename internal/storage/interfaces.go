package storage

import (
	"context"

	"token-dashboard-sync/internal/domain"
)

// DefaultProfile is the profile used when none is configured.
const DefaultProfile = "default"

// LastViewedStore persists the contract address last shown in a detail view,
// so the view can be recovered when it is opened without an address.
type LastViewedStore interface {
	// Save records address as the last viewed token of profile, replacing any previous one.
	Save(ctx context.Context, profile, address string) error

	// Load returns the last viewed address of profile. Returns ErrNotFound if none was saved.
	Load(ctx context.Context, profile string) (string, error)
}

// UpdateJournal is an append-only log of applied token updates.
type UpdateJournal interface {
	// InsertBulk appends records in order.
	InsertBulk(ctx context.Context, records []*domain.UpdateRecord) error

	// GetByAddress returns every record of a token, ordered by applied_at ASC.
	GetByAddress(ctx context.Context, address string) ([]*domain.UpdateRecord, error)

	// GetBySession returns every record of one subscription session, ordered by applied_at ASC.
	GetBySession(ctx context.Context, sessionID string) ([]*domain.UpdateRecord, error)
}
