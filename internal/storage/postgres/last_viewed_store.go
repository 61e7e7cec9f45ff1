package postgres

import (
	"context"
	"fmt"

	"token-dashboard-sync/internal/storage"
)

// LastViewedStore is a PostgreSQL implementation of storage.LastViewedStore.
// One row per profile in last_viewed.
type LastViewedStore struct {
	pool *Pool
}

// NewLastViewedStore creates a new PostgreSQL last-viewed store.
func NewLastViewedStore(pool *Pool) *LastViewedStore {
	return &LastViewedStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LastViewedStore = (*LastViewedStore)(nil)

// Save records address as the last viewed token of profile.
// Uses upsert to handle initial insert and subsequent updates.
func (s *LastViewedStore) Save(ctx context.Context, profile, address string) error {
	if profile == "" || address == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO last_viewed (profile, contract_address, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (profile) DO UPDATE
		SET contract_address = EXCLUDED.contract_address,
		    updated_at = NOW()
	`, profile, address)
	if err != nil {
		if isUndefinedTableError(err) {
			return fmt.Errorf("save last viewed: migrations not applied: %w", err)
		}
		return fmt.Errorf("save last viewed: %w", err)
	}
	return nil
}

// Load returns the last viewed address of profile. Returns ErrNotFound if none was saved.
func (s *LastViewedStore) Load(ctx context.Context, profile string) (string, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT contract_address
		FROM last_viewed
		WHERE profile = $1
	`, profile)

	var address string
	if err := row.Scan(&address); err != nil {
		if isNotFoundError(err) {
			return "", storage.ErrNotFound
		}
		if isUndefinedTableError(err) {
			return "", fmt.Errorf("load last viewed: migrations not applied: %w", err)
		}
		return "", fmt.Errorf("load last viewed: %w", err)
	}
	return address, nil
}
