package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/storage"
)

// UpdateJournalStore implements storage.UpdateJournal using ClickHouse.
type UpdateJournalStore struct {
	conn *Conn
}

// NewUpdateJournalStore creates a new UpdateJournalStore.
func NewUpdateJournalStore(conn *Conn) *UpdateJournalStore {
	return &UpdateJournalStore{conn: conn}
}

// Compile-time interface check.
var _ storage.UpdateJournal = (*UpdateJournalStore)(nil)

// InsertBulk appends records in one batch. The batch is rejected whole if any record lacks a key.
func (s *UpdateJournalStore) InsertBulk(ctx context.Context, records []*domain.UpdateRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r == nil || r.SessionID == "" || r.ContractAddress == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO update_journal (
			session_id, subscription, kind, source, contract_address,
			price_usd, fdv_usd, volume_usd, applied_at_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		err = batch.Append(
			r.SessionID, string(r.Subscription), string(r.Kind), string(r.Source), r.ContractAddress,
			r.PriceUSD, r.FDVUSD, r.VolumeUSD, uint64(r.AppliedAt),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByAddress returns every record of a token, ordered by applied_at ASC.
func (s *UpdateJournalStore) GetByAddress(ctx context.Context, address string) ([]*domain.UpdateRecord, error) {
	query := `
		SELECT session_id, subscription, kind, source, contract_address,
		       price_usd, fdv_usd, volume_usd, applied_at_ms
		FROM update_journal
		WHERE contract_address = ?
		ORDER BY applied_at_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("query by address: %w", err)
	}
	defer rows.Close()

	return scanUpdateRecords(rows)
}

// GetBySession returns every record of one session, ordered by applied_at ASC.
func (s *UpdateJournalStore) GetBySession(ctx context.Context, sessionID string) ([]*domain.UpdateRecord, error) {
	query := `
		SELECT session_id, subscription, kind, source, contract_address,
		       price_usd, fdv_usd, volume_usd, applied_at_ms
		FROM update_journal
		WHERE session_id = ?
		ORDER BY applied_at_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query by session: %w", err)
	}
	defer rows.Close()

	return scanUpdateRecords(rows)
}

func scanUpdateRecords(rows driver.Rows) ([]*domain.UpdateRecord, error) {
	var result []*domain.UpdateRecord
	for rows.Next() {
		var (
			r                          domain.UpdateRecord
			subscription, kind, source string
			price, fdv, volume         decimal.Decimal
			appliedAt                  uint64
		)
		err := rows.Scan(
			&r.SessionID, &subscription, &kind, &source, &r.ContractAddress,
			&price, &fdv, &volume, &appliedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan update record: %w", err)
		}
		r.Subscription = domain.SubscriptionKind(subscription)
		r.Kind = domain.UpdateKind(kind)
		r.Source = domain.Provenance(source)
		r.PriceUSD = price
		r.FDVUSD = fdv
		r.VolumeUSD = volume
		r.AppliedAt = int64(appliedAt)
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return result, nil
}
