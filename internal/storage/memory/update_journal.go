package memory

import (
	"context"
	"sort"
	"sync"

	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/storage"
)

// UpdateJournal is an in-memory implementation of storage.UpdateJournal.
type UpdateJournal struct {
	mu      sync.RWMutex
	records []*domain.UpdateRecord
}

// NewUpdateJournal creates a new in-memory update journal.
func NewUpdateJournal() *UpdateJournal {
	return &UpdateJournal{}
}

// InsertBulk appends records. The batch is rejected whole if any record lacks a key.
func (j *UpdateJournal) InsertBulk(_ context.Context, records []*domain.UpdateRecord) error {
	for _, r := range records {
		if r == nil || r.SessionID == "" || r.ContractAddress == "" {
			return storage.ErrInvalidInput
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, r := range records {
		recCopy := *r
		j.records = append(j.records, &recCopy)
	}
	return nil
}

// GetByAddress returns every record of a token, ordered by applied_at ASC.
func (j *UpdateJournal) GetByAddress(_ context.Context, address string) ([]*domain.UpdateRecord, error) {
	return j.filter(func(r *domain.UpdateRecord) bool {
		return domain.SameAddress(r.ContractAddress, address)
	}), nil
}

// GetBySession returns every record of one session, ordered by applied_at ASC.
func (j *UpdateJournal) GetBySession(_ context.Context, sessionID string) ([]*domain.UpdateRecord, error) {
	return j.filter(func(r *domain.UpdateRecord) bool {
		return r.SessionID == sessionID
	}), nil
}

// Len returns the number of stored records.
func (j *UpdateJournal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.records)
}

func (j *UpdateJournal) filter(keep func(*domain.UpdateRecord) bool) []*domain.UpdateRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []*domain.UpdateRecord
	for _, r := range j.records {
		if keep(r) {
			recCopy := *r
			result = append(result, &recCopy)
		}
	}

	sort.SliceStable(result, func(a, b int) bool {
		return result[a].AppliedAt < result[b].AppliedAt
	})
	return result
}

var _ storage.UpdateJournal = (*UpdateJournal)(nil)
