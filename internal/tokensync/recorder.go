package tokensync

import "token-dashboard-sync/internal/domain"

// Recorder receives every applied full record and patch.
// Record must not block; implementations buffer.
type Recorder interface {
	Record(rec domain.UpdateRecord)
}

type nopRecorder struct{}

func (nopRecorder) Record(domain.UpdateRecord) {}
