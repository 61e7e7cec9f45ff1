package domain

// Phase is the lifecycle state of a single subscription request.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRequesting
	PhaseFulfilled
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRequesting:
		return "requesting"
	case PhaseFulfilled:
		return "fulfilled"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Provenance records which channel produced the current data.
type Provenance string

const (
	ProvenanceNone Provenance = ""
	ProvenancePush Provenance = "push"
	ProvenancePull Provenance = "pull"
)

// SyncState is per-subscription bookkeeping exposed in snapshots.
type SyncState struct {
	Phase        Phase
	Connected    bool
	PullInFlight bool
	Source       Provenance
	Err          error
	Seq          uint64 // latest issued request sequence number
}
