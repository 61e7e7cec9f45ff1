package domain

import "github.com/shopspring/decimal"

// SubscriptionKind names the synchronizer that applied an update.
type SubscriptionKind string

const (
	KindList        SubscriptionKind = "list"
	KindDetail      SubscriptionKind = "detail"
	KindLeaderboard SubscriptionKind = "leaderboard"
)

// UpdateKind distinguishes wholesale records from partial patches.
type UpdateKind string

const (
	UpdateFull  UpdateKind = "full"
	UpdatePatch UpdateKind = "patch"
)

// UpdateRecord is one applied token update, kept in the update journal.
type UpdateRecord struct {
	SessionID       string           // subscription session (uuid)
	Subscription    SubscriptionKind // which synchronizer applied it
	Kind            UpdateKind
	Source          Provenance
	ContractAddress string
	PriceUSD        decimal.Decimal
	FDVUSD          decimal.Decimal
	VolumeUSD       decimal.Decimal
	AppliedAt       int64 // unix ms
}
