package domain

import "github.com/shopspring/decimal"

// Token is a token record as served by the token data service.
// ContractAddress is the identity key and never changes after creation.
type Token struct {
	ContractAddress string          `json:"contractAddress"`
	Name            string          `json:"name"`
	Symbol          string          `json:"symbol"`
	PriceUSD        decimal.Decimal `json:"price_usd"`
	FDVUSD          decimal.Decimal `json:"fdv_usd"`    // fully-diluted value, shown as market cap
	VolumeUSD       decimal.Decimal `json:"volume_usd"` // 24h volume
	MainPoolAddress string          `json:"main_pool_address,omitempty"`
}

// TokenPatch is a partial Token. Nil fields are absent and leave the
// target value untouched when applied.
type TokenPatch struct {
	ContractAddress string           `json:"contractAddress"`
	Name            *string          `json:"name,omitempty"`
	Symbol          *string          `json:"symbol,omitempty"`
	PriceUSD        *decimal.Decimal `json:"price_usd,omitempty"`
	FDVUSD          *decimal.Decimal `json:"fdv_usd,omitempty"`
	VolumeUSD       *decimal.Decimal `json:"volume_usd,omitempty"`
	MainPoolAddress *string          `json:"main_pool_address,omitempty"`
}

// Apply returns t with every present patch field overriding the current value.
// The contract address is never rewritten.
func (t Token) Apply(p TokenPatch) Token {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Symbol != nil {
		t.Symbol = *p.Symbol
	}
	if p.PriceUSD != nil {
		t.PriceUSD = *p.PriceUSD
	}
	if p.FDVUSD != nil {
		t.FDVUSD = *p.FDVUSD
	}
	if p.VolumeUSD != nil {
		t.VolumeUSD = *p.VolumeUSD
	}
	if p.MainPoolAddress != nil {
		t.MainPoolAddress = *p.MainPoolAddress
	}
	return t
}

// PoolAddress returns the pool used as the chart reference for the token.
// Tokens without a known pool reference themselves.
func (t Token) PoolAddress() string {
	if t.MainPoolAddress != "" {
		return t.MainPoolAddress
	}
	return t.ContractAddress
}

// Leaderboard holds the two server-computed top tokens.
// Either slot is nil until the first leaderboard response.
type Leaderboard struct {
	TopMarketCap *Token `json:"topMarketCapToken"`
	TopVolume    *Token `json:"topVolumeToken"`
}

// Clone returns a deep copy so callers cannot mutate synchronizer state.
func (l Leaderboard) Clone() Leaderboard {
	var out Leaderboard
	if l.TopMarketCap != nil {
		tok := *l.TopMarketCap
		out.TopMarketCap = &tok
	}
	if l.TopVolume != nil {
		tok := *l.TopVolume
		out.TopVolume = &tok
	}
	return out
}
