package journal

import (
	"context"

	"github.com/shopspring/decimal"

	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/transport"
)

// staticChannel is a push channel that never connects.
type staticChannel struct{}

func (staticChannel) Connect(context.Context) error { return transport.ErrNotConnected }
func (staticChannel) IsConnected() bool             { return false }
func (staticChannel) Emit(string, any) error        { return transport.ErrNotConnected }
func (staticChannel) Subscribe(string, transport.Handler) transport.ListenerID {
	return 0
}
func (staticChannel) Unsubscribe(string, transport.ListenerID) {}
func (staticChannel) Close() error                             { return nil }

// staticSource serves a fixed two-token page.
type staticSource struct{}

func (staticSource) ListTokens(_ context.Context, q domain.ListQuery) (*domain.TokenListPage, error) {
	return &domain.TokenListPage{
		Tokens: []domain.Token{
			{ContractAddress: "0xA", Name: "A", PriceUSD: decimal.NewFromInt(1)},
			{ContractAddress: "0xB", Name: "B", PriceUSD: decimal.NewFromInt(2)},
		},
		Query:      q,
		TotalPages: 1,
	}, nil
}

func (staticSource) GetToken(context.Context, string) (*domain.Token, error) {
	return nil, nil
}

func (staticSource) GlobalTopTokens(context.Context) (*domain.Leaderboard, error) {
	return &domain.Leaderboard{}, nil
}
