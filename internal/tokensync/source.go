package tokensync

import (
	"context"
	"errors"

	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/tokenapi"
)

// Source is the pull side: the token data service over HTTP.
// *tokenapi.HTTPClient implements it.
type Source interface {
	ListTokens(ctx context.Context, q domain.ListQuery) (*domain.TokenListPage, error)
	GetToken(ctx context.Context, contractAddress string) (*domain.Token, error)
	GlobalTopTokens(ctx context.Context) (*domain.Leaderboard, error)
}

var _ Source = (*tokenapi.HTTPClient)(nil)

// pullError classifies a pull failure.
func pullError(endpoint, address string, err error) error {
	if errors.Is(err, tokenapi.ErrNotFound) {
		return &NotFoundError{Address: address, Err: err}
	}
	return &FetchError{Endpoint: endpoint, Err: err}
}
