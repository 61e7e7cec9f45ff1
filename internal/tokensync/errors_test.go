package tokensync

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/tokenapi"
)

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("cause")
	tests := []struct {
		name  string
		err   error
		is    error
		class string
	}{
		{"transport", &TransportError{Op: "emit", Err: cause}, ErrTransport, "transport"},
		{"fetch", &FetchError{Endpoint: "/api/tokens", Err: cause}, ErrFetch, "fetch"},
		{"not found", pullError("/api/tokens/{address}", "0xA", tokenapi.ErrNotFound), ErrNotFound, "not_found"},
		{"invalid", &InvalidInputError{Err: fmt.Errorf("%w: bad", domain.ErrInvalidInput)}, ErrInvalidInput, "invalid_input"},
		{"wrapped fetch", fmt.Errorf("list: %w", &FetchError{Endpoint: "/x", Err: cause}), ErrFetch, "fetch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.is)
			assert.Equal(t, tt.class, errorClass(tt.err))
		})
	}

	assert.ErrorIs(t, &FetchError{Err: cause}, cause)
	assert.NotErrorIs(t, &FetchError{Err: cause}, ErrTransport)
	assert.Equal(t, "other", errorClass(cause))
	assert.ErrorIs(t, pullError("/x", "", cause), ErrFetch)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", errorMessage(json.RawMessage(`{"message":"boom"}`)))
	assert.Equal(t, "boom", errorMessage(json.RawMessage(`"boom"`)))
	assert.Equal(t, "unknown error", errorMessage(json.RawMessage(`null`)))
	assert.Equal(t, "unknown error", errorMessage(nil))
	assert.Equal(t, `{"code":7}`, errorMessage(json.RawMessage(`{"code":7}`)))
}

func TestTokensListPayloadMatches(t *testing.T) {
	q := domain.ListQuery{Sort: domain.SortVolume, Direction: domain.Ascending, Page: 2}
	id := uint64(4)
	page := 2
	other := 3
	sort := domain.SortVolume

	assert.True(t, (&tokensListPayload{}).matches(4, q))
	assert.True(t, (&tokensListPayload{RequestID: &id}).matches(4, q))
	assert.False(t, (&tokensListPayload{RequestID: &id}).matches(5, q))
	assert.True(t, (&tokensListPayload{Sort: &sort, Page: &page}).matches(9, q))
	assert.False(t, (&tokensListPayload{Sort: &sort, Page: &other}).matches(9, q))
}
