package domain

import (
	"fmt"
	"strconv"
)

// SortField selects the metric a token list is ordered by.
type SortField string

const (
	SortMarketCap SortField = "marketCap"
	SortVolume    SortField = "volume"
)

// Valid reports whether f is a known sort field.
func (f SortField) Valid() bool {
	return f == SortMarketCap || f == SortVolume
}

// SortDirection is the list ordering direction.
type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// Valid reports whether d is a known direction.
func (d SortDirection) Valid() bool {
	return d == Ascending || d == Descending
}

// Flip returns the opposite direction.
func (d SortDirection) Flip() SortDirection {
	if d == Descending {
		return Ascending
	}
	return Descending
}

// ListQuery is the parameter tuple of a token list request.
type ListQuery struct {
	Sort      SortField     `json:"sort"`
	Direction SortDirection `json:"direction"`
	Page      int           `json:"page"` // 1-based
}

// DefaultListQuery is the dashboard's initial request.
func DefaultListQuery() ListQuery {
	return ListQuery{Sort: SortMarketCap, Direction: Descending, Page: 1}
}

// Validate checks the query parameters.
func (q ListQuery) Validate() error {
	if !q.Sort.Valid() {
		return fmt.Errorf("%w: unknown sort field %q", ErrInvalidInput, q.Sort)
	}
	if !q.Direction.Valid() {
		return fmt.Errorf("%w: unknown sort direction %q", ErrInvalidInput, q.Direction)
	}
	if q.Page < 1 {
		return fmt.Errorf("%w: page must be >= 1, got %d", ErrInvalidInput, q.Page)
	}
	return nil
}

// Values renders the query as HTTP query parameters.
func (q ListQuery) Values() map[string]string {
	return map[string]string{
		"sort":      string(q.Sort),
		"direction": string(q.Direction),
		"page":      strconv.Itoa(q.Page),
	}
}

// TokenListPage is one page of a sorted token list.
type TokenListPage struct {
	Tokens     []Token
	Query      ListQuery
	TotalPages int
}

// Clone returns a copy whose token slice is not shared with p.
func (p TokenListPage) Clone() TokenListPage {
	out := p
	if p.Tokens != nil {
		out.Tokens = make([]Token, len(p.Tokens))
		copy(out.Tokens, p.Tokens)
	}
	return out
}

// IndexOf returns the position of the token with the given address, or -1.
func (p TokenListPage) IndexOf(address string) int {
	for i := range p.Tokens {
		if SameAddress(p.Tokens[i].ContractAddress, address) {
			return i
		}
	}
	return -1
}
