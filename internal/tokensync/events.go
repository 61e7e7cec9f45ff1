package tokensync

import (
	"encoding/json"
	"strings"

	"token-dashboard-sync/internal/domain"
)

// Push events consumed.
const (
	EventTokensListUpdate   = "tokens-list-update"
	EventTopTokensUpdate    = "top-tokens-update"
	EventTokenUpdate        = "token-update"
	EventTokenDetails       = "token-details"
	EventTokenDetailsUpdate = "token-details-update"
	EventError              = "error"
)

// Push requests emitted.
const (
	EventGetTokens       = "get-tokens"
	EventGetTokenDetails = "get-token-details"
)

type getTokensRequest struct {
	Sort      domain.SortField     `json:"sort"`
	Direction domain.SortDirection `json:"direction"`
	Page      int                  `json:"page"`
	RequestID uint64               `json:"requestId"`
}

type getTokenDetailsRequest struct {
	ContractAddress string `json:"contractAddress"`
	RequestID       uint64 `json:"requestId"`
}

// tokensListPayload is a full list page. The correlation fields are only
// present when the server echoes them back.
type tokensListPayload struct {
	Tokens     []domain.Token        `json:"tokens"`
	TotalPages int                   `json:"totalPages"`
	RequestID  *uint64               `json:"requestId,omitempty"`
	Sort       *domain.SortField     `json:"sort,omitempty"`
	Direction  *domain.SortDirection `json:"direction,omitempty"`
	Page       *int                  `json:"page,omitempty"`
}

// matches reports whether p may answer the request seq for q.
// Uncorrelated payloads always match.
func (p *tokensListPayload) matches(seq uint64, q domain.ListQuery) bool {
	if p.RequestID != nil {
		return *p.RequestID == seq
	}
	if p.Sort != nil && *p.Sort != q.Sort {
		return false
	}
	if p.Direction != nil && *p.Direction != q.Direction {
		return false
	}
	if p.Page != nil && *p.Page != q.Page {
		return false
	}
	return true
}

type tokenDetailsPayload struct {
	domain.Token
	RequestID *uint64 `json:"requestId,omitempty"`
}

// errorMessage extracts the message of an error event. The server sends
// either {"message": "..."} or a bare string.
func errorMessage(raw json.RawMessage) string {
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" && msg != "null" {
		return msg
	}
	return "unknown error"
}
