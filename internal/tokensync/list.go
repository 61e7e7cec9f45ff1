package tokensync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/observability"
	"token-dashboard-sync/internal/transport"
)

// ListSnapshot is a consistent view of a List.
type ListSnapshot struct {
	Page  domain.TokenListPage // last applied page
	Query domain.ListQuery     // latest requested parameters
	State domain.SyncState
}

// List keeps one sorted, paginated page of tokens.
type List struct {
	*subscription

	query  domain.ListQuery
	page   domain.TokenListPage
	issued bool // latest request sent on the current connection
}

// NewList creates a list synchronizer listening on ch.
func NewList(ch transport.Channel, src Source, opts ...Option) *List {
	l := &List{
		subscription: newSubscription(domain.KindList, ch, src, opts),
		query:        domain.DefaultListQuery(),
	}
	l.listen(EventTokensListUpdate, l.handlePage)
	l.listen(EventTokenUpdate, l.handlePatch)
	l.listen(EventError, l.handleError)
	l.listen(transport.EventConnect, l.handleConnect)
	l.listen(transport.EventDisconnect, l.handleDisconnect)
	return l
}

// Snapshot returns a copy of the current state.
func (l *List) Snapshot() ListSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ListSnapshot{Page: l.page.Clone(), Query: l.query, State: l.state}
}

// RequestPage asks for the page described by q, superseding any earlier request.
// Over the push channel the request is answered by tokens-list-update or, after
// the fallback timeout, by a pull. Without a connection it pulls immediately.
func (l *List) RequestPage(ctx context.Context, q domain.ListQuery) error {
	if err := q.Validate(); err != nil {
		return &InvalidInputError{Err: err}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	seq := l.beginLocked()
	l.query = q
	l.issued = false
	connected := l.state.Connected
	if connected {
		l.fallback.Arm(l.opts.timeout, func() { l.onTimeout(seq) })
	}
	l.mu.Unlock()
	l.notify()

	l.log.WithFields(logrus.Fields{
		"sort": q.Sort, "direction": q.Direction, "page": q.Page, "seq": seq,
	}).Debug("requesting token page")

	if !connected {
		l.pull(seq, q, reasonDisconnected)
		return nil
	}

	err := l.channel.Emit(EventGetTokens, getTokensRequest{
		Sort:      q.Sort,
		Direction: q.Direction,
		Page:      q.Page,
		RequestID: seq,
	})
	if err == nil {
		l.mu.Lock()
		if seq == l.state.Seq && l.state.Connected {
			l.issued = true
		}
		l.mu.Unlock()
		observability.RecordPushRequest(string(l.kind))
		return nil
	}

	terr := &TransportError{Op: "emit " + EventGetTokens, Err: err}
	l.log.WithError(terr).Warn("push request failed")
	observability.RecordSubscriptionError(string(l.kind), errorClass(terr))
	l.mu.Lock()
	if seq == l.state.Seq {
		l.fallback.Cancel()
	}
	l.mu.Unlock()
	l.pull(seq, q, reasonEmitFailed)
	return nil
}

// ToggleSort selects field. Selecting the current field flips the direction,
// selecting another one sorts it descending. Both restart at page 1.
func (l *List) ToggleSort(ctx context.Context, field domain.SortField) error {
	if !field.Valid() {
		return &InvalidInputError{Err: fmt.Errorf("%w: unknown sort field %q", ErrInvalidInput, field)}
	}

	l.mu.Lock()
	q := l.query
	l.mu.Unlock()

	if field == q.Sort {
		q.Direction = q.Direction.Flip()
	} else {
		q.Sort = field
		q.Direction = domain.Descending
	}
	q.Page = 1
	return l.RequestPage(ctx, q)
}

// GoToPage requests page n of the current ordering. n must lie within
// [1, TotalPages] once the page count is known.
func (l *List) GoToPage(ctx context.Context, n int) error {
	l.mu.Lock()
	q := l.query
	total := l.page.TotalPages
	l.mu.Unlock()

	if n < 1 || (total > 0 && n > total) {
		return &InvalidInputError{Err: fmt.Errorf("%w: page %d outside 1..%d", ErrInvalidInput, n, total)}
	}
	q.Page = n
	return l.RequestPage(ctx, q)
}

// NextPage moves one page forward.
func (l *List) NextPage(ctx context.Context) error {
	return l.GoToPage(ctx, l.currentPage()+1)
}

// PrevPage moves one page back.
func (l *List) PrevPage(ctx context.Context) error {
	return l.GoToPage(ctx, l.currentPage()-1)
}

// FirstPage jumps to page 1.
func (l *List) FirstPage(ctx context.Context) error {
	return l.GoToPage(ctx, 1)
}

// LastPage jumps to the last known page.
func (l *List) LastPage(ctx context.Context) error {
	l.mu.Lock()
	total := l.page.TotalPages
	l.mu.Unlock()
	if total < 1 {
		total = 1
	}
	return l.GoToPage(ctx, total)
}

func (l *List) currentPage() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query.Page
}

// pull fetches page q for request seq unless a pull for it already runs.
func (l *List) pull(seq uint64, q domain.ListQuery, reason string) {
	l.mu.Lock()
	ok := l.claimPullLocked(seq)
	l.mu.Unlock()
	if !ok {
		return
	}
	l.notify()

	l.spawnPull(reason, func(ctx context.Context) {
		page, err := l.source.ListTokens(ctx, q)
		l.finishPull(seq, page, err)
	})
}

func (l *List) finishPull(seq uint64, page *domain.TokenListPage, err error) {
	l.mu.Lock()
	if !l.endPullLocked(seq) {
		l.mu.Unlock()
		l.stale(domain.ProvenancePull)
		return
	}
	if err != nil {
		ferr := &FetchError{Endpoint: "/api/tokens", Err: err}
		l.failLocked(ferr)
		l.mu.Unlock()
		l.log.WithError(ferr).Warn("token page pull failed")
		observability.RecordSubscriptionError(string(l.kind), errorClass(ferr))
		l.notify()
		return
	}
	l.mu.Unlock()

	l.apply(seq, page.Tokens, page.TotalPages, domain.ProvenancePull)
}

func (l *List) onTimeout(seq uint64) {
	l.mu.Lock()
	ok := l.canFallBackLocked(seq)
	q := l.query
	l.mu.Unlock()
	if !ok {
		return
	}
	l.log.WithField("seq", seq).Info("push request timed out, falling back to http")
	l.pull(seq, q, reasonTimeout)
}

// apply replaces the page wholesale. Push and pull responses both land here.
func (l *List) apply(seq uint64, tokens []domain.Token, totalPages int, src domain.Provenance) {
	l.mu.Lock()
	if l.closed || seq != l.state.Seq {
		l.mu.Unlock()
		l.stale(src)
		return
	}
	if tokens == nil {
		tokens = []domain.Token{}
	}
	l.page = domain.TokenListPage{Tokens: tokens, Query: l.query, TotalPages: totalPages}
	l.resolveLocked(src)
	// keep the requested page inside the range the server reports
	var repage *domain.ListQuery
	requested := l.query.Page
	if totalPages > 0 && requested > totalPages {
		q := l.query
		q.Page = totalPages
		repage = &q
	}
	applied := make([]domain.Token, len(tokens))
	copy(applied, tokens)
	l.mu.Unlock()

	for _, tok := range applied {
		l.record(domain.UpdateFull, src, tok)
	}
	l.applied(src)
	l.notify()

	if repage != nil {
		l.log.WithFields(logrus.Fields{
			"requested": requested, "total_pages": totalPages,
		}).Info("requested page beyond last page, re-requesting last page")
		if err := l.RequestPage(l.ctx, *repage); err != nil && !errors.Is(err, ErrClosed) {
			l.log.WithError(err).Warn("re-request failed")
		}
	}
}

func (l *List) handlePage(raw json.RawMessage) {
	var p tokensListPayload
	if !l.decode(EventTokensListUpdate, raw, &p) {
		return
	}

	l.mu.Lock()
	seq := l.state.Seq
	ok := p.matches(seq, l.query)
	l.mu.Unlock()
	if !ok {
		l.stale(domain.ProvenancePush)
		return
	}
	l.apply(seq, p.Tokens, p.TotalPages, domain.ProvenancePush)
}

func (l *List) handlePatch(raw json.RawMessage) {
	var p domain.TokenPatch
	if !l.decode(EventTokenUpdate, raw, &p) || p.ContractAddress == "" {
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	i := l.page.IndexOf(p.ContractAddress)
	if i < 0 {
		l.mu.Unlock()
		observability.RecordPatch(string(l.kind), false)
		return
	}
	l.page.Tokens[i] = l.page.Tokens[i].Apply(p)
	merged := l.page.Tokens[i]
	l.mu.Unlock()

	observability.RecordPatch(string(l.kind), true)
	l.record(domain.UpdatePatch, domain.ProvenancePush, merged)
	l.notify()
}

// handleError records the failure. The list does not retry; a pending fallback
// timer still applies.
func (l *List) handleError(raw json.RawMessage) {
	terr := &TransportError{Op: "event " + EventError, Err: errors.New(errorMessage(raw))}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.state.Err = terr
	l.mu.Unlock()

	l.log.WithError(terr).Warn("push channel reported an error")
	observability.RecordSubscriptionError(string(l.kind), errorClass(terr))
	l.notify()
}

// handleConnect re-issues the current request over the fresh connection
// unless it was already sent on it.
func (l *List) handleConnect(json.RawMessage) {
	l.onConnection(true)

	l.mu.Lock()
	requested := l.state.Seq > 0 && !l.closed && !l.issued
	q := l.query
	l.mu.Unlock()
	if !requested {
		return
	}
	if err := l.RequestPage(l.ctx, q); err != nil && !errors.Is(err, ErrClosed) {
		l.log.WithError(err).Warn("re-request after connect failed")
	}
}

// handleDisconnect pulls at once when the pending request can no longer be
// answered over the push channel.
func (l *List) handleDisconnect(json.RawMessage) {
	l.onConnection(false)

	l.mu.Lock()
	l.issued = false
	seq := l.state.Seq
	ok := seq > 0 && l.state.Phase == domain.PhaseRequesting && l.canFallBackLocked(seq)
	if ok {
		l.fallback.Cancel()
	}
	q := l.query
	l.mu.Unlock()
	if ok {
		l.pull(seq, q, reasonDisconnected)
	}
}
