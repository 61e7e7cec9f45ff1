package tokensync

import (
	"context"
	"encoding/json"

	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/observability"
	"token-dashboard-sync/internal/transport"
)

// LeaderboardSnapshot is a consistent view of a Leaderboard.
type LeaderboardSnapshot struct {
	Board domain.Leaderboard
	State domain.SyncState
}

// Leaderboard keeps the top market cap and top volume tokens. Only a server
// response can change which tokens hold the slots; patches merge into them.
type Leaderboard struct {
	*subscription

	board domain.Leaderboard
}

// NewLeaderboard creates a leaderboard synchronizer listening on ch.
func NewLeaderboard(ch transport.Channel, src Source, opts ...Option) *Leaderboard {
	lb := &Leaderboard{subscription: newSubscription(domain.KindLeaderboard, ch, src, opts)}
	lb.listen(EventTopTokensUpdate, lb.handleBoard)
	lb.listen(EventTokenUpdate, lb.handlePatch)
	lb.listen(transport.EventConnect, func(json.RawMessage) { lb.onConnection(true) })
	lb.listen(transport.EventDisconnect, lb.handleDisconnect)
	return lb
}

// Snapshot returns a copy of the current state.
func (lb *Leaderboard) Snapshot() LeaderboardSnapshot {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return LeaderboardSnapshot{Board: lb.board.Clone(), State: lb.state}
}

// RequestLeaderboard waits for the server's top-tokens-update broadcast when
// connected, pulling after the fallback timeout; otherwise it pulls at once.
func (lb *Leaderboard) RequestLeaderboard(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lb.mu.Lock()
	if lb.closed {
		lb.mu.Unlock()
		return ErrClosed
	}
	seq := lb.beginLocked()
	connected := lb.state.Connected
	if connected {
		lb.fallback.Arm(lb.opts.timeout, func() { lb.onTimeout(seq) })
	}
	lb.mu.Unlock()
	lb.notify()

	if !connected {
		lb.pull(seq, reasonDisconnected)
	}
	return nil
}

func (lb *Leaderboard) pull(seq uint64, reason string) {
	lb.mu.Lock()
	ok := lb.canFallBackLocked(seq) && lb.claimPullLocked(seq)
	lb.mu.Unlock()
	if !ok {
		return
	}
	lb.notify()

	lb.spawnPull(reason, func(ctx context.Context) {
		board, err := lb.source.GlobalTopTokens(ctx)
		lb.finishPull(seq, board, err)
	})
}

func (lb *Leaderboard) finishPull(seq uint64, board *domain.Leaderboard, err error) {
	lb.mu.Lock()
	if !lb.endPullLocked(seq) {
		lb.mu.Unlock()
		lb.stale(domain.ProvenancePull)
		return
	}
	if err != nil {
		ferr := &FetchError{Endpoint: "/api/global-top-tokens", Err: err}
		lb.failLocked(ferr)
		lb.mu.Unlock()
		lb.log.WithError(ferr).Warn("leaderboard pull failed")
		observability.RecordSubscriptionError(string(lb.kind), errorClass(ferr))
		lb.notify()
		return
	}
	lb.mu.Unlock()

	lb.apply(seq, *board, domain.ProvenancePull)
}

func (lb *Leaderboard) onTimeout(seq uint64) {
	lb.log.WithField("seq", seq).Info("no leaderboard broadcast yet, falling back to http")
	lb.pull(seq, reasonTimeout)
}

// apply replaces both slots. Pulls pass their request; broadcasts are
// uncorrelated and pass the latest one.
func (lb *Leaderboard) apply(seq uint64, board domain.Leaderboard, src domain.Provenance) {
	lb.mu.Lock()
	if lb.closed || seq != lb.state.Seq {
		lb.mu.Unlock()
		lb.stale(src)
		return
	}
	lb.board = board.Clone()
	lb.resolveLocked(src)
	lb.mu.Unlock()

	for _, tok := range []*domain.Token{board.TopMarketCap, board.TopVolume} {
		if tok != nil {
			lb.record(domain.UpdateFull, src, *tok)
		}
	}
	lb.applied(src)
	lb.notify()
}

func (lb *Leaderboard) handleBoard(raw json.RawMessage) {
	var board domain.Leaderboard
	if !lb.decode(EventTopTokensUpdate, raw, &board) {
		return
	}
	lb.mu.Lock()
	seq := lb.state.Seq
	lb.mu.Unlock()
	lb.apply(seq, board, domain.ProvenancePush)
}

func (lb *Leaderboard) handlePatch(raw json.RawMessage) {
	var p domain.TokenPatch
	if !lb.decode(EventTokenUpdate, raw, &p) || p.ContractAddress == "" {
		return
	}

	lb.mu.Lock()
	if lb.closed {
		lb.mu.Unlock()
		return
	}
	var merged []domain.Token
	for _, slot := range []*domain.Token{lb.board.TopMarketCap, lb.board.TopVolume} {
		if slot != nil && domain.SameAddress(slot.ContractAddress, p.ContractAddress) {
			*slot = slot.Apply(p)
			merged = append(merged, *slot)
		}
	}
	lb.mu.Unlock()

	if len(merged) == 0 {
		observability.RecordPatch(string(lb.kind), false)
		return
	}
	observability.RecordPatch(string(lb.kind), true)
	for _, tok := range merged {
		lb.record(domain.UpdatePatch, domain.ProvenancePush, tok)
	}
	lb.notify()
}

func (lb *Leaderboard) handleDisconnect(json.RawMessage) {
	lb.onConnection(false)

	lb.mu.Lock()
	seq := lb.state.Seq
	ok := seq > 0 && lb.state.Phase == domain.PhaseRequesting && lb.canFallBackLocked(seq)
	if ok {
		lb.fallback.Cancel()
	}
	lb.mu.Unlock()
	if ok {
		lb.pull(seq, reasonDisconnected)
	}
}
