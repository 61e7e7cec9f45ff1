package tokensync

import (
	"context"
	"encoding/json"
	"errors"

	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/observability"
	"token-dashboard-sync/internal/tokenapi"
	"token-dashboard-sync/internal/transport"
)

// DetailSnapshot is a consistent view of a Detail.
type DetailSnapshot struct {
	Address     string        // requested contract address
	Token       *domain.Token // nil until resolved
	PoolAddress string        // chart reference pool, empty until resolved
	State       domain.SyncState
}

// Detail keeps the full record of one focused token.
type Detail struct {
	*subscription

	address string
	token   *domain.Token
	pool    string
	issued  bool // push request sent for the current address
}

// NewDetail creates a detail synchronizer listening on ch.
func NewDetail(ch transport.Channel, src Source, opts ...Option) *Detail {
	d := &Detail{subscription: newSubscription(domain.KindDetail, ch, src, opts)}
	d.listen(EventTokenDetails, d.handleDetails)
	d.listen(EventTokenDetailsUpdate, d.handlePatch)
	d.listen(EventError, d.handleError)
	d.listen(transport.EventConnect, d.handleConnect)
	d.listen(transport.EventDisconnect, func(json.RawMessage) { d.onConnection(false) })
	return d
}

// Snapshot returns a copy of the current state.
func (d *Detail) Snapshot() DetailSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := DetailSnapshot{Address: d.address, PoolAddress: d.pool, State: d.state}
	if d.token != nil {
		tok := *d.token
		snap.Token = &tok
	}
	return snap
}

// RequestDetail focuses contractAddress, discarding the previous record.
// The fallback timer is armed whether or not the channel is connected, so a
// connection that never answers still ends in a pull.
func (d *Detail) RequestDetail(ctx context.Context, contractAddress string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	invalid := domain.ValidateAddress(contractAddress)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	seq := d.beginLocked()
	d.address = contractAddress
	d.token = nil
	d.pool = ""
	d.issued = false
	d.state.Source = domain.ProvenanceNone
	if invalid != nil {
		ierr := &InvalidInputError{Err: invalid}
		d.failLocked(ierr)
		d.mu.Unlock()
		observability.RecordSubscriptionError(string(d.kind), errorClass(ierr))
		d.notify()
		return ierr
	}
	connected := d.state.Connected
	d.issued = connected
	d.fallback.Arm(d.opts.timeout, func() { d.onTimeout(seq) })
	d.mu.Unlock()
	d.notify()

	d.log.WithField("address", contractAddress).WithField("seq", seq).Debug("requesting token details")
	if connected {
		d.emit(seq, contractAddress)
	}
	return nil
}

// emit sends the push request for seq; a failed emit pulls immediately.
func (d *Detail) emit(seq uint64, address string) {
	err := d.channel.Emit(EventGetTokenDetails, getTokenDetailsRequest{
		ContractAddress: address,
		RequestID:       seq,
	})
	if err == nil {
		observability.RecordPushRequest(string(d.kind))
		return
	}

	terr := &TransportError{Op: "emit " + EventGetTokenDetails, Err: err}
	d.log.WithError(terr).Warn("push request failed")
	observability.RecordSubscriptionError(string(d.kind), errorClass(terr))

	d.mu.Lock()
	if seq == d.state.Seq {
		d.issued = false
	}
	d.mu.Unlock()
	d.pull(seq, reasonEmitFailed)
}

func (d *Detail) pull(seq uint64, reason string) {
	d.mu.Lock()
	ok := d.canFallBackLocked(seq) && d.claimPullLocked(seq)
	address := d.address
	d.mu.Unlock()
	if !ok {
		return
	}
	d.notify()

	d.spawnPull(reason, func(ctx context.Context) {
		tok, err := d.source.GetToken(ctx, address)
		d.finishPull(seq, tok, err)
	})
}

func (d *Detail) finishPull(seq uint64, tok *domain.Token, err error) {
	d.mu.Lock()
	if !d.endPullLocked(seq) {
		d.mu.Unlock()
		d.stale(domain.ProvenancePull)
		return
	}
	if err == nil && (tok == nil || !domain.SameAddress(tok.ContractAddress, d.address)) {
		err = tokenapi.ErrNotFound
	}
	if err != nil {
		perr := pullError("/api/tokens/{address}", d.address, err)
		d.failLocked(perr)
		d.mu.Unlock()
		d.log.WithError(perr).Warn("token detail pull failed")
		observability.RecordSubscriptionError(string(d.kind), errorClass(perr))
		d.notify()
		return
	}
	d.mu.Unlock()

	d.apply(seq, *tok, domain.ProvenancePull)
}

func (d *Detail) onTimeout(seq uint64) {
	d.log.WithField("seq", seq).Info("no token details yet, falling back to http")
	d.pull(seq, reasonTimeout)
}

// apply stores tok as the canonical record. Push and pull responses both land here.
func (d *Detail) apply(seq uint64, tok domain.Token, src domain.Provenance) {
	d.mu.Lock()
	if d.closed || seq != d.state.Seq || !domain.SameAddress(tok.ContractAddress, d.address) {
		d.mu.Unlock()
		d.stale(src)
		return
	}
	d.token = &tok
	d.pool = tok.PoolAddress()
	d.resolveLocked(src)
	d.mu.Unlock()

	d.record(domain.UpdateFull, src, tok)
	d.applied(src)
	d.notify()
}

func (d *Detail) handleDetails(raw json.RawMessage) {
	var p tokenDetailsPayload
	if !d.decode(EventTokenDetails, raw, &p) {
		return
	}

	d.mu.Lock()
	seq := d.state.Seq
	d.mu.Unlock()
	if p.RequestID != nil && *p.RequestID != seq {
		d.stale(domain.ProvenancePush)
		return
	}
	d.apply(seq, p.Token, domain.ProvenancePush)
}

func (d *Detail) handlePatch(raw json.RawMessage) {
	var p domain.TokenPatch
	if !d.decode(EventTokenDetailsUpdate, raw, &p) || p.ContractAddress == "" {
		return
	}

	d.mu.Lock()
	if d.closed || d.token == nil || !domain.SameAddress(p.ContractAddress, d.address) {
		d.mu.Unlock()
		observability.RecordPatch(string(d.kind), false)
		return
	}
	merged := d.token.Apply(p)
	d.token = &merged
	d.pool = merged.PoolAddress()
	d.mu.Unlock()

	observability.RecordPatch(string(d.kind), true)
	d.record(domain.UpdatePatch, domain.ProvenancePush, merged)
	d.notify()
}

// handleError falls back to a pull at once unless data already arrived or a
// pull is running.
func (d *Detail) handleError(raw json.RawMessage) {
	terr := &TransportError{Op: "event " + EventError, Err: errors.New(errorMessage(raw))}

	d.mu.Lock()
	seq := d.state.Seq
	pending := seq > 0 && d.state.Phase == domain.PhaseRequesting && d.canFallBackLocked(seq)
	d.mu.Unlock()

	d.log.WithError(terr).Warn("push channel reported an error")
	observability.RecordSubscriptionError(string(d.kind), errorClass(terr))
	if pending {
		d.pull(seq, reasonError)
	}
}

// handleConnect sends the pending request if it was not sent yet.
func (d *Detail) handleConnect(json.RawMessage) {
	d.onConnection(true)

	d.mu.Lock()
	seq := d.state.Seq
	send := !d.closed && seq > 0 && !d.issued && !d.received &&
		d.state.Phase == domain.PhaseRequesting
	if send {
		d.issued = true
	}
	address := d.address
	d.mu.Unlock()
	if send {
		d.emit(seq, address)
	}
}
