// Package tokensync keeps token lists, token details and the leaderboard in
// sync with the token data service. Requests go over the push channel when it
// is connected and fall back to an HTTP pull when it is not, when the push
// side reports an error, or when no answer arrives in time.
package tokensync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/observability"
	"token-dashboard-sync/internal/transport"
)

// Fallback triggers, used as metrics labels.
const (
	reasonDisconnected = "disconnected"
	reasonEmitFailed   = "emit_failed"
	reasonTimeout      = "timeout"
	reasonError        = "error"
)

type options struct {
	timeout  time.Duration
	clock    Clock
	log      *logrus.Entry
	recorder Recorder
	spawn    func(func())
}

// Option configures a synchronizer.
type Option func(*options)

// WithFallbackTimeout sets how long a push request waits before pulling.
func WithFallbackTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger sets the log entry.
func WithLogger(log *logrus.Entry) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithRecorder sets where applied updates are journaled.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithSpawn replaces the goroutine launcher used for pulls.
func WithSpawn(spawn func(func())) Option {
	return func(o *options) {
		o.spawn = spawn
	}
}

func buildOptions(opts []Option) options {
	o := options{
		timeout:  DefaultFallbackTimeout,
		clock:    SystemClock{},
		recorder: nopRecorder{},
		spawn:    func(f func()) { go f() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = SystemClock{}
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.log == nil {
		o.log = logrus.NewEntry(logrus.StandardLogger())
	}
	return o
}

type listenerRef struct {
	event string
	id    transport.ListenerID
}

// subscription is the bookkeeping shared by every synchronizer: the request
// sequence, the pull guard, channel listeners and change watchers.
// Fields below mu are guarded by it.
type subscription struct {
	kind      domain.SubscriptionKind
	channel   transport.Channel
	source    Source
	opts      options
	log       *logrus.Entry
	fallback  *Fallback
	sessionID string

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     domain.SyncState
	received  bool   // data arrived for the latest request
	pullSeq   uint64 // request whose pull is in flight, 0 if none
	closed    bool
	listeners []listenerRef
	watchers  []func()
}

func newSubscription(kind domain.SubscriptionKind, ch transport.Channel, src Source, opts []Option) *subscription {
	o := buildOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())
	sessionID := uuid.NewString()

	s := &subscription{
		kind:      kind,
		channel:   ch,
		source:    src,
		opts:      o,
		fallback:  NewFallback(o.clock),
		sessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
		log: o.log.WithFields(logrus.Fields{
			"subscription": string(kind),
			"session":      sessionID,
		}),
	}
	s.state.Connected = ch.IsConnected()
	observability.AddActiveSubscription(string(kind), 1)
	return s
}

// listen registers h on the channel; Close removes it.
func (s *subscription) listen(event string, h transport.Handler) {
	id := s.channel.Subscribe(event, h)
	s.mu.Lock()
	s.listeners = append(s.listeners, listenerRef{event: event, id: id})
	s.mu.Unlock()
}

// OnChange registers fn to run after every state change.
// fn runs on the goroutine that caused the change and must not block.
func (s *subscription) OnChange(fn func()) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

// SessionID identifies this subscription in logs and the update journal.
func (s *subscription) SessionID() string {
	return s.sessionID
}

// State returns the current bookkeeping.
func (s *subscription) State() domain.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close removes every listener, cancels the fallback timer and pending pulls.
// Late responses are ignored afterwards. Close is idempotent.
func (s *subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.fallback.Cancel()
	listeners := s.listeners
	s.listeners = nil
	s.watchers = nil
	s.mu.Unlock()

	s.cancel()
	for _, l := range listeners {
		s.channel.Unsubscribe(l.event, l.id)
	}
	observability.AddActiveSubscription(string(s.kind), -1)
	s.log.Debug("subscription closed")
	return nil
}

// notify runs the watchers. Must be called without mu held.
func (s *subscription) notify() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	watchers := make([]func(), len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	for _, fn := range watchers {
		fn()
	}
}

// beginLocked starts a new request and returns its sequence number.
func (s *subscription) beginLocked() uint64 {
	s.fallback.Cancel()
	s.state.Seq++
	s.state.Phase = domain.PhaseRequesting
	s.state.Err = nil
	s.state.PullInFlight = false
	s.state.Connected = s.channel.IsConnected()
	s.received = false
	observability.RecordRequest(string(s.kind))
	return s.state.Seq
}

// claimPullLocked reports whether request seq may start a pull and marks
// it in flight if so. At most one pull runs per request.
func (s *subscription) claimPullLocked(seq uint64) bool {
	if s.closed || seq != s.state.Seq || s.pullSeq == seq {
		return false
	}
	s.pullSeq = seq
	s.state.PullInFlight = true
	return true
}

// canFallBackLocked is the fire-time policy of the fallback timer: the request
// is still the latest, nothing has answered it and no pull is running.
func (s *subscription) canFallBackLocked(seq uint64) bool {
	return !s.closed && seq == s.state.Seq && !s.received && s.pullSeq != seq
}

// endPullLocked clears the in-flight mark and reports whether the result
// of request seq is still wanted.
func (s *subscription) endPullLocked(seq uint64) bool {
	if s.pullSeq == seq {
		s.pullSeq = 0
	}
	if s.closed || seq != s.state.Seq {
		return false
	}
	s.state.PullInFlight = false
	return true
}

// resolveLocked marks the latest request answered by src. Data broadcast
// before the first request is kept but leaves the phase idle.
func (s *subscription) resolveLocked(src domain.Provenance) {
	s.fallback.Cancel()
	s.state.Source = src
	s.state.Err = nil
	if s.state.Seq == 0 {
		return
	}
	s.received = true
	s.state.Phase = domain.PhaseFulfilled
}

// failLocked marks the latest request failed unless it was already answered.
func (s *subscription) failLocked(err error) {
	if s.received {
		return
	}
	s.fallback.Cancel()
	s.state.Phase = domain.PhaseFailed
	s.state.Err = err
}

// spawnPull runs fn on the pull launcher.
func (s *subscription) spawnPull(reason string, fn func(ctx context.Context)) {
	observability.RecordFallback(string(s.kind), reason)
	s.log.WithField("reason", reason).Debug("pulling over http")
	s.opts.spawn(func() { fn(s.ctx) })
}

// record journals an applied token.
func (s *subscription) record(kind domain.UpdateKind, src domain.Provenance, tok domain.Token) {
	s.opts.recorder.Record(domain.UpdateRecord{
		SessionID:       s.sessionID,
		Subscription:    s.kind,
		Kind:            kind,
		Source:          src,
		ContractAddress: tok.ContractAddress,
		PriceUSD:        tok.PriceUSD,
		FDVUSD:          tok.FDVUSD,
		VolumeUSD:       tok.VolumeUSD,
		AppliedAt:       s.opts.clock.Now().UnixMilli(),
	})
}

func (s *subscription) applied(src domain.Provenance) {
	observability.RecordResponseApplied(string(s.kind), string(src), float64(s.opts.clock.Now().Unix()))
}

func (s *subscription) stale(src domain.Provenance) {
	observability.RecordStaleResponse(string(s.kind), string(src))
	s.log.WithField("source", src).Debug("discarded stale response")
}

// onConnection keeps the Connected flag current.
func (s *subscription) onConnection(connected bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state.Connected = connected
	s.mu.Unlock()
	s.notify()
}

// decode unmarshals a push payload, logging malformed ones.
func (s *subscription) decode(event string, raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		s.log.WithError(err).WithField("event", event).Warn("malformed push payload")
		return false
	}
	return true
}
