package tokensync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/tokenapi"
	"token-dashboard-sync/internal/transport"
)

type emission struct {
	event   string
	payload json.RawMessage
}

// fakeChannel is an in-memory transport.Channel. Fired events are dispatched
// synchronously on the calling goroutine.
type fakeChannel struct {
	registry *transport.Registry

	mu        sync.Mutex
	connected bool
	emitErr   error
	emitted   []emission
}

func newFakeChannel(connected bool) *fakeChannel {
	return &fakeChannel{registry: transport.NewRegistry(), connected: connected}
}

func (c *fakeChannel) Connect(context.Context) error {
	c.setConnected(true)
	return nil
}

func (c *fakeChannel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeChannel) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return transport.ErrNotConnected
	}
	if c.emitErr != nil {
		return c.emitErr
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.emitted = append(c.emitted, emission{event: event, payload: raw})
	return nil
}

func (c *fakeChannel) Subscribe(event string, h transport.Handler) transport.ListenerID {
	return c.registry.Subscribe(event, h)
}

func (c *fakeChannel) Unsubscribe(event string, id transport.ListenerID) {
	c.registry.Unsubscribe(event, id)
}

func (c *fakeChannel) Close() error { return nil }

func (c *fakeChannel) setConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
	if connected {
		c.registry.Dispatch(transport.EventConnect, nil)
	} else {
		c.registry.Dispatch(transport.EventDisconnect, json.RawMessage(`{"reason":"test"}`))
	}
}

func (c *fakeChannel) fire(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	c.registry.Dispatch(event, raw)
}

func (c *fakeChannel) fireRaw(event, raw string) {
	c.registry.Dispatch(event, json.RawMessage(raw))
}

func (c *fakeChannel) emissions() []emission {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]emission, len(c.emitted))
	copy(out, c.emitted)
	return out
}

// fakeSource answers pulls from canned data and counts calls.
type fakeSource struct {
	mu sync.Mutex

	pages     map[domain.ListQuery]*domain.TokenListPage
	tokens    map[string]*domain.Token
	board     *domain.Leaderboard
	err       error
	listCalls []domain.ListQuery
	getCalls  []string
	topCalls  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		pages:  make(map[domain.ListQuery]*domain.TokenListPage),
		tokens: make(map[string]*domain.Token),
	}
}

func (s *fakeSource) ListTokens(ctx context.Context, q domain.ListQuery) (*domain.TokenListPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls = append(s.listCalls, q)
	if s.err != nil {
		return nil, s.err
	}
	if p, ok := s.pages[q]; ok {
		out := p.Clone()
		out.Query = q
		return &out, nil
	}
	return &domain.TokenListPage{Tokens: []domain.Token{}, Query: q}, nil
}

func (s *fakeSource) GetToken(ctx context.Context, address string) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls = append(s.getCalls, address)
	if s.err != nil {
		return nil, s.err
	}
	tok, ok := s.tokens[address]
	if !ok {
		return nil, tokenapi.ErrNotFound
	}
	out := *tok
	return &out, nil
}

func (s *fakeSource) GlobalTopTokens(ctx context.Context) (*domain.Leaderboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topCalls++
	if s.err != nil {
		return nil, s.err
	}
	if s.board == nil {
		return &domain.Leaderboard{}, nil
	}
	out := s.board.Clone()
	return &out, nil
}

func (s *fakeSource) listCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listCalls)
}

func (s *fakeSource) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.getCalls)
}

func (s *fakeSource) topCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topCalls
}

// manualClock fires timers only when advanced.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs every due timer outside the lock.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

// pending counts timers that would still fire.
func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// deferredSpawn holds pulls until run, so tests can observe in-flight state.
type deferredSpawn struct {
	mu    sync.Mutex
	queue []func()
}

func (s *deferredSpawn) spawn(f func()) {
	s.mu.Lock()
	s.queue = append(s.queue, f)
	s.mu.Unlock()
}

func (s *deferredSpawn) runAll() {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, f := range queue {
		f()
	}
}

func syncSpawn(f func()) { f() }

type memRecorder struct {
	mu      sync.Mutex
	records []domain.UpdateRecord
}

func (r *memRecorder) Record(rec domain.UpdateRecord) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

func (r *memRecorder) all() []domain.UpdateRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.UpdateRecord, len(r.records))
	copy(out, r.records)
	return out
}

func testOptions(clock Clock, spawn func(func()), extra ...Option) []Option {
	logger, _ := logtest.NewNullLogger()
	opts := []Option{
		WithClock(clock),
		WithSpawn(spawn),
		WithLogger(logrus.NewEntry(logger)),
		WithFallbackTimeout(3 * time.Second),
	}
	return append(opts, extra...)
}

func token(address, name string, price, fdv, volume string) domain.Token {
	return domain.Token{
		ContractAddress: address,
		Name:            name,
		Symbol:          name,
		PriceUSD:        decimal.RequireFromString(price),
		FDVUSD:          decimal.RequireFromString(fdv),
		VolumeUSD:       decimal.RequireFromString(volume),
	}
}

func decodeEmission(t *testing.T, e emission) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(e.payload, &m))
	return m
}
