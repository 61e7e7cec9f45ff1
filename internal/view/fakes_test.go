package view

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/tokenapi"
	"token-dashboard-sync/internal/tokensync"
	"token-dashboard-sync/internal/transport"
)

type fakeChannel struct {
	registry *transport.Registry

	mu        sync.Mutex
	connected bool
	emitted   []string
}

func newFakeChannel(connected bool) *fakeChannel {
	return &fakeChannel{registry: transport.NewRegistry(), connected: connected}
}

func (c *fakeChannel) Connect(context.Context) error { return nil }

func (c *fakeChannel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeChannel) Emit(event string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return transport.ErrNotConnected
	}
	c.emitted = append(c.emitted, event)
	return nil
}

func (c *fakeChannel) Subscribe(event string, h transport.Handler) transport.ListenerID {
	return c.registry.Subscribe(event, h)
}

func (c *fakeChannel) Unsubscribe(event string, id transport.ListenerID) {
	c.registry.Unsubscribe(event, id)
}

func (c *fakeChannel) Close() error { return nil }

func (c *fakeChannel) emissions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.emitted...)
}

func (c *fakeChannel) fire(event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	c.registry.Dispatch(event, raw)
}

type fakeSource struct {
	mu         sync.Mutex
	tokens     map[string]domain.Token
	listCalls  []domain.ListQuery
	boardCalls int
}

func newFakeSource(tokens ...domain.Token) *fakeSource {
	s := &fakeSource{tokens: make(map[string]domain.Token)}
	for _, t := range tokens {
		s.tokens[t.ContractAddress] = t
	}
	return s
}

func (s *fakeSource) ListTokens(_ context.Context, q domain.ListQuery) (*domain.TokenListPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls = append(s.listCalls, q)
	page := &domain.TokenListPage{Query: q, TotalPages: 3}
	for _, t := range s.tokens {
		page.Tokens = append(page.Tokens, t)
	}
	return page, nil
}

func (s *fakeSource) GetToken(_ context.Context, address string) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[address]
	if !ok {
		return nil, tokenapi.ErrNotFound
	}
	return &t, nil
}

func (s *fakeSource) GlobalTopTokens(context.Context) (*domain.Leaderboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boardCalls++
	var board domain.Leaderboard
	for _, t := range s.tokens {
		tok := t
		board.TopMarketCap = &tok
		board.TopVolume = &tok
		break
	}
	return &board, nil
}

func (s *fakeSource) calls() (list []domain.ListQuery, board int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ListQuery(nil), s.listCalls...), s.boardCalls
}

func token(address, name string) domain.Token {
	return domain.Token{
		ContractAddress: address,
		Name:            name,
		Symbol:          name,
		PriceUSD:        decimal.NewFromInt(1),
		FDVUSD:          decimal.NewFromInt(1000),
		VolumeUSD:       decimal.NewFromInt(10),
	}
}

func testOptions(ch transport.Channel, src tokensync.Source, vc *Context) Options {
	logger, _ := logtest.NewNullLogger()
	return Options{
		Channel: ch,
		Source:  src,
		Context: vc,
		Logger:  logrus.NewEntry(logger),
		SyncOptions: []tokensync.Option{
			tokensync.WithSpawn(func(f func()) { f() }),
		},
	}
}

// stepClock runs armed timers only when fired.
type stepClock struct {
	mu     sync.Mutex
	timers []*stepTimer
}

type stepTimer struct {
	mu   sync.Mutex
	fn   func()
	done bool
}

func (t *stepTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (c *stepClock) Now() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

func (c *stepClock) AfterFunc(_ time.Duration, f func()) tokensync.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &stepTimer{fn: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs every timer that is still armed.
func (c *stepClock) fire() {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()

	for _, t := range timers {
		if t.Stop() {
			t.fn()
		}
	}
}

// withStepClock makes opts use a clock whose timers fire on demand.
func withStepClock(opts *Options) *stepClock {
	clock := &stepClock{}
	opts.SyncOptions = append(opts.SyncOptions, tokensync.WithClock(clock))
	return clock
}
