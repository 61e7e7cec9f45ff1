// Package main runs a headless token dashboard: it opens the dashboard or a
// token detail view against a token data service, keeps it in sync over the
// push channel with HTTP fallback and logs every change.
//
// Usage:
//
//	tokenwatch -config tokenwatch.yml
//	tokenwatch -view detail -address 0xABC... -use-memory
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"token-dashboard-sync/internal/config"
	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/format"
	"token-dashboard-sync/internal/journal"
	"token-dashboard-sync/internal/logger"
	"token-dashboard-sync/internal/observability"
	"token-dashboard-sync/internal/storage"
	chstore "token-dashboard-sync/internal/storage/clickhouse"
	"token-dashboard-sync/internal/storage/memory"
	"token-dashboard-sync/internal/storage/migrations"
	pgstore "token-dashboard-sync/internal/storage/postgres"
	"token-dashboard-sync/internal/tokenapi"
	"token-dashboard-sync/internal/tokensync"
	"token-dashboard-sync/internal/transport"
	"token-dashboard-sync/internal/view"
)

// App holds the running components.
type App struct {
	cfg     *config.Config
	log     *logrus.Entry
	channel *transport.SocketChannel
	stores  *stores
	vc      *view.Context

	dashboard *view.Dashboard
	detail    *view.Detail
	started   time.Time
}

type stores struct {
	lastViewed storage.LastViewedStore
	journal    storage.UpdateJournal
	writer     *journal.Writer
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	configPath := flag.String("config", os.Getenv("TOKENWATCH_CONFIG"), "YAML configuration file")
	wsEndpoint := flag.String("ws-endpoint", "", "Socket.IO endpoint (overrides config)")
	apiURL := flag.String("api-url", "", "Token data service base URL (overrides config)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	httpAddr := flag.String("http-addr", "", "Health/metrics/status HTTP address (overrides config)")
	profile := flag.String("profile", "", "Last-viewed profile key (overrides config)")
	viewName := flag.String("view", view.DashboardName, "View to open: dashboard or detail")
	address := flag.String("address", "", "Contract address for the detail view (empty recovers the last viewed)")
	sortField := flag.String("sort", string(domain.SortMarketCap), "Dashboard sort field")
	direction := flag.String("direction", string(domain.Descending), "Dashboard sort direction")
	page := flag.Int("page", 1, "Dashboard page")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *wsEndpoint, *apiURL, *postgresDSN, *clickhouseDSN, *httpAddr, *profile)
	if *useMemory {
		cfg.Storage.PostgresDSN = ""
		cfg.Storage.ClickHouseDSN = ""
	}

	base, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithComponent(base, "tokenwatch")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := createStores(ctx, cfg, base)
	if err != nil {
		log.WithError(err).Fatal("failed to create stores")
	}
	defer cleanup()

	app, err := newApp(cfg, base, st)
	if err != nil {
		log.WithError(err).Fatal("failed to set up")
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()

		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Warn("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}()

	if cfg.Service.HTTPAddr != "" {
		go app.startHTTPServer(ctx, cfg.Service.HTTPAddr)
	}

	q := domain.ListQuery{Sort: domain.SortField(*sortField), Direction: domain.SortDirection(*direction), Page: *page}
	if err := app.Run(ctx, *viewName, q, *address); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("tokenwatch stopped with error")
		cleanup()
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// applyFlags overrides config values with explicitly set flags.
func applyFlags(cfg *config.Config, ws, api, pg, ch, httpAddr, profile string) {
	if ws != "" {
		cfg.Socket.Endpoint = ws
	}
	if api != "" {
		cfg.API.BaseURL = api
	}
	if pg != "" {
		cfg.Storage.PostgresDSN = pg
	}
	if ch != "" {
		cfg.Storage.ClickHouseDSN = ch
	}
	if httpAddr != "" {
		cfg.Service.HTTPAddr = httpAddr
	}
	if profile != "" {
		cfg.Service.Profile = profile
	}
}

// createStores picks PostgreSQL and ClickHouse when their DSNs are set,
// in-memory stores otherwise.
func createStores(ctx context.Context, cfg *config.Config, base *logrus.Logger) (*stores, func(), error) {
	st := &stores{}
	var closers []func()
	cleanup := func() {
		if st.writer != nil {
			st.writer.Stop()
		}
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Storage.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		st.lastViewed = pgstore.NewLastViewedStore(pool)
	} else {
		st.lastViewed = memory.NewLastViewedStore()
	}

	if !cfg.Journal.Enabled {
		return st, cleanup, nil
	}

	if cfg.Storage.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		st.journal = chstore.NewUpdateJournalStore(conn)
	} else {
		st.journal = memory.NewUpdateJournal()
	}

	st.writer = journal.NewWriter(st.journal, cfg.JournalWriterConfig(), logger.WithComponent(base, "journal"))
	if err := st.writer.Start(); err != nil {
		cleanup()
		return nil, nil, err
	}
	return st, cleanup, nil
}

func newApp(cfg *config.Config, base *logrus.Logger, st *stores) (*App, error) {
	endpoint, err := transport.SocketURL(cfg.Socket.Endpoint)
	if err != nil {
		return nil, err
	}
	channel := transport.NewSocketChannel(endpoint, cfg.TransportConfig(), logger.WithComponent(base, "transport"))
	channel.Subscribe(transport.EventConnect, func(json.RawMessage) { observability.SetPushConnected(true) })
	channel.Subscribe(transport.EventDisconnect, func(json.RawMessage) { observability.SetPushConnected(false) })

	clientOpts := []tokenapi.ClientOption{
		tokenapi.WithTimeout(cfg.API.Timeout),
		tokenapi.WithMaxRetries(cfg.API.MaxRetries),
	}
	if cfg.API.RateLimit > 0 {
		clientOpts = append(clientOpts, tokenapi.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst))
	}
	source := tokenapi.NewHTTPClient(cfg.API.BaseURL, clientOpts...)

	syncOpts := []tokensync.Option{tokensync.WithFallbackTimeout(cfg.Sync.FallbackTimeout)}
	if st.writer != nil {
		syncOpts = append(syncOpts, tokensync.WithRecorder(st.writer))
	}

	vc := view.NewContext()
	viewOpts := view.Options{
		Channel:     channel,
		Source:      source,
		Context:     vc,
		LastViewed:  st.lastViewed,
		Profile:     cfg.Service.Profile,
		SyncOptions: syncOpts,
		Logger:      logger.WithComponent(base, "view"),
	}

	return &App{
		cfg:       cfg,
		log:       logger.WithComponent(base, "tokenwatch"),
		channel:   channel,
		stores:    st,
		vc:        vc,
		dashboard: view.NewDashboard(viewOpts),
		detail:    view.NewDetail(viewOpts),
		started:   time.Now(),
	}, nil
}

// Run connects, opens the requested view and logs changes until ctx ends.
func (a *App) Run(ctx context.Context, viewName string, q domain.ListQuery, address string) error {
	defer a.channel.Close()

	if err := a.channel.Connect(ctx); err != nil {
		// Reconnection continues in the background; pulls cover the gap.
		a.log.WithError(err).Warn("push channel not connected, using HTTP until it is")
	}

	changed := make(chan struct{}, 1)
	onChange := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	var render func()
	switch viewName {
	case view.DashboardName:
		if err := a.dashboard.Open(ctx, q); err != nil {
			return fmt.Errorf("open dashboard: %w", err)
		}
		defer a.dashboard.Close()
		if err := a.dashboard.OnChange(onChange); err != nil {
			return err
		}
		render = a.renderDashboard
	case view.DetailName:
		if err := a.detail.Open(ctx, address); err != nil {
			var invalid *tokensync.InvalidInputError
			if errors.As(err, &invalid) {
				return fmt.Errorf("open detail: %w", err)
			}
			a.log.WithError(err).Warn("detail request failed")
		}
		defer a.detail.Close()
		if err := a.detail.OnChange(onChange); err != nil {
			return err
		}
		render = a.renderDetail
	default:
		return fmt.Errorf("unknown view %q", viewName)
	}

	render()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
			render()
		}
	}
}

func (a *App) renderDashboard() {
	snap := a.dashboard.Snapshot()
	st := snap.List.State
	entry := a.log.WithFields(logrus.Fields{
		"phase":     st.Phase.String(),
		"source":    st.Source,
		"connected": st.Connected,
		"sort":      snap.List.Query.Sort,
		"direction": snap.List.Query.Direction,
		"page":      fmt.Sprintf("%d/%d", snap.List.Query.Page, snap.List.Page.TotalPages),
	})
	if st.Err != nil {
		entry.WithError(st.Err).Warn("token list")
	} else {
		entry.Info("token list")
	}
	for i, tok := range snap.List.Page.Tokens {
		a.log.Infof("  %2d. %s", i+1, format.Token(tok))
	}

	board := snap.Leaderboard.Board
	a.log.WithField("phase", snap.Leaderboard.State.Phase.String()).Infof(
		"top market cap: %s | top volume: %s",
		format.TokenPtr(board.TopMarketCap), format.TokenPtr(board.TopVolume))
}

func (a *App) renderDetail() {
	snap, ok := a.detail.Snapshot()
	if !ok {
		return
	}
	entry := a.log.WithFields(logrus.Fields{
		"address":   snap.Address,
		"pool":      snap.PoolAddress,
		"phase":     snap.State.Phase.String(),
		"source":    snap.State.Source,
		"connected": snap.State.Connected,
	})
	switch {
	case snap.State.Err != nil:
		entry.WithError(snap.State.Err).Warn("token detail")
	case snap.Token != nil:
		entry.Info(format.Token(*snap.Token))
	default:
		entry.Info("token detail loading")
	}
}

func (a *App) startHTTPServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", a.handleStatus)

	// Update journal lookups
	mux.HandleFunc("/journal", a.handleJournal)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.log.WithField("addr", addr).Info("starting HTTP server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		a.log.WithError(err).Error("HTTP server error")
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status         string               `json:"status"`
	Uptime         string               `json:"uptime"`
	ActiveView     string               `json:"active_view"`
	PushConnected  bool                 `json:"push_connected"`
	Subscriptions  []SubscriptionStatus `json:"subscriptions"`
	JournalWritten int                  `json:"journal_written"`
	JournalDropped int                  `json:"journal_dropped"`
}

// SubscriptionStatus summarizes one synchronizer in /status.
type SubscriptionStatus struct {
	Kind   string `json:"kind"`
	Phase  string `json:"phase"`
	Source string `json:"source,omitempty"`
	Seq    uint64 `json:"seq"`
	Error  string `json:"error,omitempty"`
}

func subscriptionStatus(kind domain.SubscriptionKind, st domain.SyncState) SubscriptionStatus {
	s := SubscriptionStatus{Kind: string(kind), Phase: st.Phase.String(), Source: string(st.Source), Seq: st.Seq}
	if st.Err != nil {
		s.Error = st.Err.Error()
	}
	return s
}

// handleStatus returns sync status as JSON.
func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:        "running",
		Uptime:        time.Since(a.started).String(),
		ActiveView:    a.vc.Active(),
		PushConnected: a.channel.IsConnected(),
	}
	if snap := a.dashboard.Snapshot(); snap.Open {
		resp.Subscriptions = append(resp.Subscriptions,
			subscriptionStatus(domain.KindList, snap.List.State),
			subscriptionStatus(domain.KindLeaderboard, snap.Leaderboard.State))
	}
	if snap, ok := a.detail.Snapshot(); ok {
		resp.Subscriptions = append(resp.Subscriptions, subscriptionStatus(domain.KindDetail, snap.State))
	}
	if a.stores.writer != nil {
		resp.JournalWritten, resp.JournalDropped = a.stores.writer.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// JournalEntry is one applied update in the /journal response.
type JournalEntry struct {
	Session         string `json:"session"`
	Subscription    string `json:"subscription"`
	Kind            string `json:"kind"`
	Source          string `json:"source"`
	ContractAddress string `json:"contract_address"`
	PriceUSD        string `json:"price_usd"`
	FDVUSD          string `json:"fdv_usd"`
	VolumeUSD       string `json:"volume_usd"`
	AppliedAt       int64  `json:"applied_at"`
}

// handleJournal returns the journaled updates of one token (?address=) or one
// subscription session (?session=), oldest first.
func (a *App) handleJournal(w http.ResponseWriter, r *http.Request) {
	if a.stores.journal == nil {
		http.Error(w, "update journal disabled", http.StatusNotFound)
		return
	}

	var (
		records []*domain.UpdateRecord
		err     error
	)
	address, session := r.URL.Query().Get("address"), r.URL.Query().Get("session")
	switch {
	case address != "":
		records, err = a.stores.journal.GetByAddress(r.Context(), address)
	case session != "":
		records, err = a.stores.journal.GetBySession(r.Context(), session)
	default:
		http.Error(w, "address or session required", http.StatusBadRequest)
		return
	}
	if err != nil {
		a.log.WithError(err).Warn("journal lookup failed")
		http.Error(w, "journal lookup failed", http.StatusInternalServerError)
		return
	}

	entries := make([]JournalEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, JournalEntry{
			Session:         rec.SessionID,
			Subscription:    string(rec.Subscription),
			Kind:            string(rec.Kind),
			Source:          string(rec.Source),
			ContractAddress: rec.ContractAddress,
			PriceUSD:        rec.PriceUSD.String(),
			FDVUSD:          rec.FDVUSD.String(),
			VolumeUSD:       rec.VolumeUSD.String(),
			AppliedAt:       rec.AppliedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// loadEnvFile loads .env into the environment without overriding set variables.
func loadEnvFile() {
	_ = godotenv.Load()
}
