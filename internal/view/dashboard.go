package view

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/tokensync"
)

// DashboardName identifies the dashboard in the view context.
const DashboardName = "dashboard"

// DashboardSnapshot combines the list and leaderboard state.
type DashboardSnapshot struct {
	Open        bool
	List        tokensync.ListSnapshot
	Leaderboard tokensync.LeaderboardSnapshot
}

// Dashboard shows one page of the token list next to the leaderboard.
type Dashboard struct {
	opts Options
	log  *logrus.Entry

	mu      sync.Mutex
	list    *tokensync.List
	board   *tokensync.Leaderboard
	release func()
}

// NewDashboard creates a closed dashboard.
func NewDashboard(opts Options) *Dashboard {
	return &Dashboard{
		opts: opts,
		log:  opts.logger().WithField("view", DashboardName),
	}
}

// Open takes the view context and requests page q plus the leaderboard.
// When a request cannot be issued the dashboard is closed again.
func (d *Dashboard) Open(ctx context.Context, q domain.ListQuery) error {
	if err := q.Validate(); err != nil {
		return &tokensync.InvalidInputError{Err: err}
	}

	d.mu.Lock()
	if d.list != nil {
		d.mu.Unlock()
		return ErrAlreadyOpen
	}
	release, err := d.opts.Context.Acquire(DashboardName)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	syncOpts := d.opts.syncOptions(d.log)
	list := tokensync.NewList(d.opts.Channel, d.opts.Source, syncOpts...)
	board := tokensync.NewLeaderboard(d.opts.Channel, d.opts.Source, syncOpts...)
	d.list, d.board, d.release = list, board, release
	d.mu.Unlock()

	d.log.WithFields(logrus.Fields{
		"sort": q.Sort, "direction": q.Direction, "page": q.Page,
	}).Info("dashboard opened")

	err = list.RequestPage(ctx, q)
	if err == nil {
		err = board.RequestLeaderboard(ctx)
	}
	if err != nil {
		_ = d.Close()
		return err
	}
	return nil
}

// OnChange registers fn with both synchronizers. The dashboard must be open.
func (d *Dashboard) OnChange(fn func()) error {
	list, board, err := d.parts()
	if err != nil {
		return err
	}
	list.OnChange(fn)
	board.OnChange(fn)
	return nil
}

// ToggleSort re-sorts the list by field.
func (d *Dashboard) ToggleSort(ctx context.Context, field domain.SortField) error {
	list, _, err := d.parts()
	if err != nil {
		return err
	}
	return list.ToggleSort(ctx, field)
}

// GoToPage moves the list to page n.
func (d *Dashboard) GoToPage(ctx context.Context, n int) error {
	list, _, err := d.parts()
	if err != nil {
		return err
	}
	return list.GoToPage(ctx, n)
}

// Refresh re-requests the current page and the leaderboard.
func (d *Dashboard) Refresh(ctx context.Context) error {
	list, board, err := d.parts()
	if err != nil {
		return err
	}
	if err := list.RequestPage(ctx, list.Snapshot().Query); err != nil {
		return err
	}
	return board.RequestLeaderboard(ctx)
}

// Snapshot returns the current state. A closed dashboard reports Open false.
func (d *Dashboard) Snapshot() DashboardSnapshot {
	list, board, err := d.parts()
	if err != nil {
		return DashboardSnapshot{}
	}
	return DashboardSnapshot{
		Open:        true,
		List:        list.Snapshot(),
		Leaderboard: board.Snapshot(),
	}
}

// Close tears down both synchronizers and releases the view context.
// Closing a closed dashboard is a no-op.
func (d *Dashboard) Close() error {
	d.mu.Lock()
	list, board, release := d.list, d.board, d.release
	d.list, d.board, d.release = nil, nil, nil
	d.mu.Unlock()

	if list == nil {
		return nil
	}
	_ = list.Close()
	_ = board.Close()
	release()
	d.log.Info("dashboard closed")
	return nil
}

func (d *Dashboard) parts() (*tokensync.List, *tokensync.Leaderboard, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.list == nil {
		return nil, nil, ErrNotOpen
	}
	return d.list, d.board, nil
}
