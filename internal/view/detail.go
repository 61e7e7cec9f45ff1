package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/storage"
	"token-dashboard-sync/internal/tokensync"
)

// DetailName identifies the token detail view in the view context.
const DetailName = "detail"

const saveTimeout = 5 * time.Second

// Detail shows one token. The address of every resolved token is saved as the
// profile's last-viewed address, so a later Open without an address can
// return to it.
type Detail struct {
	opts Options
	log  *logrus.Entry

	mu      sync.Mutex
	detail  *tokensync.Detail
	release func()
	saved   string
	saves   sync.WaitGroup
}

// NewDetail creates a closed detail view.
func NewDetail(opts Options) *Detail {
	return &Detail{
		opts: opts,
		log:  opts.logger().WithField("view", DetailName),
	}
}

// Open focuses address. An empty address falls back to the last viewed one;
// with none stored Open fails with an InvalidInputError.
func (v *Detail) Open(ctx context.Context, address string) error {
	if address == "" {
		recovered, err := v.lastViewed(ctx)
		if err != nil {
			return err
		}
		address = recovered
		v.log.WithField("address", address).Info("recovered last viewed token")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	if v.detail != nil {
		v.mu.Unlock()
		return ErrAlreadyOpen
	}
	release, err := v.opts.Context.Acquire(DetailName)
	if err != nil {
		v.mu.Unlock()
		return err
	}
	det := tokensync.NewDetail(v.opts.Channel, v.opts.Source, v.opts.syncOptions(v.log)...)
	v.detail, v.release = det, release
	v.mu.Unlock()

	det.OnChange(func() { v.persist(det) })
	v.log.WithField("address", address).Info("detail opened")
	return det.RequestDetail(ctx, address)
}

// Snapshot returns the detail state; ok is false when the view is closed.
func (v *Detail) Snapshot() (snap tokensync.DetailSnapshot, ok bool) {
	v.mu.Lock()
	det := v.detail
	v.mu.Unlock()
	if det == nil {
		return tokensync.DetailSnapshot{}, false
	}
	return det.Snapshot(), true
}

// OnChange registers fn with the detail synchronizer. The view must be open.
func (v *Detail) OnChange(fn func()) error {
	v.mu.Lock()
	det := v.detail
	v.mu.Unlock()
	if det == nil {
		return ErrNotOpen
	}
	det.OnChange(fn)
	return nil
}

// Close tears down the synchronizer, waits for pending saves and releases the
// view context. Closing a closed view is a no-op.
func (v *Detail) Close() error {
	v.mu.Lock()
	det, release := v.detail, v.release
	v.detail, v.release = nil, nil
	v.mu.Unlock()

	if det == nil {
		return nil
	}
	_ = det.Close()
	v.saves.Wait()
	release()
	v.log.Info("detail closed")
	return nil
}

func (v *Detail) lastViewed(ctx context.Context) (string, error) {
	noAddress := &tokensync.InvalidInputError{
		Err: fmt.Errorf("%w: no contract address given and none viewed before", domain.ErrInvalidInput),
	}
	if v.opts.LastViewed == nil {
		return "", noAddress
	}
	address, err := v.opts.LastViewed.Load(ctx, v.opts.profile())
	if errors.Is(err, storage.ErrNotFound) {
		return "", noAddress
	}
	if err != nil {
		return "", fmt.Errorf("load last viewed address: %w", err)
	}
	return address, nil
}

// persist saves the address of a resolved token once per address. It runs
// from OnChange, so the write happens on its own goroutine.
func (v *Detail) persist(det *tokensync.Detail) {
	if v.opts.LastViewed == nil {
		return
	}
	snap := det.Snapshot()
	if snap.Token == nil {
		return
	}
	address := snap.Token.ContractAddress

	v.mu.Lock()
	if v.detail != det || domain.SameAddress(v.saved, address) {
		v.mu.Unlock()
		return
	}
	v.saved = address
	v.saves.Add(1)
	v.mu.Unlock()

	go func() {
		defer v.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := v.opts.LastViewed.Save(ctx, v.opts.profile(), address); err != nil {
			v.log.WithError(err).WithField("address", address).Warn("failed to save last viewed token")
		}
	}()
}
