package view

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-dashboard-sync/internal/domain"
	"token-dashboard-sync/internal/storage"
	"token-dashboard-sync/internal/storage/memory"
	"token-dashboard-sync/internal/tokensync"
)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
)

func TestDetail_OpenSavesLastViewed(t *testing.T) {
	store := memory.NewLastViewedStore()
	src := newFakeSource(token(addrA, "AAA"))
	vc := NewContext()
	opts := testOptions(newFakeChannel(false), src, vc)
	opts.LastViewed = store
	clock := withStepClock(&opts)
	v := NewDetail(opts)

	require.NoError(t, v.Open(context.Background(), addrA))
	clock.fire()
	snap, ok := v.Snapshot()
	require.True(t, ok)
	require.NotNil(t, snap.Token)
	assert.Equal(t, domain.PhaseFulfilled, snap.State.Phase)
	assert.Equal(t, DetailName, vc.Active())

	require.NoError(t, v.Close())
	assert.Empty(t, vc.Active())

	got, err := store.Load(context.Background(), storage.DefaultProfile)
	require.NoError(t, err)
	assert.Equal(t, addrA, got)
}

func TestDetail_EmptyAddressRecoversLastViewed(t *testing.T) {
	store := memory.NewLastViewedStore()
	require.NoError(t, store.Save(context.Background(), "desk", addrB))

	src := newFakeSource(token(addrA, "AAA"), token(addrB, "BBB"))
	opts := testOptions(newFakeChannel(false), src, NewContext())
	opts.LastViewed = store
	opts.Profile = "desk"
	clock := withStepClock(&opts)
	v := NewDetail(opts)

	require.NoError(t, v.Open(context.Background(), ""))
	defer v.Close()
	clock.fire()

	snap, ok := v.Snapshot()
	require.True(t, ok)
	assert.Equal(t, addrB, snap.Address)
	require.NotNil(t, snap.Token)
	assert.Equal(t, "BBB", snap.Token.Name)
}

func TestDetail_EmptyAddressWithoutHistory(t *testing.T) {
	vc := NewContext()
	opts := testOptions(newFakeChannel(false), newFakeSource(), vc)
	opts.LastViewed = memory.NewLastViewedStore()
	v := NewDetail(opts)

	err := v.Open(context.Background(), "")
	var invalid *tokensync.InvalidInputError
	require.True(t, errors.As(err, &invalid))
	assert.Empty(t, vc.Active())

	_, ok := v.Snapshot()
	assert.False(t, ok)
}

func TestDetail_EmptyAddressWithoutStore(t *testing.T) {
	v := NewDetail(testOptions(newFakeChannel(false), newFakeSource(), NewContext()))
	assert.True(t, errors.Is(v.Open(context.Background(), ""), tokensync.ErrInvalidInput))
}

func TestDetail_NotFoundIsNotSaved(t *testing.T) {
	store := memory.NewLastViewedStore()
	opts := testOptions(newFakeChannel(false), newFakeSource(), NewContext())
	opts.LastViewed = store
	clock := withStepClock(&opts)
	v := NewDetail(opts)

	require.NoError(t, v.Open(context.Background(), addrA))
	clock.fire()
	snap, _ := v.Snapshot()
	assert.Equal(t, domain.PhaseFailed, snap.State.Phase)
	assert.True(t, errors.Is(snap.State.Err, tokensync.ErrNotFound))
	require.NoError(t, v.Close())

	_, err := store.Load(context.Background(), storage.DefaultProfile)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestDetail_PushResolutionSaved(t *testing.T) {
	store := memory.NewLastViewedStore()
	ch := newFakeChannel(true)
	opts := testOptions(ch, newFakeSource(), NewContext())
	opts.LastViewed = store
	v := NewDetail(opts)

	require.NoError(t, v.Open(context.Background(), addrA))
	ch.fire(tokensync.EventTokenDetails, token(addrA, "AAA"))
	require.NoError(t, v.Close())

	got, err := store.Load(context.Background(), storage.DefaultProfile)
	require.NoError(t, err)
	assert.Equal(t, addrA, got)
	assert.Equal(t, []string{tokensync.EventGetTokenDetails}, ch.emissions())
}

func TestDetail_ExcludesDashboard(t *testing.T) {
	vc := NewContext()
	src := newFakeSource(token(addrA, "AAA"))
	d := NewDashboard(testOptions(newFakeChannel(false), src, vc))
	v := NewDetail(testOptions(newFakeChannel(false), src, vc))
	ctx := context.Background()

	require.NoError(t, v.Open(ctx, addrA))
	assert.True(t, errors.Is(d.Open(ctx, domain.DefaultListQuery()), ErrViewBusy))
	assert.True(t, errors.Is(v.Open(ctx, addrA), ErrAlreadyOpen))

	require.NoError(t, v.Close())
	require.NoError(t, d.Open(ctx, domain.DefaultListQuery()))
	require.NoError(t, d.Close())
}

func TestDetail_CloseIdempotent(t *testing.T) {
	v := NewDetail(testOptions(newFakeChannel(false), newFakeSource(), NewContext()))
	require.NoError(t, v.Close())
	assert.True(t, errors.Is(v.OnChange(func() {}), ErrNotOpen))
}

func TestDetail_OpenWithCancelledContext(t *testing.T) {
	vc := NewContext()
	v := NewDetail(testOptions(newFakeChannel(false), newFakeSource(token(addrA, "AAA")), vc))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(v.Open(ctx, addrA), context.Canceled))
	_, ok := v.Snapshot()
	assert.False(t, ok)
	assert.Empty(t, vc.Active())
}
