package auction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/auction-marketplace/internal/model"
	"github.com/iliyamo/auction-marketplace/internal/queue"
	"github.com/iliyamo/auction-marketplace/internal/repository"
)

func TestCloseExpiredBeforeEndIsNoop(t *testing.T) {
	f := newFixture(t, fastRetry())
	item := f.listItem(t, "seller", 100, time.Hour)

	f.clock.Set(item.EndTime.Add(-time.Nanosecond))
	got, err := f.svc.Supervisor.CloseExpired(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateOpen, got.State)
	assert.Equal(t, item.Revision, got.Revision)
}

func TestCloseExpiredAtEndTime(t *testing.T) {
	f := newFixture(t, fastRetry())
	ctx := context.Background()
	item := f.listItem(t, "seller", 100, time.Hour)

	f.clock.Set(item.EndTime)
	got, err := f.svc.Supervisor.CloseExpired(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateClosed, got.State)
	require.NotNil(t, got.ClosedAt)
	assert.True(t, got.ClosedAt.Equal(item.EndTime))
	assert.Empty(t, got.CurrentBidderID)

	again, err := f.svc.Supervisor.CloseExpired(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Revision, again.Revision)

	closedEvents := 0
	for _, k := range f.pub.kinds() {
		if k == queue.KindAuctionClosed {
			closedEvents++
		}
	}
	assert.Equal(t, 1, closedEvents)
}

func TestCloseExpiredLeavesPaidAlone(t *testing.T) {
	f := newFixture(t, fastRetry())
	ctx := context.Background()
	item := f.listItem(t, "seller", 100, time.Hour)
	_, err := f.svc.Engine.PlaceBid(ctx, item.ID, "ann", 150)
	require.NoError(t, err)

	f.clock.Set(item.EndTime.Add(time.Minute))
	_, err = f.svc.Settlement.ConfirmPayment(ctx, item.ID, "ann", "pay_1")
	require.NoError(t, err)

	got, err := f.svc.Supervisor.CloseExpired(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatePaid, got.State)
}

func TestCloseExpiredMissing(t *testing.T) {
	f := newFixture(t, fastRetry())
	_, err := f.svc.Supervisor.CloseExpired(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// A bid sneaks in right before the close commits; the close retries
// and keeps the newer bid.
func TestCloseRetryKeepsConcurrentBid(t *testing.T) {
	c := newFixture(t, fastRetry()).clock
	inner := repository.NewMemoryStore(c)
	hs := &hookStore{AuctionStore: inner}
	f := newFixtureWithStore(t, hs, c, fastRetry())
	ctx := context.Background()
	item := f.listItem(t, "seller", 100, time.Hour)

	f.clock.Set(item.EndTime)
	hs.mu.Lock()
	hs.beforeCAS = func(id string, expected int64) {
		// simulate a bid committed by a node whose clock was still behind
		_, err := inner.CompareAndSwap(ctx, id, expected, func(it *model.AuctionItem) error {
			it.CurrentPrice = 300
			it.CurrentBidderID = "late"
			return nil
		})
		require.NoError(t, err)
	}
	hs.mu.Unlock()

	got, err := f.svc.Supervisor.CloseExpired(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateClosed, got.State)
	assert.Equal(t, int64(300), got.CurrentPrice)
	assert.Equal(t, "late", got.CurrentBidderID)
	assert.Equal(t, 2, hs.calls())
}

func TestSweepClosesOnlyExpired(t *testing.T) {
	f := newFixture(t, fastRetry())
	ctx := context.Background()
	short := f.listItem(t, "seller", 100, time.Minute)
	short2 := f.listItem(t, "seller", 100, 2*time.Minute)
	long := f.listItem(t, "seller", 100, time.Hour)

	f.clock.Set(t0.Add(5 * time.Minute))
	n, err := f.svc.Supervisor.Sweep(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for id, want := range map[string]model.AuctionState{
		short.ID:  model.StateClosed,
		short2.ID: model.StateClosed,
		long.ID:   model.StateOpen,
	} {
		got, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.State, id)
	}

	n, err = f.svc.Supervisor.Sweep(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepRespectsLimit(t *testing.T) {
	f := newFixture(t, fastRetry())
	for i := 0; i < 5; i++ {
		f.listItem(t, "seller", 100, time.Minute)
	}
	f.clock.Set(t0.Add(time.Hour))
	n, err := f.svc.Supervisor.Sweep(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, fastRetry())
	item := f.listItem(t, "seller", 100, time.Minute)
	f.clock.Set(t0.Add(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Supervisor.Run(ctx, 5*time.Millisecond, 10) }()

	require.Eventually(t, func() bool {
		got, err := f.store.Get(context.Background(), item.ID)
		return err == nil && got.State == model.StateClosed
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
