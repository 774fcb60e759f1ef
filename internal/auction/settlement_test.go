package auction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/auction-marketplace/internal/model"
)

func TestConfirmPaymentRequiresClosed(t *testing.T) {
	f := newFixture(t, fastRetry())
	ctx := context.Background()
	item := f.listItem(t, "seller", 100, time.Hour)
	_, err := f.svc.Engine.PlaceBid(ctx, item.ID, "ann", 150)
	require.NoError(t, err)

	_, err = f.svc.Settlement.ConfirmPayment(ctx, item.ID, "ann", "pay_1")
	assert.ErrorIs(t, err, ErrNotSettleable)

	stored, err := f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateOpen, stored.State)
	assert.Empty(t, stored.PaymentReference)
}

func TestConfirmPaymentWrongPayer(t *testing.T) {
	f := newFixture(t, fastRetry())
	ctx := context.Background()
	item := f.listItem(t, "seller", 100, time.Hour)
	_, err := f.svc.Engine.PlaceBid(ctx, item.ID, "ann", 150)
	require.NoError(t, err)
	f.clock.Set(item.EndTime)

	_, err = f.svc.Settlement.ConfirmPayment(ctx, item.ID, "ben", "pay_1")
	assert.ErrorIs(t, err, ErrNotWinningBidder)
	_, err = f.svc.Settlement.ConfirmPayment(ctx, item.ID, "seller", "pay_1")
	assert.ErrorIs(t, err, ErrNotWinningBidder)

	// the payment attempt closed the expired item
	stored, err := f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateClosed, stored.State)
}

func TestConfirmPaymentNoWinner(t *testing.T) {
	f := newFixture(t, fastRetry())
	ctx := context.Background()
	item := f.listItem(t, "seller", 100, time.Hour)
	f.clock.Set(item.EndTime.Add(time.Second))

	_, err := f.svc.Settlement.ConfirmPayment(ctx, item.ID, "ann", "pay_1")
	assert.ErrorIs(t, err, ErrNotWinningBidder)
	_, err = f.svc.Settlement.ConfirmPayment(ctx, item.ID, "", "pay_1")
	assert.ErrorIs(t, err, ErrNotWinningBidder)
}

func TestConfirmPaymentIsNotReentrant(t *testing.T) {
	f := newFixture(t, fastRetry())
	ctx := context.Background()
	item := f.listItem(t, "seller", 100, time.Hour)
	_, err := f.svc.Engine.PlaceBid(ctx, item.ID, "ann", 150)
	require.NoError(t, err)
	f.clock.Set(item.EndTime.Add(time.Second))

	paid, err := f.svc.Settlement.ConfirmPayment(ctx, item.ID, "ann", "pay_1")
	require.NoError(t, err)

	_, err = f.svc.Settlement.ConfirmPayment(ctx, item.ID, "ann", "pay_2")
	assert.ErrorIs(t, err, ErrNotSettleable)

	stored, err := f.store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "pay_1", stored.PaymentReference)
	assert.Equal(t, paid.Revision, stored.Revision)
}

func TestConfirmPaymentValidation(t *testing.T) {
	f := newFixture(t, fastRetry())
	_, err := f.svc.Settlement.ConfirmPayment(context.Background(), "x", "ann", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.Settlement.ConfirmPayment(context.Background(), "x", "ann", "pay")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentConfirmationsSettleOnce(t *testing.T) {
	f := newFixture(t, RetryPolicy{MaxAttempts: 20, InitialDelay: 100 * time.Microsecond, MaxDelay: time.Millisecond})
	ctx := context.Background()
	item := f.listItem(t, "seller", 100, time.Hour)
	_, err := f.svc.Engine.PlaceBid(ctx, item.ID, "ann", 150)
	require.NoError(t, err)
	f.clock.Set(item.EndTime)

	const n = 10
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := f.svc.Settlement.ConfirmPayment(ctx, item.ID, "ann", "pay")
			errs <- err
		}()
	}
	ok := 0
	for i := 0; i < n; i++ {
		err := <-errs
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrNotSettleable)
	}
	assert.Equal(t, 1, ok)
}
