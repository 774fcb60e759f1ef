package auction

import (
	"context"

	"github.com/iliyamo/auction-marketplace/internal/model"
	"github.com/iliyamo/auction-marketplace/internal/queue"
)

// Settlement moves a Closed auction to Paid exactly once.
type Settlement struct {
	*deps
	supervisor *Supervisor
}

// ConfirmPayment records paymentRef against the item if it is Closed and
// payerID is the recorded winner.  Payment is not re-entrant: a second
// confirmation, with the same or another reference, finds the item Paid
// and fails with ErrNotSettleable.  An Open item whose end time has passed
// is closed first.
//
// Errors: ErrNotFound, ErrNotSettleable, ErrNotWinningBidder,
// ErrContention, ErrUnavailable or a context error.
func (s *Settlement) ConfirmPayment(ctx context.Context, itemID, payerID, paymentRef string) (model.AuctionItem, error) {
	if paymentRef == "" {
		return model.AuctionItem{}, invalid("payment reference is required")
	}
	var result model.AuctionItem
	err := s.retry.withRetry(ctx, s.logConflict("settle", itemID), func(ctx context.Context, _ int) error {
		item, err := s.store.Get(ctx, itemID)
		if err != nil {
			return err
		}
		if item, err = s.supervisor.Refresh(ctx, item); err != nil {
			return err
		}
		if item.State != model.StateClosed {
			return ErrNotSettleable
		}
		if item.CurrentBidderID == "" || payerID != item.CurrentBidderID {
			return ErrNotWinningBidder
		}
		now := s.clock.Now()
		updated, err := s.store.CompareAndSwap(ctx, itemID, item.Revision, func(it *model.AuctionItem) error {
			it.State = model.StatePaid
			it.PaymentReference = paymentRef
			it.PaidAt = &now
			return nil
		})
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return model.AuctionItem{}, err
	}
	s.log.Info().Str("auction_id", itemID).Str("payer", payerID).Str("payment_ref", paymentRef).Msg("auction paid")
	s.publish(ctx, queue.KindAuctionPaid, result, payerID, 0)
	return result, nil
}
