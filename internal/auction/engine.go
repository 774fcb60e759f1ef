package auction

import (
	"context"
	"errors"

	"github.com/iliyamo/auction-marketplace/internal/model"
	"github.com/iliyamo/auction-marketplace/internal/queue"
)

// Engine admits or rejects bids.
type Engine struct {
	*deps
	supervisor *Supervisor
}

// PlaceBid validates amount against the freshest copy of the item and
// records bidderID as the high bidder if it strictly exceeds the floor.
//
// Each attempt reads the item, applies the lifecycle and floor checks and
// commits through compare-and-swap at the revision it read.  If another
// bid or a closure committed first the whole cycle is repeated, so the
// floor check always runs against the price that is current at commit
// time.  A bid that was valid against a stale price is therefore rejected
// with BidTooLowError once the higher bid is visible.
//
// Errors: ErrNotFound, *BidTooLowError, ErrAuctionEnded, ErrAuctionNotOpen,
// ErrOwnerCannotBid, ErrContention, ErrUnavailable or a context error.
func (e *Engine) PlaceBid(ctx context.Context, itemID, bidderID string, amount int64) (model.AuctionItem, error) {
	if bidderID == "" {
		return model.AuctionItem{}, invalid("bidder id is required")
	}
	var (
		result   model.AuctionItem
		previous int64
	)
	err := e.retry.withRetry(ctx, e.logConflict("bid", itemID), func(ctx context.Context, _ int) error {
		item, err := e.store.Get(ctx, itemID)
		if err != nil {
			return err
		}
		now := e.clock.Now()
		if item.Expired(now) {
			if _, cerr := e.supervisor.CloseExpired(ctx, itemID); cerr != nil {
				if errors.Is(cerr, ErrUnavailable) || ctx.Err() != nil {
					return cerr
				}
				e.log.Warn().Err(cerr).Str("auction_id", itemID).Msg("close on late bid failed")
			}
			return ErrAuctionEnded
		}
		if item.State != model.StateOpen || now.Before(item.StartTime) {
			return ErrAuctionNotOpen
		}
		if bidderID == item.OwnerID {
			return ErrOwnerCannotBid
		}
		floor := item.Floor()
		if amount <= floor {
			return &BidTooLowError{Floor: floor, Amount: amount}
		}

		updated, err := e.store.CompareAndSwap(ctx, itemID, item.Revision, func(it *model.AuctionItem) error {
			// it is the same revision that was validated above
			if amount <= it.Floor() {
				return &BidTooLowError{Floor: it.Floor(), Amount: amount}
			}
			it.CurrentPrice = amount
			it.CurrentBidderID = bidderID
			return nil
		})
		if err != nil {
			return err
		}
		result, previous = updated, item.CurrentPrice
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrContention) {
			e.log.Warn().Str("auction_id", itemID).Str("bidder", bidderID).Int64("amount", amount).
				Msg("bid gave up after repeated conflicts")
		}
		return model.AuctionItem{}, err
	}
	e.log.Debug().Str("auction_id", itemID).Str("bidder", bidderID).Int64("amount", amount).
		Int64("revision", result.Revision).Msg("bid accepted")
	e.publish(ctx, queue.KindBidAccepted, result, bidderID, previous)
	return result, nil
}
