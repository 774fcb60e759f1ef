package auction

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/auction-marketplace/internal/model"
	"github.com/iliyamo/auction-marketplace/internal/queue"
)

// Supervisor owns the Open -> Closed transition.  It is the only place that
// decides whether an auction's time is up; the engine, settlement and
// queries all ask it instead of comparing end times themselves.  It never
// performs Closed -> Paid.
type Supervisor struct {
	*deps
}

// CloseExpired moves the item to Closed if it is Open and its end time has
// passed.  It is idempotent: an item that is already Closed or Paid, or
// that has not expired yet, is returned unchanged.
//
// When the compare-and-swap loses to a concurrent writer (typically a last
// second bid) the item is re-read and the expiry re-evaluated against the
// clock at the time of the fresh read, so a newer state is never clobbered.
func (s *Supervisor) CloseExpired(ctx context.Context, id string) (model.AuctionItem, error) {
	var result model.AuctionItem
	closed := false
	err := s.retry.withRetry(ctx, s.logConflict("close", id), func(ctx context.Context, _ int) error {
		item, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if item.State != model.StateOpen || !item.Expired(now) {
			result = item
			return nil
		}
		updated, err := s.store.CompareAndSwap(ctx, id, item.Revision, func(it *model.AuctionItem) error {
			it.State = model.StateClosed
			it.ClosedAt = &now
			return nil
		})
		if err != nil {
			return err
		}
		result, closed = updated, true
		return nil
	})
	if err != nil {
		return model.AuctionItem{}, err
	}
	if closed {
		s.log.Info().Str("auction_id", id).Int64("price", result.CurrentPrice).
			Str("winner", result.CurrentBidderID).Msg("auction closed")
		s.publish(ctx, queue.KindAuctionClosed, result, result.CurrentBidderID, 0)
	}
	return result, nil
}

// Refresh applies the lazy Open -> Closed check to an item that was just
// read.  Items that do not need closing are returned as they are without
// touching the store.
func (s *Supervisor) Refresh(ctx context.Context, item model.AuctionItem) (model.AuctionItem, error) {
	if item.State != model.StateOpen || !item.Expired(s.clock.Now()) {
		return item, nil
	}
	return s.CloseExpired(ctx, item.ID)
}

// refreshView is Refresh for read paths.  If closing keeps losing to
// concurrent writers the caller still gets a Closed view of the item, so an
// expired auction is never reported as Open.
func (s *Supervisor) refreshView(ctx context.Context, item model.AuctionItem) (model.AuctionItem, error) {
	fresh, err := s.Refresh(ctx, item)
	if errors.Is(err, ErrContention) {
		item.State = model.StateClosed
		return item, nil
	}
	return fresh, err
}

// Sweep closes up to limit expired auctions that are still Open and returns
// how many it closed.  A failure on one item is logged and does not stop
// the sweep; only a failure to list candidates is returned.
func (s *Supervisor) Sweep(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	candidates, err := s.store.ListExpiredOpen(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, c := range candidates {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		item, err := s.CloseExpired(ctx, c.ID)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.log.Warn().Err(err).Str("auction_id", c.ID).Msg("sweep: close failed")
			}
			continue
		}
		if item.State == model.StateClosed {
			closed++
		}
	}
	return closed, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context, interval time.Duration, batch int) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.log.Info().Dur("interval", interval).Int("batch", batch).Msg("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("expiry sweeper stopped")
			return nil
		case <-ticker.C:
			n, err := s.Sweep(ctx, batch)
			if err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Msg("sweep failed")
				continue
			}
			if n > 0 {
				s.log.Info().Int("closed", n).Msg("sweep closed expired auctions")
			}
		}
	}
}
