package auction

import (
	"context"
	"strings"
	"time"

	"github.com/iliyamo/auction-marketplace/internal/model"
	"github.com/iliyamo/auction-marketplace/internal/queue"
)

// Listings creates, edits and withdraws auction listings on behalf of
// their owner.
type Listings struct {
	*deps
	supervisor *Supervisor
}

// CreateInput is what a seller supplies to put an item up for auction.
type CreateInput struct {
	OwnerID     string
	BasePrice   int64
	StartTime   time.Time
	EndTime     time.Time
	Title       string
	Description string
	ImageRef    string
	Seller      model.SellerInfo
}

// ListingPatch carries the listing fields an owner may change.  Nil
// fields are left as they are.  Prices and times are fixed once listed.
type ListingPatch struct {
	Title       *string
	Description *string
	ImageRef    *string
	Seller      *model.SellerInfo
}

// CreateAuction validates in and stores a new Open auction with no bids.
func (l *Listings) CreateAuction(ctx context.Context, in CreateInput) (model.AuctionItem, error) {
	// every backend stores millisecond timestamps
	in.StartTime = in.StartTime.UTC().Truncate(time.Millisecond)
	in.EndTime = in.EndTime.UTC().Truncate(time.Millisecond)
	switch {
	case in.OwnerID == "":
		return model.AuctionItem{}, invalid("owner id is required")
	case in.BasePrice <= 0:
		return model.AuctionItem{}, invalid("base price must be positive")
	case in.StartTime.IsZero() || in.EndTime.IsZero():
		return model.AuctionItem{}, invalid("start and end time are required")
	case !in.StartTime.Before(in.EndTime):
		return model.AuctionItem{}, invalid("start time must be before end time")
	case !in.EndTime.After(l.clock.Now()):
		return model.AuctionItem{}, invalid("end time must be in the future")
	case strings.TrimSpace(in.Title) == "":
		return model.AuctionItem{}, invalid("title is required")
	}

	id, err := l.store.Create(ctx, model.AuctionItem{
		OwnerID:     in.OwnerID,
		BasePrice:   in.BasePrice,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		State:       model.StateOpen,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		ImageRef:    in.ImageRef,
		Seller:      in.Seller,
	})
	if err != nil {
		return model.AuctionItem{}, err
	}
	item, err := l.store.Get(ctx, id)
	if err != nil {
		return model.AuctionItem{}, err
	}
	l.log.Info().Str("auction_id", id).Str("owner", in.OwnerID).Int64("base_price", in.BasePrice).
		Time("ends_at", item.EndTime).Msg("auction created")
	l.publish(ctx, queue.KindAuctionCreated, item, in.OwnerID, 0)
	return item, nil
}

// UpdateListing changes the descriptive fields of an Open auction owned by
// ownerID.  An auction past its end time is closed first and then refuses
// the edit with ErrListingLocked.
func (l *Listings) UpdateListing(ctx context.Context, ownerID, id string, patch ListingPatch) (model.AuctionItem, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return model.AuctionItem{}, invalid("title cannot be empty")
	}
	var result model.AuctionItem
	err := l.retry.withRetry(ctx, l.logConflict("update", id), func(ctx context.Context, _ int) error {
		item, err := l.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if item.OwnerID != ownerID {
			return ErrForbidden
		}
		if item, err = l.supervisor.Refresh(ctx, item); err != nil {
			return err
		}
		if item.State != model.StateOpen {
			return ErrListingLocked
		}
		updated, err := l.store.CompareAndSwap(ctx, id, item.Revision, func(it *model.AuctionItem) error {
			if patch.Title != nil {
				it.Title = strings.TrimSpace(*patch.Title)
			}
			if patch.Description != nil {
				it.Description = *patch.Description
			}
			if patch.ImageRef != nil {
				it.ImageRef = *patch.ImageRef
			}
			if patch.Seller != nil {
				it.Seller = *patch.Seller
			}
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
	return result, nil
}

// DeleteAuction withdraws an auction that is still Open, has not expired
// and has no bids.  Once someone has bid, the listing stays.  An expired
// auction is closed rather than deleted.
func (l *Listings) DeleteAuction(ctx context.Context, ownerID, id string) error {
	var deleted model.AuctionItem
	err := l.retry.withRetry(ctx, l.logConflict("delete", id), func(ctx context.Context, _ int) error {
		item, err := l.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if item.OwnerID != ownerID {
			return ErrForbidden
		}
		if item, err = l.supervisor.Refresh(ctx, item); err != nil {
			return err
		}
		if item.State != model.StateOpen || item.HasBids() || item.Expired(l.clock.Now()) {
			return ErrNotDeletable
		}
		if err := l.store.Delete(ctx, id, item.Revision); err != nil {
			return err
		}
		deleted = item
		return nil
	})
	if err != nil {
		return err
	}
	l.log.Info().Str("auction_id", id).Str("owner", ownerID).Msg("auction deleted")
	l.publish(ctx, queue.KindAuctionDeleted, deleted, ownerID, 0)
	return nil
}
