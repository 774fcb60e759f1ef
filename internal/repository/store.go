package repository

import (
    "context"
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/auction-marketplace/internal/model"
)

// Mutator transforms a freshly read copy of an auction.  It may return an
// error to abort the update, in which case nothing is written and the
// error is returned unchanged from CompareAndSwap.  Mutators must not
// touch ID, OwnerID or Revision; the store manages those.
type Mutator func(item *model.AuctionItem) error

// AuctionStore is durable keyed storage for auction items with per-key
// atomic compare-and-update.  CompareAndSwap is the only way to change an
// existing item; there is no blind update.
type AuctionStore interface {
    // Get returns the item or ErrNotFound.
    Get(ctx context.Context, id string) (model.AuctionItem, error)
    // Create stores a new item at revision 1 and returns its id.  An empty
    // ID is filled with a fresh UUID.
    Create(ctx context.Context, item model.AuctionItem) (string, error)
    // CompareAndSwap applies fn to a fresh copy of the item and writes it
    // back only if the stored revision still equals expectedRevision.  On
    // mismatch it returns ErrConflict without side effects.
    CompareAndSwap(ctx context.Context, id string, expectedRevision int64, fn Mutator) (model.AuctionItem, error)
    // Delete removes the item if its revision still equals expectedRevision.
    Delete(ctx context.Context, id string, expectedRevision int64) error
    // List returns every item ordered by creation time.
    List(ctx context.Context) ([]model.AuctionItem, error)
    // ListByOwner returns the items created by ownerID ordered by creation time.
    ListByOwner(ctx context.Context, ownerID string) ([]model.AuctionItem, error)
    // ListExpiredOpen returns up to limit OPEN items whose end time is at or
    // before now.  A limit <= 0 means no limit.
    ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]model.AuctionItem, error)
}

// prepareCreate fills in the identity and bookkeeping fields of a new item.
func prepareCreate(item model.AuctionItem, now time.Time) model.AuctionItem {
    if item.ID == "" {
        item.ID = uuid.NewString()
    }
    if item.State == "" {
        item.State = model.StateOpen
    }
    item.Revision = 1
    item.CreatedAt = now
    item.UpdatedAt = now
    return item
}

// applyMutator runs fn against a copy of current and enforces the fields
// the store owns.  It returns the candidate to write.
func applyMutator(current model.AuctionItem, fn Mutator, now time.Time) (model.AuctionItem, error) {
    next := current
    if err := fn(&next); err != nil {
        return model.AuctionItem{}, err
    }
    next.ID = current.ID
    next.OwnerID = current.OwnerID
    next.CreatedAt = current.CreatedAt
    next.Revision = current.Revision + 1
    next.UpdatedAt = now
    return next, nil
}
