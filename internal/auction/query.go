package auction

import (
	"context"
	"errors"

	"github.com/iliyamo/auction-marketplace/internal/model"
)

// Queries serves read-only projections.  Every read passes through the
// supervisor first so an auction past its end time is never returned as
// Open.
type Queries struct {
	*deps
	supervisor *Supervisor
}

// GetByID returns a single item.
func (q *Queries) GetByID(ctx context.Context, id string) (model.AuctionItem, error) {
	item, err := q.store.Get(ctx, id)
	if err != nil {
		return model.AuctionItem{}, err
	}
	return q.supervisor.refreshView(ctx, item)
}

// ListAll returns every item ordered by creation time.
func (q *Queries) ListAll(ctx context.Context) ([]model.AuctionItem, error) {
	items, err := q.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return q.refreshAll(ctx, items)
}

// ListByOwner returns the items listed by ownerID.
func (q *Queries) ListByOwner(ctx context.Context, ownerID string) ([]model.AuctionItem, error) {
	items, err := q.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return q.refreshAll(ctx, items)
}

func (q *Queries) refreshAll(ctx context.Context, items []model.AuctionItem) ([]model.AuctionItem, error) {
	out := make([]model.AuctionItem, 0, len(items))
	for _, it := range items {
		fresh, err := q.supervisor.refreshView(ctx, it)
		if errors.Is(err, ErrNotFound) {
			// deleted since the list was read
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, fresh)
	}
	return out, nil
}
