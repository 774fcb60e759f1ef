// Package auction implements the auction lifecycle: bid admission, the
// Open -> Closed transition, payment settlement and the read projections.
//
// Nothing in this package takes a lock.  Every state change is a
// read-validate-write cycle committed through the record store's
// compare-and-swap; when a concurrent writer wins, the cycle starts again
// from a fresh read, a bounded number of times.  Operations on different
// auctions never contend with each other.
package auction

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/auction-marketplace/internal/clock"
	"github.com/iliyamo/auction-marketplace/internal/model"
	"github.com/iliyamo/auction-marketplace/internal/queue"
	"github.com/iliyamo/auction-marketplace/internal/repository"
)

// EventPublisher receives an event after each committed mutation.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AuctionEvent) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, queue.AuctionEvent) error { return nil }

// Options configures a Service.  Zero values fall back to defaults.
type Options struct {
	Clock     clock.Clock
	Retry     RetryPolicy
	Publisher EventPublisher
	Logger    *zerolog.Logger
}

// deps is shared by every component of a Service.
type deps struct {
	store     repository.AuctionStore
	clock     clock.Clock
	retry     RetryPolicy
	publisher EventPublisher
	log       zerolog.Logger
}

// Service bundles the components that operate on one record store.
type Service struct {
	Engine     *Engine
	Supervisor *Supervisor
	Settlement *Settlement
	Queries    *Queries
	Listings   *Listings
}

// New wires all components around store.
func New(store repository.AuctionStore, opts Options) *Service {
	d := &deps{
		store:     store,
		clock:     opts.Clock,
		retry:     opts.Retry,
		publisher: opts.Publisher,
	}
	if d.clock == nil {
		d.clock = clock.System{}
	}
	if d.retry.MaxAttempts == 0 {
		d.retry = DefaultRetryPolicy()
	}
	if d.publisher == nil {
		d.publisher = noopPublisher{}
	}
	if opts.Logger != nil {
		d.log = opts.Logger.With().Str("component", "auction").Logger()
	} else {
		d.log = log.Logger.With().Str("component", "auction").Logger()
	}

	sup := &Supervisor{deps: d}
	return &Service{
		Engine:     &Engine{deps: d, supervisor: sup},
		Supervisor: sup,
		Settlement: &Settlement{deps: d, supervisor: sup},
		Queries:    &Queries{deps: d, supervisor: sup},
		Listings:   &Listings{deps: d, supervisor: sup},
	}
}

// publish emits ev best effort; failures are logged and never undo the
// committed change.
func (d *deps) publish(ctx context.Context, kind string, item model.AuctionItem, principal string, previous int64) {
	ev := queue.AuctionEvent{
		Kind:             kind,
		AuctionID:        item.ID,
		OwnerID:          item.OwnerID,
		PrincipalID:      principal,
		AmountCents:      item.CurrentPrice,
		PreviousCents:    previous,
		State:            string(item.State),
		Revision:         item.Revision,
		PaymentReference: item.PaymentReference,
		OccurredAt:       d.clock.Now().Format(time.RFC3339Nano),
	}
	if err := d.publisher.Publish(ctx, ev); err != nil {
		d.log.Warn().Err(err).Str("kind", kind).Str("auction_id", item.ID).Msg("publish event failed")
	}
}

func (d *deps) logConflict(op, id string) func(int) {
	return func(attempt int) {
		d.log.Debug().Str("op", op).Str("auction_id", id).Int("attempt", attempt).Msg("revision conflict, retrying")
	}
}
