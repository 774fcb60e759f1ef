package auction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/auction-marketplace/internal/clock"
	"github.com/iliyamo/auction-marketplace/internal/model"
	"github.com/iliyamo/auction-marketplace/internal/queue"
	"github.com/iliyamo/auction-marketplace/internal/repository"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.AuctionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.AuctionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

type fixture struct {
	svc   *Service
	store repository.AuctionStore
	clock *clock.Manual
	pub   *recordingPublisher
}

func newFixture(t *testing.T, retry RetryPolicy) *fixture {
	t.Helper()
	c := clock.NewManual(t0)
	return newFixtureWithStore(t, repository.NewMemoryStore(c), c, retry)
}

func newFixtureWithStore(t *testing.T, store repository.AuctionStore, c *clock.Manual, retry RetryPolicy) *fixture {
	t.Helper()
	pub := &recordingPublisher{}
	logger := zerolog.Nop()
	svc := New(store, Options{Clock: c, Retry: retry, Publisher: pub, Logger: &logger})
	return &fixture{svc: svc, store: store, clock: c, pub: pub}
}

func fastRetry() RetryPolicy { return RetryPolicy{MaxAttempts: 5} }

// listItem creates an auction starting at t0 with the given base price.
func (f *fixture) listItem(t *testing.T, owner string, basePrice int64, dur time.Duration) model.AuctionItem {
	t.Helper()
	item, err := f.svc.Listings.CreateAuction(context.Background(), CreateInput{
		OwnerID:   owner,
		BasePrice: basePrice,
		StartTime: t0,
		EndTime:   t0.Add(dur),
		Title:     "Mechanical watch",
	})
	require.NoError(t, err)
	return item
}

// hookStore lets a test run code between the engine's read and its write.
type hookStore struct {
	repository.AuctionStore
	mu        sync.Mutex
	beforeCAS func(id string, expected int64)
	casErr    error
	casCalls  int
}

func (h *hookStore) CompareAndSwap(ctx context.Context, id string, expected int64, fn repository.Mutator) (model.AuctionItem, error) {
	h.mu.Lock()
	h.casCalls++
	hook := h.beforeCAS
	h.beforeCAS = nil
	forced := h.casErr
	h.mu.Unlock()
	if hook != nil {
		hook(id, expected)
	}
	if forced != nil {
		return model.AuctionItem{}, forced
	}
	return h.AuctionStore.CompareAndSwap(ctx, id, expected, fn)
}

func (h *hookStore) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.casCalls
}
