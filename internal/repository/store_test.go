package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/auction-marketplace/internal/clock"
	"github.com/iliyamo/auction-marketplace/internal/database"
	"github.com/iliyamo/auction-marketplace/internal/model"
)

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type storeFactory func(t *testing.T, c clock.Clock) AuctionStore

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, c clock.Clock) AuctionStore { return NewMemoryStore(c) },
		"sqlite": func(t *testing.T, c clock.Clock) AuctionStore {
			db, err := database.OpenSQLite(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			require.NoError(t, database.Migrate(context.Background(), db, database.DialectSQLite))
			return NewSQLStore(db, c)
		},
		"redis": func(t *testing.T, c clock.Clock) AuctionStore {
			addr := os.Getenv("REDIS_ADDR")
			if addr == "" {
				t.Skip("REDIS_ADDR not set")
			}
			rdb := redis.NewClient(&redis.Options{Addr: addr})
			t.Cleanup(func() { _ = rdb.Close() })
			prefix := "auctiontest:" + t.Name()
			t.Cleanup(func() {
				ctx := context.Background()
				keys, _ := rdb.Keys(ctx, prefix+":*").Result()
				if len(keys) > 0 {
					rdb.Del(ctx, keys...)
				}
			})
			return NewRedisStore(rdb, prefix, c)
		},
	}
}

func newItem(owner string, end time.Time) model.AuctionItem {
	return model.AuctionItem{
		OwnerID:     owner,
		BasePrice:   100,
		StartTime:   base,
		EndTime:     end,
		Title:       "Vintage camera",
		Description: "Works fine",
		Seller:      model.SellerInfo{Username: owner, ContactNumber: "555-0100", Email: owner + "@example.com"},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s AuctionStore, c *clock.Manual)) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			c := clock.NewManual(base)
			fn(t, factory(t, c), c)
		})
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s AuctionStore, c *clock.Manual) {
		ctx := context.Background()
		id, err := s.Create(ctx, newItem("alice", base.Add(time.Hour)))
		require.NoError(t, err)
		require.NotEmpty(t, id)

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, "alice", got.OwnerID)
		assert.Equal(t, model.StateOpen, got.State)
		assert.Equal(t, int64(1), got.Revision)
		assert.Equal(t, int64(0), got.CurrentPrice)
		assert.Empty(t, got.CurrentBidderID)
		assert.True(t, got.EndTime.Equal(base.Add(time.Hour)))
		assert.Equal(t, "alice@example.com", got.Seller.Email)

		_, err = s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStoreCompareAndSwap(t *testing.T) {
	forEachStore(t, func(t *testing.T, s AuctionStore, c *clock.Manual) {
		ctx := context.Background()
		id, err := s.Create(ctx, newItem("alice", base.Add(time.Hour)))
		require.NoError(t, err)

		updated, err := s.CompareAndSwap(ctx, id, 1, func(it *model.AuctionItem) error {
			it.CurrentPrice = 150
			it.CurrentBidderID = "bob"
			it.Revision = 99 // ignored
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Revision)
		assert.Equal(t, int64(150), updated.CurrentPrice)

		// stale revision leaves the record untouched
		_, err = s.CompareAndSwap(ctx, id, 1, func(it *model.AuctionItem) error {
			it.CurrentPrice = 999
			return nil
		})
		assert.ErrorIs(t, err, ErrConflict)

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(150), got.CurrentPrice)
		assert.Equal(t, "bob", got.CurrentBidderID)
		assert.Equal(t, int64(2), got.Revision)

		// mutator errors abort without writing
		boom := errors.New("boom")
		_, err = s.CompareAndSwap(ctx, id, 2, func(it *model.AuctionItem) error {
			it.CurrentPrice = 1
			return boom
		})
		assert.ErrorIs(t, err, boom)
		got, err = s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Revision)

		_, err = s.CompareAndSwap(ctx, "missing", 1, func(*model.AuctionItem) error { return nil })
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStoreDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s AuctionStore, c *clock.Manual) {
		ctx := context.Background()
		id, err := s.Create(ctx, newItem("alice", base.Add(time.Hour)))
		require.NoError(t, err)

		assert.ErrorIs(t, s.Delete(ctx, id, 7), ErrConflict)
		require.NoError(t, s.Delete(ctx, id, 1))
		_, err = s.Get(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, id, 1), ErrNotFound)
	})
}

func TestStoreListings(t *testing.T) {
	forEachStore(t, func(t *testing.T, s AuctionStore, c *clock.Manual) {
		ctx := context.Background()
		a1, err := s.Create(ctx, newItem("alice", base.Add(time.Minute)))
		require.NoError(t, err)
		c.Advance(time.Second)
		b1, err := s.Create(ctx, newItem("bob", base.Add(2*time.Minute)))
		require.NoError(t, err)
		c.Advance(time.Second)
		a2, err := s.Create(ctx, newItem("alice", base.Add(time.Hour)))
		require.NoError(t, err)

		all, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{a1, b1, a2}, ids(all))

		mine, err := s.ListByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{a1, a2}, ids(mine))

		none, err := s.ListByOwner(ctx, "carol")
		require.NoError(t, err)
		assert.Empty(t, none)

		expired, err := s.ListExpiredOpen(ctx, base.Add(5*time.Minute), 0)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{a1, b1}, ids(expired))

		limited, err := s.ListExpiredOpen(ctx, base.Add(5*time.Minute), 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		// closed items drop out of the expiry index
		_, err = s.CompareAndSwap(ctx, a1, 1, func(it *model.AuctionItem) error {
			it.State = model.StateClosed
			return nil
		})
		require.NoError(t, err)
		expired, err = s.ListExpiredOpen(ctx, base.Add(5*time.Minute), 0)
		require.NoError(t, err)
		assert.Equal(t, []string{b1}, ids(expired))
	})
}

func TestStoreConcurrentCompareAndSwap(t *testing.T) {
	forEachStore(t, func(t *testing.T, s AuctionStore, c *clock.Manual) {
		ctx := context.Background()
		id, err := s.Create(ctx, newItem("alice", base.Add(time.Hour)))
		require.NoError(t, err)

		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					cur, err := s.Get(ctx, id)
					if err != nil {
						t.Error(err)
						return
					}
					_, err = s.CompareAndSwap(ctx, id, cur.Revision, func(it *model.AuctionItem) error {
						it.CurrentPrice++
						return nil
					})
					if errors.Is(err, ErrConflict) {
						continue
					}
					if err != nil {
						t.Error(err)
					}
					return
				}
			}()
		}
		wg.Wait()

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(workers), got.CurrentPrice)
		assert.Equal(t, int64(workers+1), got.Revision)
	})
}

func ids(items []model.AuctionItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
