package repository

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/iliyamo/auction-marketplace/internal/clock"
    "github.com/iliyamo/auction-marketplace/internal/model"
)

// MemoryStore is an in-process AuctionStore.  It is used by tests and by
// STORE_BACKEND=memory for local runs.  Each CompareAndSwap is atomic with
// respect to every other call on the same store; items are copied in and
// out so callers never share memory with the stored record.
type MemoryStore struct {
    mu    sync.RWMutex
    items map[string]model.AuctionItem
    clock clock.Clock
}

// NewMemoryStore returns an empty MemoryStore.  A nil clock defaults to
// the system clock.
func NewMemoryStore(c clock.Clock) *MemoryStore {
    if c == nil {
        c = clock.System{}
    }
    return &MemoryStore{items: make(map[string]model.AuctionItem), clock: c}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (model.AuctionItem, error) {
    if err := ctx.Err(); err != nil {
        return model.AuctionItem{}, err
    }
    s.mu.RLock()
    defer s.mu.RUnlock()
    it, ok := s.items[id]
    if !ok {
        return model.AuctionItem{}, ErrNotFound
    }
    return cloneItem(it), nil
}

func (s *MemoryStore) Create(ctx context.Context, item model.AuctionItem) (string, error) {
    if err := ctx.Err(); err != nil {
        return "", err
    }
    item = prepareCreate(item, s.clock.Now())
    s.mu.Lock()
    defer s.mu.Unlock()
    if _, exists := s.items[item.ID]; exists {
        return "", ErrConflict
    }
    s.items[item.ID] = cloneItem(item)
    return item.ID, nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, id string, expectedRevision int64, fn Mutator) (model.AuctionItem, error) {
    if err := ctx.Err(); err != nil {
        return model.AuctionItem{}, err
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    current, ok := s.items[id]
    if !ok {
        return model.AuctionItem{}, ErrNotFound
    }
    if current.Revision != expectedRevision {
        return model.AuctionItem{}, ErrConflict
    }
    next, err := applyMutator(cloneItem(current), fn, s.clock.Now())
    if err != nil {
        return model.AuctionItem{}, err
    }
    s.items[id] = cloneItem(next)
    return next, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string, expectedRevision int64) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    current, ok := s.items[id]
    if !ok {
        return ErrNotFound
    }
    if current.Revision != expectedRevision {
        return ErrConflict
    }
    delete(s.items, id)
    return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]model.AuctionItem, error) {
    return s.filter(ctx, 0, func(model.AuctionItem) bool { return true })
}

func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]model.AuctionItem, error) {
    return s.filter(ctx, 0, func(it model.AuctionItem) bool { return it.OwnerID == ownerID })
}

func (s *MemoryStore) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]model.AuctionItem, error) {
    return s.filter(ctx, limit, func(it model.AuctionItem) bool {
        return it.State == model.StateOpen && it.Expired(now)
    })
}

func (s *MemoryStore) filter(ctx context.Context, limit int, keep func(model.AuctionItem) bool) ([]model.AuctionItem, error) {
    if err := ctx.Err(); err != nil {
        return nil, err
    }
    s.mu.RLock()
    out := make([]model.AuctionItem, 0, len(s.items))
    for _, it := range s.items {
        if keep(it) {
            out = append(out, cloneItem(it))
        }
    }
    s.mu.RUnlock()
    sort.Slice(out, func(i, j int) bool {
        if out[i].CreatedAt.Equal(out[j].CreatedAt) {
            return out[i].ID < out[j].ID
        }
        return out[i].CreatedAt.Before(out[j].CreatedAt)
    })
    if limit > 0 && len(out) > limit {
        out = out[:limit]
    }
    return out, nil
}

// cloneItem deep-copies the pointer fields of an item.
func cloneItem(it model.AuctionItem) model.AuctionItem {
    if it.ClosedAt != nil {
        t := *it.ClosedAt
        it.ClosedAt = &t
    }
    if it.PaidAt != nil {
        t := *it.PaidAt
        it.PaidAt = &t
    }
    return it
}
