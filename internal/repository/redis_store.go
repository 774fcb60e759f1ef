package repository

// RedisStore keeps each auction as a hash holding its revision and a JSON
// snapshot.  Writes go through Lua scripts so the revision check and the
// write happen atomically on the Redis server, the same way the rate
// limiter does its read-modify-write.  Three sorted sets index the items:
// all items and per-owner items by creation time, and OPEN items by end
// time so the sweeper can find expired auctions without a scan.

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strconv"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/auction-marketplace/internal/clock"
    "github.com/iliyamo/auction-marketplace/internal/model"
)

var redisCreateScript = redis.NewScript(`
    -- KEYS[1] item hash, KEYS[2] all index, KEYS[3] owner index, KEYS[4] open index
    -- ARGV[1] id, ARGV[2] json, ARGV[3] created_ms, ARGV[4] ends_ms, ARGV[5] open flag
    if redis.call('EXISTS', KEYS[1]) == 1 then
        return 0
    end
    redis.call('HSET', KEYS[1], 'rev', 1, 'data', ARGV[2])
    redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
    redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
    if ARGV[5] == '1' then
        redis.call('ZADD', KEYS[4], ARGV[4], ARGV[1])
    end
    return 1
`)

var redisCASScript = redis.NewScript(`
    -- KEYS[1] item hash, KEYS[2] open index
    -- ARGV[1] expected rev, ARGV[2] new rev, ARGV[3] json, ARGV[4] id, ARGV[5] open flag, ARGV[6] ends_ms
    local rev = redis.call('HGET', KEYS[1], 'rev')
    if not rev then
        return -1
    end
    if rev ~= ARGV[1] then
        return 0
    end
    redis.call('HSET', KEYS[1], 'rev', ARGV[2], 'data', ARGV[3])
    if ARGV[5] == '1' then
        redis.call('ZADD', KEYS[2], ARGV[6], ARGV[4])
    else
        redis.call('ZREM', KEYS[2], ARGV[4])
    end
    return 1
`)

var redisDeleteScript = redis.NewScript(`
    -- KEYS[1] item hash, KEYS[2] all index, KEYS[3] owner index, KEYS[4] open index
    -- ARGV[1] expected rev, ARGV[2] id
    local rev = redis.call('HGET', KEYS[1], 'rev')
    if not rev then
        return -1
    end
    if rev ~= ARGV[1] then
        return 0
    end
    redis.call('DEL', KEYS[1])
    redis.call('ZREM', KEYS[2], ARGV[2])
    redis.call('ZREM', KEYS[3], ARGV[2])
    redis.call('ZREM', KEYS[4], ARGV[2])
    return 1
`)

// RedisStore is an AuctionStore backed by Redis.
type RedisStore struct {
    rdb    redis.UniversalClient
    prefix string
    clock  clock.Clock
}

// NewRedisStore returns a store using keys under prefix (default "auction").
func NewRedisStore(rdb redis.UniversalClient, prefix string, c clock.Clock) *RedisStore {
    if prefix == "" {
        prefix = "auction"
    }
    if c == nil {
        c = clock.System{}
    }
    return &RedisStore{rdb: rdb, prefix: prefix, clock: c}
}

func (s *RedisStore) itemKey(id string) string { return s.prefix + ":item:" + id }
func (s *RedisStore) allKey() string { return s.prefix + ":all" }
func (s *RedisStore) ownerKey(owner string) string { return s.prefix + ":owner:" + owner }
func (s *RedisStore) openKey() string { return s.prefix + ":open" }

// redisRecord is the JSON snapshot stored in the item hash.
type redisRecord struct {
    ID               string     `json:"id"`
    OwnerID          string     `json:"owner_id"`
    BasePrice        int64      `json:"base_price_cents"`
    StartTime        time.Time  `json:"start_time"`
    EndTime          time.Time  `json:"end_time"`
    State            string     `json:"state"`
    CurrentPrice     int64      `json:"current_price_cents"`
    CurrentBidderID  string     `json:"current_bidder_id,omitempty"`
    PaymentReference string     `json:"payment_ref,omitempty"`
    Title            string     `json:"title"`
    Description      string     `json:"description"`
    ImageRef         string     `json:"image_ref,omitempty"`
    SellerUsername   string     `json:"seller_username,omitempty"`
    SellerContact    string     `json:"seller_contact,omitempty"`
    SellerEmail      string     `json:"seller_email,omitempty"`
    CreatedAt        time.Time  `json:"created_at"`
    UpdatedAt        time.Time  `json:"updated_at"`
    ClosedAt         *time.Time `json:"closed_at,omitempty"`
    PaidAt           *time.Time `json:"paid_at,omitempty"`
}

func encodeRecord(a model.AuctionItem) ([]byte, error) {
    return json.Marshal(redisRecord{
        ID: a.ID, OwnerID: a.OwnerID, BasePrice: a.BasePrice,
        StartTime: a.StartTime, EndTime: a.EndTime, State: string(a.State),
        CurrentPrice: a.CurrentPrice, CurrentBidderID: a.CurrentBidderID, PaymentReference: a.PaymentReference,
        Title: a.Title, Description: a.Description, ImageRef: a.ImageRef,
        SellerUsername: a.Seller.Username, SellerContact: a.Seller.ContactNumber, SellerEmail: a.Seller.Email,
        CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt, ClosedAt: a.ClosedAt, PaidAt: a.PaidAt,
    })
}

func decodeRecord(data string, rev int64) (model.AuctionItem, error) {
    var r redisRecord
    if err := json.Unmarshal([]byte(data), &r); err != nil {
        return model.AuctionItem{}, err
    }
    return model.AuctionItem{
        ID: r.ID, OwnerID: r.OwnerID, BasePrice: r.BasePrice,
        StartTime: r.StartTime, EndTime: r.EndTime, State: model.AuctionState(r.State),
        CurrentPrice: r.CurrentPrice, CurrentBidderID: r.CurrentBidderID, PaymentReference: r.PaymentReference,
        Revision: rev,
        Title: r.Title, Description: r.Description, ImageRef: r.ImageRef,
        Seller:    model.SellerInfo{Username: r.SellerUsername, ContactNumber: r.SellerContact, Email: r.SellerEmail},
        CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, ClosedAt: r.ClosedAt, PaidAt: r.PaidAt,
    }, nil
}

func openFlag(a model.AuctionItem) string {
    if a.State == model.StateOpen {
        return "1"
    }
    return "0"
}

func (s *RedisStore) Get(ctx context.Context, id string) (model.AuctionItem, error) {
    vals, err := s.rdb.HMGet(ctx, s.itemKey(id), "rev", "data").Result()
    if err != nil {
        return model.AuctionItem{}, unavailable("get auction", err)
    }
    return s.fromHash(vals)
}

func (s *RedisStore) fromHash(vals []interface{}) (model.AuctionItem, error) {
    if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
        return model.AuctionItem{}, ErrNotFound
    }
    revStr, _ := vals[0].(string)
    data, _ := vals[1].(string)
    rev, err := strconv.ParseInt(revStr, 10, 64)
    if err != nil {
        return model.AuctionItem{}, unavailable("decode auction", err)
    }
    a, err := decodeRecord(data, rev)
    if err != nil {
        return model.AuctionItem{}, unavailable("decode auction", err)
    }
    return a, nil
}

func (s *RedisStore) Create(ctx context.Context, item model.AuctionItem) (string, error) {
    a := prepareCreate(item, s.clock.Now())
    data, err := encodeRecord(a)
    if err != nil {
        return "", unavailable("encode auction", err)
    }
    keys := []string{s.itemKey(a.ID), s.allKey(), s.ownerKey(a.OwnerID), s.openKey()}
    res, err := redisCreateScript.Run(ctx, s.rdb, keys,
        a.ID, data, a.CreatedAt.UnixMilli(), a.EndTime.UnixMilli(), openFlag(a)).Int64()
    if err != nil {
        return "", unavailable("create auction", err)
    }
    if res == 0 {
        return "", ErrConflict
    }
    return a.ID, nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, id string, expectedRevision int64, fn Mutator) (model.AuctionItem, error) {
    current, err := s.Get(ctx, id)
    if err != nil {
        return model.AuctionItem{}, err
    }
    if current.Revision != expectedRevision {
        return model.AuctionItem{}, ErrConflict
    }
    next, err := applyMutator(current, fn, s.clock.Now())
    if err != nil {
        return model.AuctionItem{}, err
    }
    data, err := encodeRecord(next)
    if err != nil {
        return model.AuctionItem{}, unavailable("encode auction", err)
    }
    keys := []string{s.itemKey(id), s.openKey()}
    res, err := redisCASScript.Run(ctx, s.rdb, keys,
        expectedRevision, next.Revision, data, id, openFlag(next), next.EndTime.UnixMilli()).Int64()
    if err != nil {
        return model.AuctionItem{}, unavailable("update auction", err)
    }
    switch res {
    case 1:
        return next, nil
    case -1:
        return model.AuctionItem{}, ErrNotFound
    default:
        return model.AuctionItem{}, ErrConflict
    }
}

func (s *RedisStore) Delete(ctx context.Context, id string, expectedRevision int64) error {
    current, err := s.Get(ctx, id)
    if err != nil {
        return err
    }
    keys := []string{s.itemKey(id), s.allKey(), s.ownerKey(current.OwnerID), s.openKey()}
    res, err := redisDeleteScript.Run(ctx, s.rdb, keys, expectedRevision, id).Int64()
    if err != nil {
        return unavailable("delete auction", err)
    }
    switch res {
    case 1:
        return nil
    case -1:
        return ErrNotFound
    default:
        return ErrConflict
    }
}

func (s *RedisStore) List(ctx context.Context) ([]model.AuctionItem, error) {
    ids, err := s.rdb.ZRange(ctx, s.allKey(), 0, -1).Result()
    if err != nil {
        return nil, unavailable("list auctions", err)
    }
    return s.loadMany(ctx, ids, nil)
}

func (s *RedisStore) ListByOwner(ctx context.Context, ownerID string) ([]model.AuctionItem, error) {
    ids, err := s.rdb.ZRange(ctx, s.ownerKey(ownerID), 0, -1).Result()
    if err != nil {
        return nil, unavailable("list auctions by owner", err)
    }
    return s.loadMany(ctx, ids, nil)
}

func (s *RedisStore) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]model.AuctionItem, error) {
    by := &redis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(now.UnixMilli(), 10)}
    if limit > 0 {
        by.Count = int64(limit)
    }
    ids, err := s.rdb.ZRangeByScore(ctx, s.openKey(), by).Result()
    if err != nil {
        return nil, unavailable("list expired auctions", err)
    }
    return s.loadMany(ctx, ids, func(a model.AuctionItem) bool {
        return a.State == model.StateOpen && a.Expired(now)
    })
}

// loadMany fetches the given ids in one pipeline.  Ids whose hash vanished
// between the index read and the fetch are skipped.
func (s *RedisStore) loadMany(ctx context.Context, ids []string, keep func(model.AuctionItem) bool) ([]model.AuctionItem, error) {
    result := []model.AuctionItem{}
    if len(ids) == 0 {
        return result, nil
    }
    pipe := s.rdb.Pipeline()
    cmds := make([]*redis.SliceCmd, len(ids))
    for i, id := range ids {
        cmds[i] = pipe.HMGet(ctx, s.itemKey(id), "rev", "data")
    }
    if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
        return nil, unavailable("load auctions", err)
    }
    for i, cmd := range cmds {
        a, err := s.fromHash(cmd.Val())
        if errors.Is(err, ErrNotFound) {
            continue
        }
        if err != nil {
            return nil, fmt.Errorf("auction %s: %w", ids[i], err)
        }
        if keep == nil || keep(a) {
            result = append(result, a)
        }
    }
    return result, nil
}
