package middleware

import (
    "context"
    "fmt"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog/log"

    "github.com/iliyamo/auction-marketplace/internal/config"
)

// bidBucketScript takes one token from the bucket at KEYS[1].  Tokens are
// refilled continuously, one per ARGV[3] ms, up to ARGV[2].  It returns
// {allowed, remaining, retry_after_ms}.
var bidBucketScript = redis.NewScript(`
local now_ms = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local every_ms = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'at_ms')
local tokens = tonumber(state[1]) or burst
local at = tonumber(state[2]) or now_ms

local gained = math.floor(math.max(0, now_ms - at) / every_ms)
if gained > 0 then
  tokens = math.min(burst, tokens + gained)
  at = at + gained * every_ms
end
if tokens >= burst then
  at = now_ms
end

local retry_ms = 0
local allowed = 0
if tokens > 0 then
  tokens = tokens - 1
  allowed = 1
else
  retry_ms = every_ms - (now_ms - at)
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'at_ms', at)
redis.call('PEXPIRE', KEYS[1], ttl_ms)
return {allowed, tokens, retry_ms}
`)

// bidBucket takes one bid token for key.
type bidBucket interface {
    take(ctx context.Context, key string, now time.Time) (allowed bool, remaining int64, retry time.Duration, err error)
}

type redisBidBucket struct {
    rdb *redis.Client
    cfg config.BidRateLimitConfig
}

func (b redisBidBucket) take(ctx context.Context, key string, now time.Time) (bool, int64, time.Duration, error) {
    res, err := bidBucketScript.Run(ctx, b.rdb, []string{key},
        now.UnixMilli(), b.cfg.Burst, b.cfg.RefillEvery.Milliseconds(), b.cfg.TTL().Milliseconds(),
    ).Int64Slice()
    if err != nil {
        return false, 0, 0, err
    }
    if len(res) != 3 {
        return false, 0, 0, fmt.Errorf("bid bucket: unexpected reply %v", res)
    }
    return res[0] == 1, res[1], time.Duration(res[2]) * time.Millisecond, nil
}

// NewBidLimiter limits bid submissions with a token bucket kept in Redis,
// keyed by bidder and auction unless cfg.Key says otherwise.  It runs after
// JWTAuth.  When Redis is absent or errors the bid is let through; the
// auction engine stays the source of truth for admission.
func NewBidLimiter(cfg config.BidRateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return bidLimiter(cfg, redisBidBucket{rdb: rdb, cfg: cfg}, time.Now)
}

func bidLimiter(cfg config.BidRateLimitConfig, bucket bidBucket, now func() time.Time) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := bidBucketKey(cfg, c)
            allowed, remaining, retry, err := bucket.take(c.Request().Context(), key, now())
            if err != nil {
                log.Warn().Err(err).Str("key", key).Msg("bid limiter: redis error, admitting")
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
            if allowed {
                return next(c)
            }

            secs := retryAfterSeconds(retry)
            h.Set("Retry-After", strconv.Itoa(secs))
            log.Info().Str("key", key).Dur("retry", retry).Msg("bid limiter: throttled")
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "error":               "too many bids, retry later",
                "retry_after_seconds": secs,
            })
        }
    }
}

// retryAfterSeconds rounds up so a client never retries early.
func retryAfterSeconds(d time.Duration) int {
    if d <= 0 {
        return 1
    }
    return int((d + time.Second - 1) / time.Second)
}

// bidBucketKey names the bucket for a bid on /auctions/:id/bids.
func bidBucketKey(cfg config.BidRateLimitConfig, c echo.Context) string {
    principal := principalOrAnon(c)
    if principal == "anon" {
        principal = "anon@" + c.RealIP()
    }
    parts := []string{cfg.Prefix}
    switch cfg.Key {
    case config.BidKeyPrincipal:
        parts = append(parts, "principal", principal)
    case config.BidKeyAuction:
        parts = append(parts, "auction", c.Param("id"))
    default:
        parts = append(parts, "auction", c.Param("id"), "principal", principal)
    }
    return strings.Join(parts, ":")
}
