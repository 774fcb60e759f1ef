package config

import (
    "strings"
    "time"
)

// Bucket keys accepted by BID_RATE_LIMIT_KEY.
const (
    BidKeyPrincipalAuction = "principal_auction" // one bucket per bidder per auction
    BidKeyPrincipal        = "principal"         // one bucket per bidder across auctions
    BidKeyAuction          = "auction"           // one shared bucket per auction
)

// BidRateLimitConfig bounds how often a bidder may submit bids.  A bucket
// holds Burst bids and regains one every RefillEvery.
type BidRateLimitConfig struct {
    Enabled     bool
    Burst       int
    RefillEvery time.Duration
    Key         string
    Prefix      string
}

func LoadBidRateLimitConfig() BidRateLimitConfig {
    cfg := BidRateLimitConfig{
        Enabled:     envBool("BID_RATE_LIMIT_ENABLED", true),
        Burst:       envInt("BID_RATE_LIMIT_BURST", 5),
        RefillEvery: envDur("BID_RATE_LIMIT_REFILL_EVERY", 2*time.Second),
        Key:         strings.ToLower(envStr("BID_RATE_LIMIT_KEY", BidKeyPrincipalAuction)),
        Prefix:      envStr("BID_RATE_LIMIT_PREFIX", "bidrl"),
    }
    if cfg.Burst < 1 {
        cfg.Burst = 1
    }
    if cfg.RefillEvery <= 0 {
        cfg.RefillEvery = 2 * time.Second
    }
    switch cfg.Key {
    case BidKeyPrincipalAuction, BidKeyPrincipal, BidKeyAuction:
    default:
        cfg.Key = BidKeyPrincipalAuction
    }
    return cfg
}

// TTL is how long an idle bucket is kept; by then it has refilled anyway.
func (c BidRateLimitConfig) TTL() time.Duration {
    return time.Duration(c.Burst+1) * c.RefillEvery
}
