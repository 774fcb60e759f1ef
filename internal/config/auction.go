package config

import "time"

// AuctionConfig tunes the concurrency loop and the expiry sweeper.
type AuctionConfig struct {
    MaxAttempts     int           // compare-and-swap attempts per operation
    RetryBackoff    time.Duration // first backoff between attempts
    RetryMaxBackoff time.Duration // cap for the doubled backoff
    SweepInterval   time.Duration // how often expired auctions are closed eagerly
    SweepBatch      int           // max auctions closed per sweep, 0 = no cap
}

func LoadAuctionConfig() AuctionConfig {
    cfg := AuctionConfig{
        MaxAttempts:     envInt("AUCTION_MAX_ATTEMPTS", 5),
        RetryBackoff:    envDur("AUCTION_RETRY_BACKOFF", 2*time.Millisecond),
        RetryMaxBackoff: envDur("AUCTION_RETRY_MAX_BACKOFF", 50*time.Millisecond),
        SweepInterval:   envDur("AUCTION_SWEEP_INTERVAL", 30*time.Second),
        SweepBatch:      envInt("AUCTION_SWEEP_BATCH", 100),
    }
    if cfg.MaxAttempts < 1 { cfg.MaxAttempts = 1 }
    if cfg.RetryBackoff < 0 { cfg.RetryBackoff = 0 }
    if cfg.RetryMaxBackoff < cfg.RetryBackoff { cfg.RetryMaxBackoff = cfg.RetryBackoff }
    if cfg.SweepInterval <= 0 { cfg.SweepInterval = 30 * time.Second }
    if cfg.SweepBatch < 0 { cfg.SweepBatch = 0 }
    return cfg
}
