package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
)

func TestLoadAuctionConfigDefaults(t *testing.T) {
    cfg := LoadAuctionConfig()
    assert.Equal(t, 5, cfg.MaxAttempts)
    assert.Equal(t, 2*time.Millisecond, cfg.RetryBackoff)
    assert.Equal(t, 50*time.Millisecond, cfg.RetryMaxBackoff)
    assert.Equal(t, 30*time.Second, cfg.SweepInterval)
    assert.Equal(t, 100, cfg.SweepBatch)
}

func TestLoadAuctionConfigClamps(t *testing.T) {
    t.Setenv("AUCTION_MAX_ATTEMPTS", "0")
    t.Setenv("AUCTION_RETRY_BACKOFF", "10ms")
    t.Setenv("AUCTION_RETRY_MAX_BACKOFF", "1ms")
    t.Setenv("AUCTION_SWEEP_INTERVAL", "bogus")
    cfg := LoadAuctionConfig()
    assert.Equal(t, 1, cfg.MaxAttempts)
    assert.Equal(t, 10*time.Millisecond, cfg.RetryMaxBackoff)
    assert.Equal(t, 30*time.Second, cfg.SweepInterval)
}

func TestLoadEventsConfig(t *testing.T) {
    t.Setenv("EVENTS_BACKEND", "NATS")
    t.Setenv("EVENTS_CONSUMER_ENABLED", "true")
    t.Setenv("RABBITMQ_URL", "")
    t.Setenv("AMQP_URL", "amqp://u:p@broker:5672/")
    cfg := LoadEventsConfig()
    assert.Equal(t, EventsNATS, cfg.Backend)
    assert.Equal(t, "amqp://u:p@broker:5672/", cfg.AMQPURL)
    assert.False(t, cfg.ConsumerEnabled, "consumer only runs with rabbitmq")
    assert.Equal(t, 1024, cfg.Buffer)

    t.Setenv("EVENTS_BACKEND", "kafka")
    assert.Equal(t, EventsNone, LoadEventsConfig().Backend)

    t.Setenv("EVENTS_BACKEND", "rabbitmq")
    t.Setenv("EVENTS_BUFFER", "0")
    cfg = LoadEventsConfig()
    assert.True(t, cfg.ConsumerEnabled)
    assert.Equal(t, 1, cfg.Buffer)
}

func TestLoad(t *testing.T) {
    t.Setenv("APP_ENV", "test")
    t.Setenv("APP_PORT", "8080")
    t.Setenv("JWT_SECRET", "s")
    t.Setenv("STORE_BACKEND", "SQLite")
    t.Setenv("SQLITE_PATH", ":memory:")
    cfg := Load()
    assert.Equal(t, BackendSQLite, cfg.Store)
    assert.Equal(t, ":memory:", cfg.SQLitePath)
    assert.Equal(t, 60, cfg.AccessTTLMin)
    assert.Empty(t, cfg.DBHost)
}

func TestLoadBidRateLimitConfig(t *testing.T) {
    cfg := LoadBidRateLimitConfig()
    assert.True(t, cfg.Enabled)
    assert.Equal(t, 5, cfg.Burst)
    assert.Equal(t, 2*time.Second, cfg.RefillEvery)
    assert.Equal(t, BidKeyPrincipalAuction, cfg.Key)
    assert.Equal(t, "bidrl", cfg.Prefix)
    assert.Equal(t, 12*time.Second, cfg.TTL())

    t.Setenv("BID_RATE_LIMIT_BURST", "0")
    t.Setenv("BID_RATE_LIMIT_REFILL_EVERY", "-1s")
    t.Setenv("BID_RATE_LIMIT_KEY", "ip_user_route")
    cfg = LoadBidRateLimitConfig()
    assert.Equal(t, 1, cfg.Burst)
    assert.Equal(t, 2*time.Second, cfg.RefillEvery)
    assert.Equal(t, BidKeyPrincipalAuction, cfg.Key)

    t.Setenv("BID_RATE_LIMIT_KEY", "Principal")
    t.Setenv("BID_RATE_LIMIT_ENABLED", "no")
    cfg = LoadBidRateLimitConfig()
    assert.Equal(t, BidKeyPrincipal, cfg.Key)
    assert.False(t, cfg.Enabled)
}

func TestEnvHelpers(t *testing.T) {
    t.Setenv("X_BOOL", "off")
    t.Setenv("X_INT", "nope")
    assert.False(t, envBool("X_BOOL", true))
    assert.Equal(t, 7, envInt("X_INT", 7))
    assert.Equal(t, "d", envStr("X_MISSING", "d"))
}
