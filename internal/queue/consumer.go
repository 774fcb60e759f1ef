// Package queue contains the auction event payload and the background
// consumer that listens to the auction.events queue and writes an audit
// trail to logs/auction.log.
package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/rs/zerolog/log"
)

// AuctionQueueName is the durable queue auction events are published to.
const AuctionQueueName = "auction.events"

const auditFileName = "auction.log"

// StartAuctionEventConsumer connects to RabbitMQ, declares the
// auction.events queue (durable) and consumes messages until ctx is
// cancelled.  Each message is appended to <logDir>/auction.log as one
// human-friendly line.  Broker failures are retried with backoff; a
// malformed message is rejected without requeue so it cannot stall the
// queue.  The only error returned is ctx.Err().
func StartAuctionEventConsumer(ctx context.Context, url, logDir string) error {
    audit := &auditLog{dir: logDir}
    backoff := time.Second
    for {
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Warn().Err(err).Dur("retry_in", backoff).Msg("auction-consumer: failed to dial broker")
            if !sleepCtx(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = consumeLoop(ctx, conn, audit)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Warn().Err(err).Msg("auction-consumer: consume loop ended; reconnecting")
        if !sleepCtx(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, audit *auditLog) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Warn().Err(err).Msg("auction-consumer: set QoS failed")
    }
    if _, err := ch.QueueDeclare(AuctionQueueName, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.ConsumeWithContext(ctx, AuctionQueueName, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    log.Info().Str("queue", AuctionQueueName).Msg("auction-consumer: consuming")
    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := audit.handleMessage(d.Body); err != nil {
                log.Error().Err(err).Msg("auction-consumer: handle message failed")
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

type auditLog struct {
    dir string
    mu  sync.Mutex
}

func (a *auditLog) handleMessage(body []byte) error {
    var ev AuctionEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Kind == "" || ev.AuctionID == "" {
        return errors.New("event without kind or auction id")
    }

    a.mu.Lock()
    defer a.mu.Unlock()
    if err := os.MkdirAll(a.dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", a.dir, err)
    }
    f, err := os.OpenFile(filepath.Join(a.dir, auditFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(formatLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func formatLine(ev AuctionEvent) string {
    var b strings.Builder
    fmt.Fprintf(&b, "[%s] %s | auction_id=%s | owner_id=%s | state=%s | revision=%d",
        ev.OccurredAt, ev.Kind, ev.AuctionID, ev.OwnerID, ev.State, ev.Revision)
    if ev.PrincipalID != "" {
        fmt.Fprintf(&b, " | principal_id=%s", ev.PrincipalID)
    }
    switch ev.Kind {
    case KindBidAccepted:
        fmt.Fprintf(&b, " | amount=%d cents | previous=%d cents", ev.AmountCents, ev.PreviousCents)
    case KindAuctionClosed:
        fmt.Fprintf(&b, " | final=%d cents", ev.AmountCents)
    case KindAuctionPaid:
        fmt.Fprintf(&b, " | amount=%d cents | payment_ref=%s", ev.AmountCents, ev.PaymentReference)
    }
    b.WriteByte('\n')
    return b.String()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
