// Package service provides the broker publishers that deliver auction
// events after each committed change.  Errors are logged and returned so
// callers can ignore them without interrupting the request flow.
package service

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/rs/zerolog/log"

    q "github.com/iliyamo/auction-marketplace/internal/queue"
)

// ErrPublishQueueFull is returned when the outgoing buffer has no room and
// the event is dropped.
var ErrPublishQueueFull = errors.New("rabbitmq: publish buffer full, event dropped")

const (
    defaultHandshakeTimeout = 5 * time.Second
    defaultReconnectDelay   = time.Second
    maxReconnectDelay       = 30 * time.Second
)

// RabbitPublisher publishes auction events to the durable auction.events
// queue.  Publish only enqueues into a bounded buffer; Run owns the broker
// connection, dials it with a deadline and re-dials after the broker drops
// it.  Messages are marked as persistent.
type RabbitPublisher struct {
    url    string
    events chan q.AuctionEvent

    handshakeTimeout time.Duration
    reconnectDelay   time.Duration
}

// NewRabbitPublisher returns a publisher buffering up to buffer events while
// the broker is slow or away.
func NewRabbitPublisher(url string, buffer int) *RabbitPublisher {
    if buffer < 1 {
        buffer = 1
    }
    return &RabbitPublisher{
        url:              url,
        events:           make(chan q.AuctionEvent, buffer),
        handshakeTimeout: defaultHandshakeTimeout,
        reconnectDelay:   defaultReconnectDelay,
    }
}

// Publish hands ev to the delivery loop without waiting on the broker.
func (p *RabbitPublisher) Publish(ctx context.Context, ev q.AuctionEvent) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    select {
    case p.events <- ev:
        return nil
    case <-ctx.Done():
        return ctx.Err()
    default:
        log.Warn().Str("kind", ev.Kind).Str("auction_id", ev.AuctionID).Msg("rabbitmq: buffer full, dropping event")
        return ErrPublishQueueFull
    }
}

// Run delivers buffered events until ctx is cancelled, reconnecting with
// backoff whenever the broker is unreachable.
func (p *RabbitPublisher) Run(ctx context.Context) error {
    var pending *q.AuctionEvent
    delay := p.reconnectDelay
    for {
        conn, ch, err := p.connect(ctx)
        if err == nil {
            delay = p.reconnectDelay
            pending, err = p.deliver(ctx, ch, pending)
            _ = ch.Close()
            _ = conn.Close()
        }
        if ctx.Err() != nil {
            return nil
        }
        log.Warn().Err(err).Dur("retry_in", delay).Msg("rabbitmq: connection lost")

        t := time.NewTimer(delay)
        select {
        case <-ctx.Done():
            t.Stop()
            return nil
        case <-t.C:
        }
        delay *= 2
        if delay > maxReconnectDelay {
            delay = maxReconnectDelay
        }
    }
}

// connect dials the broker.  The TCP dial and the AMQP handshake are both
// bounded by handshakeTimeout and abandoned as soon as ctx is done.
func (p *RabbitPublisher) connect(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
    cfg := amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial: func(network, addr string) (net.Conn, error) {
            d := net.Dialer{Timeout: p.handshakeTimeout}
            conn, err := d.DialContext(ctx, network, addr)
            if err != nil {
                return nil, err
            }
            // the client clears the deadline once the handshake completes
            if err := conn.SetDeadline(time.Now().Add(p.handshakeTimeout)); err != nil {
                _ = conn.Close()
                return nil, err
            }
            context.AfterFunc(ctx, func() { _ = conn.Close() })
            return conn, nil
        },
    }
    conn, err := amqp.DialConfig(p.url, cfg)
    if err != nil {
        return nil, nil, fmt.Errorf("dial: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, nil, fmt.Errorf("channel open: %w", err)
    }
    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(q.AuctionQueueName, true, false, false, false, nil); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return nil, nil, fmt.Errorf("queue declare: %w", err)
    }
    return conn, ch, nil
}

// deliver publishes events on ch until the channel closes or ctx ends.  An
// event whose publish failed is handed back so the next connection sends it
// first.
func (p *RabbitPublisher) deliver(ctx context.Context, ch *amqp.Channel, pending *q.AuctionEvent) (*q.AuctionEvent, error) {
    closed := ch.NotifyClose(make(chan *amqp.Error, 1))
    for {
        if pending != nil {
            if err := p.send(ctx, ch, *pending); err != nil {
                return pending, err
            }
            pending = nil
        }
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case amqpErr := <-closed:
            if amqpErr == nil {
                return nil, amqp.ErrClosed
            }
            return nil, amqpErr
        case ev := <-p.events:
            pending = &ev
        }
    }
}

func (p *RabbitPublisher) send(ctx context.Context, ch *amqp.Channel, ev q.AuctionEvent) error {
    body, err := json.Marshal(ev)
    if err != nil {
        log.Error().Err(err).Str("kind", ev.Kind).Msg("rabbitmq: marshal event")
        return nil
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Timestamp:    time.Now().UTC(),
        Type:         ev.Kind,
        Body:         body,
    }
    sendCtx, cancel := context.WithTimeout(ctx, p.handshakeTimeout)
    defer cancel()
    return ch.PublishWithContext(sendCtx,
        "",                 // default exchange
        q.AuctionQueueName, // routing key = queue name
        false,              // mandatory
        false,              // immediate
        pub,
    )
}
