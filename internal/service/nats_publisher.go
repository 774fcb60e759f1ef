package service

import (
    "context"
    "encoding/json"
    "fmt"

    "github.com/nats-io/nats.go"

    q "github.com/iliyamo/auction-marketplace/internal/queue"
)

// SubjectPrefix is prepended to every NATS subject.  Subscribers can
// listen to auction.events.> for everything or auction.events.bid.accepted.*
// for one kind.
const SubjectPrefix = "auction.events"

type natsConn interface {
    Publish(subj string, data []byte) error
}

// NATSPublisher fans auction events out on auction.events.<kind>.<id>.
type NATSPublisher struct {
    conn natsConn
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
    return &NATSPublisher{conn: conn}
}

// ConnectNATS dials url with reconnects enabled.
func ConnectNATS(url string) (*nats.Conn, error) {
    return nats.Connect(url,
        nats.Name("auction-marketplace"),
        nats.MaxReconnects(-1),
    )
}

// Subject returns the subject an event is published on.
func Subject(ev q.AuctionEvent) string {
    return fmt.Sprintf("%s.%s.%s", SubjectPrefix, ev.Kind, ev.AuctionID)
}

func (p *NATSPublisher) Publish(ctx context.Context, ev q.AuctionEvent) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    data, err := json.Marshal(ev)
    if err != nil {
        return fmt.Errorf("marshal event: %w", err)
    }
    if err := p.conn.Publish(Subject(ev), data); err != nil {
        return fmt.Errorf("nats publish %s: %w", ev.Kind, err)
    }
    return nil
}
