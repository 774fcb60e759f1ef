// Package payment talks to the payment provider.  The auction service only
// needs two things from it: an order handle the winner can pay against and
// a way to turn the provider's callback into a payment reference.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidCallback is returned for payloads that cannot be decoded or
	// are missing the order handle or payment reference.
	ErrInvalidCallback = errors.New("invalid payment callback")
	// ErrUnknownOrder is returned when a callback names an order this
	// gateway never issued.
	ErrUnknownOrder = errors.New("unknown payment order")
)

// Order is an opaque handle issued by the provider for a single payment.
type Order struct {
	Handle      string    `json:"order_id"`
	ItemID      string    `json:"auction_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Receipt     string    `json:"receipt"`
	CreatedAt   time.Time `json:"created_at"`
}

// Callback is what the provider reports once the payer has paid.
type Callback struct {
	OrderHandle      string
	PaymentReference string
	ItemID           string
	AmountCents      int64
}

// Gateway is the payment provider collaborator.
type Gateway interface {
	CreateOrder(ctx context.Context, itemID string, amountCents int64) (Order, error)
	ParseCallback(ctx context.Context, payload []byte) (Callback, error)
}

// Limits on the orders a LocalGateway remembers.
const (
	DefaultOrderTTL  = 30 * time.Minute
	DefaultMaxOrders = 10000
)

// LocalGateway is an in-process provider for development and tests.  It
// issues random order handles and accepts JSON callbacks of the form
// {"order_id": "...", "payment_id": "..."} for orders it issued.  Orders
// are forgotten after DefaultOrderTTL, and past DefaultMaxOrders the oldest
// is dropped, so a callback for either is an unknown order.
type LocalGateway struct {
	currency  string
	now       func() time.Time
	ttl       time.Duration
	maxOrders int

	mu     sync.RWMutex
	orders map[string]Order
	issued []string // handles in creation order
}

// NewLocalGateway returns a gateway that quotes amounts in currency.
func NewLocalGateway(currency string) *LocalGateway {
	if currency == "" {
		currency = "INR"
	}
	return &LocalGateway{
		currency:  currency,
		now:       func() time.Time { return time.Now().UTC() },
		ttl:       DefaultOrderTTL,
		maxOrders: DefaultMaxOrders,
		orders:    make(map[string]Order),
	}
}

func (g *LocalGateway) CreateOrder(ctx context.Context, itemID string, amountCents int64) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	if itemID == "" || amountCents <= 0 {
		return Order{}, fmt.Errorf("create order: item %q amount %d: invalid", itemID, amountCents)
	}
	now := g.now()
	o := Order{
		Handle:      "order_" + uuid.NewString(),
		ItemID:      itemID,
		AmountCents: amountCents,
		Currency:    g.currency,
		Receipt:     fmt.Sprintf("receipt_%d", now.UnixMilli()),
		CreatedAt:   now,
	}
	g.mu.Lock()
	g.prune(now)
	g.orders[o.Handle] = o
	g.issued = append(g.issued, o.Handle)
	g.mu.Unlock()
	return o, nil
}

// prune drops expired orders and then the oldest ones until there is room
// for one more.  The caller holds g.mu.
func (g *LocalGateway) prune(now time.Time) {
	n := 0
	for ; n < len(g.issued); n++ {
		o := g.orders[g.issued[n]]
		if !g.expired(o, now) && len(g.issued)-n < g.maxOrders {
			break
		}
		delete(g.orders, g.issued[n])
	}
	g.issued = g.issued[n:]
}

func (g *LocalGateway) expired(o Order, now time.Time) bool {
	return now.Sub(o.CreatedAt) >= g.ttl
}

type callbackPayload struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
}

func (g *LocalGateway) ParseCallback(ctx context.Context, payload []byte) (Callback, error) {
	if err := ctx.Err(); err != nil {
		return Callback{}, err
	}
	var p callbackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Callback{}, fmt.Errorf("%w: %w", ErrInvalidCallback, err)
	}
	if p.OrderID == "" || p.PaymentID == "" {
		return Callback{}, fmt.Errorf("%w: order_id and payment_id are required", ErrInvalidCallback)
	}
	g.mu.RLock()
	o, ok := g.orders[p.OrderID]
	g.mu.RUnlock()
	if !ok || g.expired(o, g.now()) {
		return Callback{}, ErrUnknownOrder
	}
	return Callback{
		OrderHandle:      o.Handle,
		PaymentReference: p.PaymentID,
		ItemID:           o.ItemID,
		AmountCents:      o.AmountCents,
	}, nil
}
