// Package queue defines message payloads exchanged over the message broker.
package queue

// Event kinds published by the auction engine.
const (
    KindAuctionCreated = "auction.created"
    KindBidAccepted    = "bid.accepted"
    KindAuctionClosed  = "auction.closed"
    KindAuctionPaid    = "auction.paid"
    KindAuctionDeleted = "auction.deleted"
)

// AuctionEvent is published after an auction mutation commits.  It carries
// enough information for downstream consumers to log, notify or trigger
// analytics without querying the record store.
type AuctionEvent struct {
    Kind             string `json:"kind"`
    AuctionID        string `json:"auction_id"`
    OwnerID          string `json:"owner_id"`
    PrincipalID      string `json:"principal_id,omitempty"`
    AmountCents      int64  `json:"amount_cents,omitempty"`
    PreviousCents    int64  `json:"previous_cents,omitempty"`
    State            string `json:"state"`
    Revision         int64  `json:"revision"`
    PaymentReference string `json:"payment_ref,omitempty"`
    OccurredAt       string `json:"occurred_at"`
}
