package model

import "time"

// AuctionState is the lifecycle state of an auction item.  States only move
// forward: Open -> Closed -> Paid.
type AuctionState string

const (
    StateOpen   AuctionState = "OPEN"
    StateClosed AuctionState = "CLOSED"
    StatePaid   AuctionState = "PAID"
)

// rank orders the states so regressions can be detected.
func (s AuctionState) rank() int {
    switch s {
    case StateOpen:
        return 1
    case StateClosed:
        return 2
    case StatePaid:
        return 3
    }
    return 0
}

// Valid reports whether s is one of the known states.
func (s AuctionState) Valid() bool { return s.rank() > 0 }

// CanMoveTo reports whether a transition from s to next keeps the state
// machine moving forward (or leaves it unchanged).
func (s AuctionState) CanMoveTo(next AuctionState) bool {
    return next.Valid() && next.rank() >= s.rank()
}

// SellerInfo is the contact block shown alongside a listing.
type SellerInfo struct {
    Username      string
    ContactNumber string
    Email         string
}

// AuctionItem represents a single listing put up for auction.  The auction
// fields (prices, bidder, state) are only ever changed through a
// revision-checked update in the record store; the listing fields are
// co-located for display and never influence bid admission.
//
// Fields:
//  ID               – opaque identifier assigned at creation.
//  OwnerID          – principal who listed the item.
//  BasePrice        – minimum price in cents; immutable once listed.
//  StartTime        – bidding opens at this instant.
//  EndTime          – bidding closes at this instant (after StartTime).
//  State            – OPEN, CLOSED or PAID.
//  CurrentPrice     – highest admitted bid in cents, zero when unbid.
//  CurrentBidderID  – principal holding the highest bid, empty when unbid.
//  PaymentReference – gateway payment reference, set once when PAID.
//  Revision         – incremented on every mutation.
type AuctionItem struct {
    ID               string
    OwnerID          string
    BasePrice        int64
    StartTime        time.Time
    EndTime          time.Time
    State            AuctionState
    CurrentPrice     int64
    CurrentBidderID  string
    PaymentReference string
    Revision         int64

    Title       string
    Description string
    ImageRef    string
    Seller      SellerInfo

    CreatedAt time.Time
    UpdatedAt time.Time
    ClosedAt  *time.Time
    PaidAt    *time.Time
}

// Floor is the amount a new bid must strictly exceed.
func (a AuctionItem) Floor() int64 {
    if a.CurrentPrice > a.BasePrice {
        return a.CurrentPrice
    }
    return a.BasePrice
}

// HasBids reports whether any bid has been admitted.
func (a AuctionItem) HasBids() bool { return a.CurrentBidderID != "" }

// Expired reports whether the bidding window has elapsed at now.
func (a AuctionItem) Expired(now time.Time) bool { return !now.Before(a.EndTime) }
