package auction

import (
	"errors"
	"fmt"

	"github.com/iliyamo/auction-marketplace/internal/repository"
)

// Validation errors.  They are final for the call that produced them and
// are never retried inside the engine.
var (
	ErrBidTooLow        = errors.New("bid too low")
	ErrAuctionEnded     = errors.New("auction has ended")
	ErrAuctionNotOpen   = errors.New("auction is not open for bidding")
	ErrOwnerCannotBid   = errors.New("owner cannot bid on own auction")
	ErrNotSettleable    = errors.New("auction is not awaiting payment")
	ErrNotWinningBidder = errors.New("caller is not the winning bidder")
	ErrNotDeletable     = errors.New("auction can no longer be deleted")
	ErrListingLocked    = errors.New("listing can no longer be edited")
	ErrInvalidInput     = errors.New("invalid input")
)

// ErrContention is returned when every compare-and-swap attempt lost to a
// concurrent writer.  The whole operation may be retried by the caller.
var ErrContention = errors.New("too much contention, retry later")

// Store errors surfaced unchanged.
var (
	ErrNotFound    = repository.ErrNotFound
	ErrForbidden   = repository.ErrForbidden
	ErrUnavailable = repository.ErrUnavailable
)

// BidTooLowError reports the floor a bid must strictly exceed so the caller
// can correct its next attempt.  errors.Is(err, ErrBidTooLow) matches it.
type BidTooLowError struct {
	Floor  int64
	Amount int64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid too low: %d must exceed %d", e.Amount, e.Floor)
}

func (e *BidTooLowError) Is(target error) bool { return target == ErrBidTooLow }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
