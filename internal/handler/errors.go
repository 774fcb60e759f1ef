package handler

import (
    "context"
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog/log"

    "github.com/iliyamo/auction-marketplace/internal/auction"
)

// writeError translates service errors into HTTP responses.  Every handler
// funnels its failures through here so the mapping lives in one place.
func writeError(c echo.Context, err error) error {
    var low *auction.BidTooLowError
    switch {
    case errors.As(err, &low):
        return c.JSON(http.StatusConflict, echo.Map{
            "error":        "bid too low",
            "floor_cents":  low.Floor,
            "amount_cents": low.Amount,
        })
    case errors.Is(err, auction.ErrInvalidInput):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    case errors.Is(err, auction.ErrNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "auction not found"})
    case errors.Is(err, auction.ErrForbidden):
        return c.JSON(http.StatusForbidden, echo.Map{"error": "not the owner of this auction"})
    case errors.Is(err, auction.ErrNotWinningBidder):
        return c.JSON(http.StatusForbidden, echo.Map{"error": "not the winning bidder"})
    case errors.Is(err, auction.ErrOwnerCannotBid):
        return c.JSON(http.StatusForbidden, echo.Map{"error": "owners cannot bid on their own auction"})
    case errors.Is(err, auction.ErrAuctionEnded):
        return c.JSON(http.StatusConflict, echo.Map{"error": "auction has ended"})
    case errors.Is(err, auction.ErrAuctionNotOpen):
        return c.JSON(http.StatusConflict, echo.Map{"error": "auction is not open for bids"})
    case errors.Is(err, auction.ErrNotSettleable):
        return c.JSON(http.StatusConflict, echo.Map{"error": "auction cannot be paid in its current state"})
    case errors.Is(err, auction.ErrNotDeletable):
        return c.JSON(http.StatusConflict, echo.Map{"error": "auction can no longer be deleted"})
    case errors.Is(err, auction.ErrListingLocked):
        return c.JSON(http.StatusConflict, echo.Map{"error": "listing can no longer be edited"})
    case errors.Is(err, auction.ErrContention):
        c.Response().Header().Set("Retry-After", "1")
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "auction is busy, retry"})
    case errors.Is(err, auction.ErrUnavailable):
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage unavailable"})
    case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "request cancelled"})
    }
    log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
