package router // package router defines how HTTP routes are registered for the API

import (
	"context"

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/auction-marketplace/internal/handler"    // handlers that call the auction service
	"github.com/iliyamo/auction-marketplace/internal/middleware" // JWT authentication and rate limiting
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance: liveness and readiness checks.
func RegisterRoutes(e *echo.Echo, ready func(ctx context.Context) error) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", handler.Ready(ready))
	}
}

// RegisterAuctions registers the auction API under /v1.  Browsing is
// public; everything that acts on behalf of a principal requires a valid
// access token.  Bid submission additionally passes through bidLimiter,
// which may be nil.
func RegisterAuctions(e *echo.Echo, h *handler.AuctionHandler, jwtSecret string, bidLimiter echo.MiddlewareFunc) {
	// Public browse endpoints.
	e.GET("/v1/auctions", h.ListAuctions)
	e.GET("/v1/auctions/:id", h.GetAuction)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/my-auctions", h.MyAuctions)
	auth.POST("/auctions", h.CreateAuction)
	auth.PATCH("/auctions/:id", h.UpdateAuction)
	auth.DELETE("/auctions/:id", h.DeleteAuction)

	// Rate limiting runs after JWTAuth so buckets are keyed by principal.
	if bidLimiter != nil {
		auth.POST("/auctions/:id/bids", h.PlaceBid, bidLimiter)
	} else {
		auth.POST("/auctions/:id/bids", h.PlaceBid)
	}
	auth.POST("/auctions/:id/close", h.CloseAuction)
	auth.POST("/auctions/:id/payment-order", h.CreatePaymentOrder)
	auth.POST("/auctions/:id/confirm-payment", h.ConfirmPayment)
}
