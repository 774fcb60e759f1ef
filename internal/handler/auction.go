package handler // handler package contains the auction HTTP handlers

import (
    "errors"
    "io"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog/log"

    "github.com/iliyamo/auction-marketplace/internal/auction"
    "github.com/iliyamo/auction-marketplace/internal/middleware"
    "github.com/iliyamo/auction-marketplace/internal/model"
    "github.com/iliyamo/auction-marketplace/internal/payment"
)

const maxCallbackBytes = 64 << 10

// AuctionHandler exposes the auction service over HTTP.
type AuctionHandler struct {
    Svc     *auction.Service
    Gateway payment.Gateway
}

// NewAuctionHandler panics if any dependency is nil.
func NewAuctionHandler(svc *auction.Service, gw payment.Gateway) *AuctionHandler {
    if svc == nil || gw == nil {
        panic("nil dependency passed to NewAuctionHandler")
    }
    return &AuctionHandler{Svc: svc, Gateway: gw}
}

// ListAuctions handles GET /v1/auctions.
func (h *AuctionHandler) ListAuctions(c echo.Context) error {
    items, err := h.Svc.Queries.ListAll(c.Request().Context())
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": toResponses(items)})
}

// GetAuction handles GET /v1/auctions/:id.
func (h *AuctionHandler) GetAuction(c echo.Context) error {
    item, err := h.Svc.Queries.GetByID(c.Request().Context(), c.Param("id"))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, toResponse(item))
}

// MyAuctions handles GET /v1/my-auctions.
func (h *AuctionHandler) MyAuctions(c echo.Context) error {
    principal, ok := middleware.PrincipalID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    items, err := h.Svc.Queries.ListByOwner(c.Request().Context(), principal)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": toResponses(items)})
}

type sellerBody struct {
    Username      string `json:"username"`
    ContactNumber string `json:"contact_number"`
    Email         string `json:"email"`
}

// CreateAuction handles POST /v1/auctions.  The caller becomes the owner.
func (h *AuctionHandler) CreateAuction(c echo.Context) error {
    principal, ok := middleware.PrincipalID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        Title          string     `json:"title"`
        Description    string     `json:"description"`
        ImageRef       string     `json:"image_ref"`
        Seller         sellerBody `json:"seller"`
        BasePriceCents *int64     `json:"base_price_cents"`
        StartsAt       string     `json:"starts_at"`
        EndsAt         string     `json:"ends_at"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if strings.TrimSpace(body.Title) == "" || strings.TrimSpace(body.Description) == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "title and description are required"})
    }
    seller := model.SellerInfo{
        Username:      strings.TrimSpace(body.Seller.Username),
        ContactNumber: strings.TrimSpace(body.Seller.ContactNumber),
        Email:         strings.TrimSpace(body.Seller.Email),
    }
    if seller.Username == "" || seller.ContactNumber == "" || seller.Email == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "seller username, contact_number and email are required"})
    }
    if !strings.Contains(seller.Email, "@") {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seller email"})
    }
    if body.BasePriceCents == nil || *body.BasePriceCents <= 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "base_price_cents must be a positive integer"})
    }
    start, err := parseTime(body.StartsAt)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid starts_at format, want RFC3339"})
    }
    end, err := parseTime(body.EndsAt)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ends_at format, want RFC3339"})
    }

    item, err := h.Svc.Listings.CreateAuction(c.Request().Context(), auction.CreateInput{
        OwnerID:     principal,
        BasePrice:   *body.BasePriceCents,
        StartTime:   start,
        EndTime:     end,
        Title:       body.Title,
        Description: strings.TrimSpace(body.Description),
        ImageRef:    strings.TrimSpace(body.ImageRef),
        Seller:      seller,
    })
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, toResponse(item))
}

// UpdateAuction handles PATCH /v1/auctions/:id.  Only listing fields can
// change; prices and times are fixed once listed.
func (h *AuctionHandler) UpdateAuction(c echo.Context) error {
    principal, ok := middleware.PrincipalID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        Title       *string     `json:"title"`
        Description *string     `json:"description"`
        ImageRef    *string     `json:"image_ref"`
        Seller      *sellerBody `json:"seller"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    patch := auction.ListingPatch{Title: body.Title, Description: body.Description, ImageRef: body.ImageRef}
    if body.Seller != nil {
        patch.Seller = &model.SellerInfo{
            Username:      strings.TrimSpace(body.Seller.Username),
            ContactNumber: strings.TrimSpace(body.Seller.ContactNumber),
            Email:         strings.TrimSpace(body.Seller.Email),
        }
    }
    item, err := h.Svc.Listings.UpdateListing(c.Request().Context(), principal, c.Param("id"), patch)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, toResponse(item))
}

// DeleteAuction handles DELETE /v1/auctions/:id.
func (h *AuctionHandler) DeleteAuction(c echo.Context) error {
    principal, ok := middleware.PrincipalID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    if err := h.Svc.Listings.DeleteAuction(c.Request().Context(), principal, c.Param("id")); err != nil {
        return writeError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// PlaceBid handles POST /v1/auctions/:id/bids with {"amount_cents": n}.
func (h *AuctionHandler) PlaceBid(c echo.Context) error {
    principal, ok := middleware.PrincipalID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        AmountCents *int64 `json:"amount_cents"`
    }
    // fractional or quoted amounts fail to bind into *int64
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount_cents must be an integer"})
    }
    if body.AmountCents == nil || *body.AmountCents <= 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount_cents must be a positive integer"})
    }
    item, err := h.Svc.Engine.PlaceBid(c.Request().Context(), c.Param("id"), principal, *body.AmountCents)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, toResponse(item))
}

// CloseAuction handles POST /v1/auctions/:id/close.  It is idempotent and
// returns the item unchanged if it has not expired.
func (h *AuctionHandler) CloseAuction(c echo.Context) error {
    item, err := h.Svc.Supervisor.CloseExpired(c.Request().Context(), c.Param("id"))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, toResponse(item))
}

// CreatePaymentOrder handles POST /v1/auctions/:id/payment-order.  Only the
// winner of a Closed auction gets an order, quoted at the final price.
func (h *AuctionHandler) CreatePaymentOrder(c echo.Context) error {
    principal, ok := middleware.PrincipalID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx := c.Request().Context()
    item, err := h.Svc.Queries.GetByID(ctx, c.Param("id"))
    if err != nil {
        return writeError(c, err)
    }
    if item.State != model.StateClosed {
        return writeError(c, auction.ErrNotSettleable)
    }
    if !item.HasBids() || item.CurrentBidderID != principal {
        return writeError(c, auction.ErrNotWinningBidder)
    }
    order, err := h.Gateway.CreateOrder(ctx, item.ID, item.CurrentPrice)
    if err != nil {
        log.Error().Err(err).Str("auction_id", item.ID).Msg("create payment order failed")
        return c.JSON(http.StatusBadGateway, echo.Map{"error": "could not create payment order"})
    }
    return c.JSON(http.StatusCreated, order)
}

// ConfirmPayment handles POST /v1/auctions/:id/confirm-payment.  The body
// is the payment provider's callback payload.
func (h *AuctionHandler) ConfirmPayment(c echo.Context) error {
    principal, ok := middleware.PrincipalID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx := c.Request().Context()
    payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBytes))
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    cb, err := h.Gateway.ParseCallback(ctx, payload)
    if err != nil {
        if errors.Is(err, payment.ErrInvalidCallback) || errors.Is(err, payment.ErrUnknownOrder) {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
        }
        return writeError(c, err)
    }
    if cb.ItemID != "" && cb.ItemID != c.Param("id") {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment order belongs to another auction"})
    }
    item, err := h.Svc.Settlement.ConfirmPayment(ctx, c.Param("id"), principal, cb.PaymentReference)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "payment confirmed", "item": toResponse(item)})
}

func parseTime(s string) (time.Time, error) {
    return time.Parse(time.RFC3339, strings.TrimSpace(s))
}
