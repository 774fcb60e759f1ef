package handler

import (
    "time"

    "github.com/iliyamo/auction-marketplace/internal/model"
)

type sellerResponse struct {
    Username      string `json:"username"`
    ContactNumber string `json:"contact_number"`
    Email         string `json:"email"`
}

// auctionResponse is the public JSON shape of an auction item.
type auctionResponse struct {
    ID                string         `json:"id"`
    OwnerID           string         `json:"owner_id"`
    Title             string         `json:"title"`
    Description       string         `json:"description,omitempty"`
    ImageRef          string         `json:"image_ref,omitempty"`
    Seller            sellerResponse `json:"seller"`
    BasePriceCents    int64          `json:"base_price_cents"`
    CurrentPriceCents int64          `json:"current_price_cents"`
    FloorCents        int64          `json:"floor_cents"`
    CurrentBidderID   string         `json:"current_bidder_id,omitempty"`
    StartsAt          string         `json:"starts_at"`
    EndsAt            string         `json:"ends_at"`
    Status            string         `json:"status"`
    Revision          int64          `json:"revision"`
    PaymentRef        string         `json:"payment_ref,omitempty"`
    CreatedAt         string         `json:"created_at"`
    UpdatedAt         string         `json:"updated_at"`
    ClosedAt          *string        `json:"closed_at,omitempty"`
    PaidAt            *string        `json:"paid_at,omitempty"`
}

func toResponse(it model.AuctionItem) auctionResponse {
    return auctionResponse{
        ID:                it.ID,
        OwnerID:           it.OwnerID,
        Title:             it.Title,
        Description:       it.Description,
        ImageRef:          it.ImageRef,
        Seller:            sellerResponse(it.Seller),
        BasePriceCents:    it.BasePrice,
        CurrentPriceCents: it.CurrentPrice,
        FloorCents:        it.Floor(),
        CurrentBidderID:   it.CurrentBidderID,
        StartsAt:          formatTime(it.StartTime),
        EndsAt:            formatTime(it.EndTime),
        Status:            string(it.State),
        Revision:          it.Revision,
        PaymentRef:        it.PaymentReference,
        CreatedAt:         formatTime(it.CreatedAt),
        UpdatedAt:         formatTime(it.UpdatedAt),
        ClosedAt:          formatTimePtr(it.ClosedAt),
        PaidAt:            formatTimePtr(it.PaidAt),
    }
}

func toResponses(items []model.AuctionItem) []auctionResponse {
    out := make([]auctionResponse, 0, len(items))
    for _, it := range items {
        out = append(out, toResponse(it))
    }
    return out
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func formatTimePtr(t *time.Time) *string {
    if t == nil {
        return nil
    }
    s := formatTime(*t)
    return &s
}
