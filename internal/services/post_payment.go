// Package services – PostPaymentHandler
//
// This file implements the gift side effects of a completed sale: claiming
// the gifts the customer redeemed and, when they chose to pay it forward,
// creating new gift units from the paid lines. The handler is isolated from
// checkout. It never returns an error or panics back to its caller; every
// failure is logged and recorded in a PostPaymentResult instead.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-giftchain-backend/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OrderItem is one purchased line as reported by checkout.
type OrderItem struct {
	ProductID   string          `json:"product_id"   binding:"required"`
	ProductName string          `json:"product_name" binding:"required"`
	ProductType *string         `json:"product_type,omitempty"`
	Quantity    int             `json:"quantity"     binding:"min=0,max=100"`
	Price       decimal.Decimal `json:"price"`
}

// GiftMetadata is the gift intent attached to an order.
type GiftMetadata struct {
	ClaimedGiftIDs []string `json:"claimed_gift_ids,omitempty"`
	BuyForNext     bool     `json:"buy_for_next"`
	GifterName     *string  `json:"gifter_name,omitempty"`
}

// PaymentContext is the completed-sale payload consumed from checkout.
type PaymentContext struct {
	OrderID      string        `json:"order_id"`
	CustomerID   *string       `json:"customer_id,omitempty"`
	Items        []OrderItem   `json:"items"`
	GiftMetadata *GiftMetadata `json:"gift_metadata,omitempty"`
}

// ClaimFailure records one gift that could not be claimed.
type ClaimFailure struct {
	GiftUnitID string `json:"gift_unit_id"`
	Reason     string `json:"reason"`
	Message    string `json:"message"`
}

// PostPaymentResult reports what the handler did for one order.
type PostPaymentResult struct {
	OrderID        string            `json:"order_id"`
	NoOp           bool              `json:"no_op"`
	ClaimedGiftIDs []string          `json:"claimed_gift_ids"`
	ClaimFailures  []ClaimFailure    `json:"claim_failures"`
	CreatedGifts   []domain.GiftUnit `json:"created_gifts"`
	Deduplicated   bool              `json:"deduplicated"`
	CreateError    string            `json:"create_error,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// OK reports whether every requested step succeeded.
func (r PostPaymentResult) OK() bool {
	return len(r.ClaimFailures) == 0 && r.CreateError == "" && r.Error == ""
}

// GiftOps is the subset of GiftService used by PostPaymentHandler.
type GiftOps interface {
	FindByID(ctx context.Context, id string) (*domain.GiftUnit, error)
	ClaimGiftUnit(ctx context.Context, giftID, orderID string, customerID *string) (*domain.GiftUnit, error)
	CreateGiftsFromOrder(ctx context.Context, orderID string, items []OrderItem, opts OrderGiftOptions) ([]domain.GiftUnit, error)
	HasGiftsForOrder(ctx context.Context, orderID string) (bool, error)
}

// PriceLookup resolves the current unit price of a product. It is provided
// by the catalog.
type PriceLookup interface {
	Price(ctx context.Context, productID string) (decimal.Decimal, error)
}

// GiftDiscount is a 100%-off line presented at checkout for one redeemed gift.
// Amount is zero and Priced false when no PriceLookup is configured or the
// lookup failed; the caller fills in the price in that case.
type GiftDiscount struct {
	GiftUnitID  string          `json:"gift_unit_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Percent     int             `json:"percent"`
	Amount      decimal.Decimal `json:"amount"`
	Priced      bool            `json:"priced"`
}

// DiscountQuote is the outcome of a pre-payment discount computation.
type DiscountQuote struct {
	Discounts   []GiftDiscount `json:"discounts"`
	Unavailable []string       `json:"unavailable"`
}

// PostPaymentHandler runs gift side effects after a sale.
type PostPaymentHandler struct {
	Gifts  GiftOps
	Prices PriceLookup
	Log    zerolog.Logger

	// Done, when set, receives the result of every ProcessAsync run.
	Done func(PostPaymentResult)

	wg sync.WaitGroup
}

// NewPostPaymentHandler constructs a handler over gifts.
func NewPostPaymentHandler(gifts GiftOps, prices PriceLookup, log zerolog.Logger) *PostPaymentHandler {
	return &PostPaymentHandler{Gifts: gifts, Prices: prices, Log: log}
}

// Process claims the redeemed gifts and creates forward gifts for pc. Claim
// failures are recorded per id without stopping the remaining claims.
// Forward gifts chain from the first gift actually claimed in this run and
// are skipped when the order already produced gifts, so retries are safe.
func (h *PostPaymentHandler) Process(ctx context.Context, pc PaymentContext) (res PostPaymentResult) {
	ctx, span := otel.Tracer("services/PostPaymentHandler").Start(ctx, "Process",
		trace.WithAttributes(attribute.String("order.id", pc.OrderID)),
	)
	defer span.End()

	res = PostPaymentResult{
		OrderID:        pc.OrderID,
		ClaimedGiftIDs: []string{},
		ClaimFailures:  []ClaimFailure{},
		CreatedGifts:   []domain.GiftUnit{},
	}
	log := h.Log.With().Str("order_id", pc.OrderID).Logger()

	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Sprintf("panic: %v", r)
			log.Error().Interface("panic", r).Msg("post-payment gift processing panicked")
			postPaymentRuns.WithLabelValues("recovered").Inc()
		}
	}()

	meta := pc.GiftMetadata
	if meta == nil || (len(meta.ClaimedGiftIDs) == 0 && !meta.BuyForNext) {
		res.NoOp = true
		postPaymentRuns.WithLabelValues("noop").Inc()
		return res
	}

	var parentID *string
	for _, raw := range meta.ClaimedGiftIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, err := h.Gifts.ClaimGiftUnit(ctx, id, pc.OrderID, pc.CustomerID); err != nil {
			log.Warn().Err(err).Str("gift_id", id).Msg("gift claim failed")
			res.ClaimFailures = append(res.ClaimFailures, ClaimFailure{
				GiftUnitID: id,
				Reason:     claimReason(err),
				Message:    ClaimFailureMessage,
			})
			continue
		}
		res.ClaimedGiftIDs = append(res.ClaimedGiftIDs, id)
		if parentID == nil {
			claimed := id
			parentID = &claimed
		}
	}

	if meta.BuyForNext {
		h.createForward(ctx, log, pc, meta, parentID, &res)
	}

	switch {
	case res.Deduplicated:
		postPaymentRuns.WithLabelValues("deduplicated").Inc()
	case res.OK():
		postPaymentRuns.WithLabelValues("ok").Inc()
	default:
		postPaymentRuns.WithLabelValues("partial").Inc()
	}
	log.Info().
		Int("claimed", len(res.ClaimedGiftIDs)).
		Int("claim_failures", len(res.ClaimFailures)).
		Int("created", len(res.CreatedGifts)).
		Bool("deduplicated", res.Deduplicated).
		Msg("post-payment gifts processed")
	return res
}

func (h *PostPaymentHandler) createForward(ctx context.Context, log zerolog.Logger, pc PaymentContext, meta *GiftMetadata, parentID *string, res *PostPaymentResult) {
	paid := make([]OrderItem, 0, len(pc.Items))
	for _, it := range pc.Items {
		if it.Price.IsPositive() && it.Quantity > 0 {
			paid = append(paid, it)
		}
	}
	if len(paid) == 0 {
		return
	}

	exists, err := h.Gifts.HasGiftsForOrder(ctx, pc.OrderID)
	if err != nil {
		res.CreateError = err.Error()
		log.Error().Err(err).Msg("forward gift de-duplication check failed")
		return
	}
	if exists {
		res.Deduplicated = true
		log.Info().Msg("forward gifts already exist for order, skipping")
		return
	}

	created, err := h.Gifts.CreateGiftsFromOrder(ctx, pc.OrderID, paid, OrderGiftOptions{
		CustomerID:        pc.CustomerID,
		GifterName:        meta.GifterName,
		ClaimedGiftUnitID: parentID,
	})
	if err != nil {
		res.CreateError = err.Error()
		log.Error().Err(err).Msg("forward gift creation failed")
		return
	}
	res.CreatedGifts = created
}

// ProcessAsync runs Process in a background goroutine detached from ctx's
// cancellation, so an aborted checkout request cannot interrupt it.
func (h *PostPaymentHandler) ProcessAsync(ctx context.Context, pc PaymentContext) {
	bg := context.WithoutCancel(ctx)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		res := h.Process(bg, pc)
		if h.Done != nil {
			h.Done(res)
		}
	}()
}

// Wait blocks until every ProcessAsync run has finished.
func (h *PostPaymentHandler) Wait() { h.wg.Wait() }

// GiftDiscounts builds the 100%-off lines for giftIDs before payment. Gifts
// that are missing or not claimable are listed in Unavailable.
func (h *PostPaymentHandler) GiftDiscounts(ctx context.Context, giftIDs []string) (DiscountQuote, error) {
	ctx, span := otel.Tracer("services/PostPaymentHandler").Start(ctx, "GiftDiscounts",
		trace.WithAttributes(attribute.Int("gifts", len(giftIDs))),
	)
	defer span.End()

	now := time.Now().UTC()
	out := DiscountQuote{Discounts: []GiftDiscount{}, Unavailable: []string{}}
	seen := make(map[string]struct{}, len(giftIDs))
	for _, raw := range giftIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		g, err := h.Gifts.FindByID(ctx, id)
		if errors.Is(err, ErrGiftNotFound) {
			out.Unavailable = append(out.Unavailable, id)
			continue
		}
		if err != nil {
			return DiscountQuote{}, err
		}
		if !g.IsClaimable(now) {
			out.Unavailable = append(out.Unavailable, id)
			continue
		}

		d := GiftDiscount{
			GiftUnitID:  g.ID,
			ProductID:   g.ProductID,
			ProductName: g.ProductName,
			Percent:     100,
			Amount:      decimal.Zero,
		}
		if h.Prices != nil {
			price, err := h.Prices.Price(ctx, g.ProductID)
			if err != nil {
				h.Log.Warn().Err(err).Str("product_id", g.ProductID).Msg("price lookup failed")
			} else {
				d.Amount = price.Mul(decimal.NewFromInt(int64(g.Quantity)))
				d.Priced = true
			}
		}
		out.Discounts = append(out.Discounts, d)
	}
	return out, nil
}

func claimReason(err error) string {
	switch {
	case errors.Is(err, ErrGiftNotFound):
		return "not_found"
	case errors.Is(err, ErrGiftNotAvailable):
		return "not_available"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
