// Gift HTTP handlers.
//
// This file exposes REST endpoints for gift units:
//   - GET  /gifts                 (available gifts, optional product filter, ETag)
//   - GET  /gifts/count           (number of available gifts)
//   - GET  /gifts/{id}            (one gift unit)
//   - GET  /gifts/{id}/chain      (lineage and continuations)
//   - POST /gifts                 (create a gift unit)
//   - POST /gifts/{id}/claim      (claim, Idempotency-Key aware)
//   - POST /gifts/discounts       (checkout discount quote)
//
// Handlers are transport-thin: they bind input, call the services and map
// service errors through serviceError.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-giftchain-backend/internal/domain"
	"github.com/tbourn/go-giftchain-backend/internal/http/middleware"
	"github.com/tbourn/go-giftchain-backend/internal/realtime"
	"github.com/tbourn/go-giftchain-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// GiftService is the gift lifecycle consumed by the handlers.
type GiftService interface {
	FindAvailable(ctx context.Context) ([]domain.GiftUnit, error)
	FindAvailableByProduct(ctx context.Context, productID string) ([]domain.GiftUnit, error)
	FindByID(ctx context.Context, id string) (*domain.GiftUnit, error)
	GetAvailableCount(ctx context.Context) (int64, error)
	GetChainHistory(ctx context.Context, giftID string) (*services.ChainHistory, error)
	CreateGiftUnit(ctx context.Context, in services.CreateGiftInput) (*domain.GiftUnit, error)
	ClaimGiftUnit(ctx context.Context, giftID, orderID string, customerID *string) (*domain.GiftUnit, error)
}

// PaymentService runs checkout-side gift effects.
type PaymentService interface {
	ProcessAsync(ctx context.Context, pc services.PaymentContext)
	GiftDiscounts(ctx context.Context, giftIDs []string) (services.DiscountQuote, error)
}

// HubStatus reports the display hub state.
type HubStatus interface {
	Status() realtime.Status
}

// ClaimRecorder persists the outcome of a keyed claim so retries replay it.
type ClaimRecorder func(ctx context.Context, resourceID, key, giftUnitID string, status int) error

// ListStats fingerprints the available listing for one product filter.
type ListStats struct {
	Total        int64
	Available    int64
	MaxUpdatedAt *time.Time
	NextExpiry   *time.Time
}

// StatsFunc measures ListStats for productID ("" for every product).
type StatsFunc func(ctx context.Context, productID string) (ListStats, error)

//
// Handler wiring
//

// Handlers groups the gift, order and realtime endpoints.
type Handlers struct {
	gifts    GiftService
	payments PaymentService
	hub      HubStatus

	recordClaim ClaimRecorder
	stats       StatsFunc
}

// Option customizes Handlers.
type Option func(*Handlers)

// WithClaimRecorder enables storing claim outcomes for Idempotency-Key replay.
func WithClaimRecorder(fn ClaimRecorder) Option { return func(h *Handlers) { h.recordClaim = fn } }

// WithStats enables weak ETags on the gift list.
func WithStats(fn StatsFunc) Option { return func(h *Handlers) { h.stats = fn } }

// New binds the handlers to their services.
func New(gifts GiftService, payments PaymentService, hub HubStatus, opts ...Option) *Handlers {
	h := &Handlers{gifts: gifts, payments: payments, hub: hub}
	for _, o := range opts {
		o(h)
	}
	return h
}

//
// DTOs
//

// ListGiftsResponse wraps the available gifts.
type ListGiftsResponse struct {
	Gifts []domain.GiftUnit `json:"gifts"`
	Count int               `json:"count"`
}

// CountResponse carries the available-gift count shown on the till.
type CountResponse struct {
	Available int64 `json:"available" example:"7"`
}

// ClaimGiftRequest is the JSON payload for claiming a gift.
type ClaimGiftRequest struct {
	// OrderID is the order redeeming the gift.
	OrderID string `json:"order_id" binding:"required,max=64" example:"ord_1042"`
	// CustomerID optionally identifies the redeeming customer; the
	// X-Customer-ID header is used when absent.
	CustomerID *string `json:"customer_id,omitempty" example:"cust_77"`
}

// DiscountsRequest lists gifts a customer wants to redeem at checkout.
type DiscountsRequest struct {
	GiftIDs []string `json:"gift_ids" binding:"required,min=1,max=20,dive,required"`
}

//
// Handlers
//

// ListGifts godoc
// @ID          listGifts
// @Summary     List available gifts
// @Description Returns claimable gifts, newest first. With product_id, only that product's gifts are returned oldest first. Supports weak ETag via If-None-Match.
// @Tags        Gifts
// @Produce     json
// @Param       product_id     query   string  false "Product filter"              example(latte)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Success     200  {object}  handlers.ListGiftsResponse
// @Header      200  {string}  ETag "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /gifts [get]
func (h *Handlers) ListGifts(c *gin.Context) {
	ctx := c.Request.Context()
	productID, filtered := c.GetQuery("product_id")
	productID = strings.TrimSpace(productID)
	if filtered && productID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "product_id must not be blank")
		return
	}

	if h.stats != nil {
		if st, err := h.stats(ctx, productID); err == nil {
			etag := fmt.Sprintf(`W/"gifts:%s:%d:%d:%d:%d"`,
				productID, st.Total, st.Available, unixNano(st.MaxUpdatedAt), unixNano(st.NextExpiry))
			c.Header("ETag", etag)
			if c.GetHeader("If-None-Match") == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	var (
		gifts []domain.GiftUnit
		err   error
	)
	if filtered {
		gifts, err = h.gifts.FindAvailableByProduct(ctx, productID)
	} else {
		gifts, err = h.gifts.FindAvailable(ctx)
	}
	if err != nil {
		failErr(c, err)
		return
	}
	if gifts == nil {
		gifts = []domain.GiftUnit{}
	}
	ok(c, http.StatusOK, ListGiftsResponse{Gifts: gifts, Count: len(gifts)})
}

// CountGifts godoc
// @ID          countGifts
// @Summary     Count available gifts
// @Tags        Gifts
// @Produce     json
// @Success     200  {object}  handlers.CountResponse
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /gifts/count [get]
func (h *Handlers) CountGifts(c *gin.Context) {
	n, err := h.gifts.GetAvailableCount(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CountResponse{Available: n})
}

// GetGift godoc
// @ID          getGift
// @Summary     Get a gift unit
// @Tags        Gifts
// @Produce     json
// @Param       id   path      string  true  "Gift unit ID (UUID)"
// @Success     200  {object}  domain.GiftUnit
// @Failure     404  {object}  handlers.ErrorResponse "Gift not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /gifts/{id} [get]
func (h *Handlers) GetGift(c *gin.Context) {
	g, err := h.gifts.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, g)
}

// GetChain godoc
// @ID          getGiftChain
// @Summary     Get the chain around a gift
// @Description Returns the lineage from the chain root to the gift and every descendant continuation.
// @Tags        Gifts
// @Produce     json
// @Param       id   path      string  true  "Gift unit ID (UUID)"
// @Success     200  {object}  services.ChainHistory
// @Failure     404  {object}  handlers.ErrorResponse "Gift not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /gifts/{id}/chain [get]
func (h *Handlers) GetChain(c *gin.Context) {
	hist, err := h.gifts.GetChainHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, hist)
}

// CreateGift godoc
// @ID          createGift
// @Summary     Create a gift unit
// @Description Creates an AVAILABLE gift. With continued_from_gift_unit_id the gift continues that chain.
// @Tags        Gifts
// @Accept      json
// @Produce     json
// @Param       body  body      services.CreateGiftInput  true  "Gift to create"
// @Success     201   {object}  domain.GiftUnit
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse "Parent gift not found"
// @Failure     500   {object}  handlers.ErrorResponse "Internal error"
// @Router      /gifts [post]
func (h *Handlers) CreateGift(c *gin.Context) {
	var in services.CreateGiftInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if in.GiftedByCustomerID == nil {
		if id, found := middleware.CustomerID(c); found {
			in.GiftedByCustomerID = &id
		}
	}
	g, err := h.gifts.CreateGiftUnit(c.Request.Context(), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, g)
}

// ClaimGift godoc
// @ID          claimGift
// @Summary     Claim a gift
// @Description Atomically moves an AVAILABLE gift to CLAIMED for an order. With Idempotency-Key, a retry returns the original outcome and sets Idempotency-Replayed.
// @Tags        Gifts
// @Accept      json
// @Produce     json
// @Param       id               path    string  true   "Gift unit ID (UUID)"
// @Param       Idempotency-Key  header  string  false  "Client key for safe retries"
// @Param       X-Customer-ID    header  string  false  "Redeeming customer"
// @Param       body             body    handlers.ClaimGiftRequest  true  "Claim payload"
// @Success     200  {object}  domain.GiftUnit
// @Header      200  {string}  Idempotency-Replayed "true when replayed"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Gift not found"
// @Failure     409  {object}  handlers.ErrorResponse "Gift not available"
// @Failure     429  {object}  handlers.ErrorResponse "Too many requests"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /gifts/{id}/claim [post]
func (h *Handlers) ClaimGift(c *gin.Context) {
	ctx := c.Request.Context()
	giftID := c.Param("id")

	if rep, found := middleware.ReplayFrom(c); found {
		g, err := h.gifts.FindByID(ctx, rep.GiftUnitID)
		if err != nil {
			failErr(c, err)
			return
		}
		c.Header("Idempotency-Replayed", "true")
		ok(c, rep.Status, g)
		return
	}

	var req ClaimGiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "order_id required")
		return
	}
	if req.CustomerID == nil {
		if id, found := middleware.CustomerID(c); found {
			req.CustomerID = &id
		}
	}

	g, err := h.gifts.ClaimGiftUnit(ctx, giftID, req.OrderID, req.CustomerID)
	if err != nil {
		failErr(c, err)
		return
	}

	if key, keyed := middleware.GetIdempotencyKey(c); keyed && h.recordClaim != nil {
		if err := h.recordClaim(ctx, giftID, key, g.ID, http.StatusOK); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("gift_id", g.ID).Msg("store claim idempotency record")
		}
	}
	ok(c, http.StatusOK, g)
}

// QuoteDiscounts godoc
// @ID          quoteGiftDiscounts
// @Summary     Quote gift discounts
// @Description Computes the 100%-off lines for gifts a customer redeems at checkout. Gifts that can no longer be claimed are listed as unavailable.
// @Tags        Gifts
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.DiscountsRequest  true  "Gifts to redeem"
// @Success     200   {object}  services.DiscountQuote
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     500   {object}  handlers.ErrorResponse "Internal error"
// @Router      /gifts/discounts [post]
func (h *Handlers) QuoteDiscounts(c *gin.Context) {
	var req DiscountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "gift_ids required (1-20)")
		return
	}
	q, err := h.payments.GiftDiscounts(c.Request.Context(), req.GiftIDs)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, q)
}

func unixNano(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}
