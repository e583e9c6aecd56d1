// Order and realtime HTTP handlers.
//
//   - POST /orders/{id}/post-payment  (queue gift side effects of a sale)
//   - GET  /realtime/status           (display hub counters)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-giftchain-backend/internal/http/middleware"
	"github.com/tbourn/go-giftchain-backend/internal/realtime"
	"github.com/tbourn/go-giftchain-backend/internal/services"
)

// PostPaymentRequest is the completed-sale notification from checkout.
type PostPaymentRequest struct {
	CustomerID   *string                `json:"customer_id,omitempty" example:"cust_77"`
	Items        []services.OrderItem   `json:"items" binding:"dive"`
	GiftMetadata *services.GiftMetadata `json:"gift_metadata,omitempty"`
}

// AcceptedResponse acknowledges queued work.
type AcceptedResponse struct {
	OrderID string `json:"order_id" example:"ord_1042"`
	Status  string `json:"status" example:"accepted"`
}

// PostPayment godoc
// @ID          postPayment
// @Summary     Run post-payment gift effects
// @Description Acknowledges a completed sale and, in the background, claims redeemed gifts and creates pay-it-forward gifts. Failures never affect the sale; outcomes are logged.
// @Tags        Orders
// @Accept      json
// @Produce     json
// @Param       id    path      string                       true  "Order ID"
// @Param       body  body      handlers.PostPaymentRequest  true  "Sale details"
// @Success     202   {object}  handlers.AcceptedResponse
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Router      /orders/{id}/post-payment [post]
func (h *Handlers) PostPayment(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("id"))
	if orderID == "" || len(orderID) > 64 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "order id required")
		return
	}
	var req PostPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.CustomerID == nil {
		if id, found := middleware.CustomerID(c); found {
			req.CustomerID = &id
		}
	}

	h.payments.ProcessAsync(c.Request.Context(), services.PaymentContext{
		OrderID:      orderID,
		CustomerID:   req.CustomerID,
		Items:        req.Items,
		GiftMetadata: req.GiftMetadata,
	})
	ok(c, http.StatusAccepted, AcceptedResponse{OrderID: orderID, Status: "accepted"})
}

// RealtimeStatus godoc
// @ID          realtimeStatus
// @Summary     Display hub status
// @Tags        Realtime
// @Produce     json
// @Success     200  {object}  realtime.Status
// @Router      /realtime/status [get]
func (h *Handlers) RealtimeStatus(c *gin.Context) {
	if h.hub == nil {
		ok(c, http.StatusOK, realtime.Status{})
		return
	}
	ok(c, http.StatusOK, h.hub.Status())
}
