package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/tbourn/go-giftchain-backend/internal/http/middleware"
	"github.com/tbourn/go-giftchain-backend/internal/realtime"
)

func TestPostPayment_AcceptsAndQueues(t *testing.T) {
	pay := &stubPayments{}
	r := newGiftRouter(New(&stubGifts{}, pay, nil))

	body := `{
		"items": [{"product_id":"latte","product_name":"Latte","quantity":2,"price":"3.50"}],
		"gift_metadata": {"claimed_gift_ids":["g1"],"buy_for_next":true,"gifter_name":"kim"}
	}`
	w := doJSON(t, r, http.MethodPost, "/orders/o42/post-payment", body, map[string]string{middleware.HeaderCustomerID: "cust-5"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	var ack AcceptedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil || ack.OrderID != "o42" || ack.Status != "accepted" {
		t.Fatalf("ack = %s", w.Body.String())
	}

	if len(pay.got) != 1 {
		t.Fatalf("queued = %d", len(pay.got))
	}
	pc := pay.got[0]
	if pc.OrderID != "o42" || pc.CustomerID == nil || *pc.CustomerID != "cust-5" {
		t.Fatalf("payment context = %+v", pc)
	}
	if len(pc.Items) != 1 || pc.Items[0].Quantity != 2 || pc.Items[0].Price.String() != "3.5" {
		t.Fatalf("items = %+v", pc.Items)
	}
	if pc.GiftMetadata == nil || !pc.GiftMetadata.BuyForNext || pc.GiftMetadata.ClaimedGiftIDs[0] != "g1" {
		t.Fatalf("metadata = %+v", pc.GiftMetadata)
	}
}

func TestPostPayment_BodyCustomerWinsOverHeader(t *testing.T) {
	pay := &stubPayments{}
	r := newGiftRouter(New(&stubGifts{}, pay, nil))

	w := doJSON(t, r, http.MethodPost, "/orders/o1/post-payment", `{"customer_id":"body-cust","items":[]}`, map[string]string{middleware.HeaderCustomerID: "hdr"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	if got := *pay.got[0].CustomerID; got != "body-cust" {
		t.Fatalf("customer = %q", got)
	}
}

func TestPostPayment_RejectsInvalidItems(t *testing.T) {
	pay := &stubPayments{}
	r := newGiftRouter(New(&stubGifts{}, pay, nil))

	for _, bad := range []string{
		`not json`,
		`{"items":[{"product_name":"Latte","quantity":1}]}`,
		`{"items":[{"product_id":"latte","product_name":"Latte","quantity":2000000000}]}`,
		`{"items":[{"product_id":"latte","product_name":"Latte","quantity":-1}]}`,
	} {
		if w := doJSON(t, r, http.MethodPost, "/orders/o1/post-payment", bad, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("%s -> %d", bad, w.Code)
		}
	}
	if len(pay.got) != 0 {
		t.Fatalf("invalid requests must not be queued")
	}
}

func TestRealtimeStatus(t *testing.T) {
	r := newGiftRouter(New(&stubGifts{}, &stubPayments{}, stubHub{st: realtime.Status{Clients: 2, ActiveChains: 3, RecentGifts: 10}}))
	w := doJSON(t, r, http.MethodGet, "/realtime/status", nil, nil)
	var st realtime.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil || st.Clients != 2 || st.ActiveChains != 3 || st.RecentGifts != 10 {
		t.Fatalf("status = %s", w.Body.String())
	}

	r = newGiftRouter(New(&stubGifts{}, &stubPayments{}, nil))
	if w := doJSON(t, r, http.MethodGet, "/realtime/status", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("nil hub status = %d", w.Code)
	}
}
