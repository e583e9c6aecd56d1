package realtime

import (
	"encoding/json"
	"time"

	"github.com/tbourn/go-giftchain-backend/internal/domain"
)

// MessageType names a display-channel message.
type MessageType string

// Display-channel message types.
const (
	TypeGiftCreated    MessageType = "GIFT_UNIT_CREATED"
	TypeGiftClaimed    MessageType = "GIFT_UNIT_CLAIMED"
	TypeChainContinued MessageType = "GIFT_CHAIN_CONTINUED"
	TypeStateUpdate    MessageType = "GIFT_STATE_UPDATE"
)

// Envelope is the shape of every message on the display channel.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// GiftProjection is the display view of a gift unit.
type GiftProjection struct {
	ID                      string            `json:"id"`
	GifterName              string            `json:"gifterName"`
	ProductName             string            `json:"productName"`
	ProductType             *string           `json:"productType,omitempty"`
	CreatedAt               time.Time         `json:"createdAt"`
	ChainPosition           int               `json:"chainPosition"`
	Status                  domain.GiftStatus `json:"status,omitempty"`
	ContinuedFromGiftUnitID *string           `json:"continuedFromGiftUnitId,omitempty"`
	ClaimedAt               *time.Time        `json:"claimedAt,omitempty"`
	ContinuedAt             *time.Time        `json:"continuedAt,omitempty"`
}

// ClaimedPayload is the payload of GIFT_UNIT_CLAIMED.
type ClaimedPayload struct {
	GiftUnitID string    `json:"giftUnitId"`
	ClaimedAt  time.Time `json:"claimedAt"`
}

// ContinuedPayload is the payload of GIFT_CHAIN_CONTINUED. GiftUnitID is the
// parent.
type ContinuedPayload struct {
	GiftUnitID  string         `json:"giftUnitId"`
	ContinuedAt time.Time      `json:"continuedAt"`
	NewGiftUnit GiftProjection `json:"newGiftUnit"`
}

// StateSnapshot is the payload of GIFT_STATE_UPDATE.
type StateSnapshot struct {
	ActiveChains [][]GiftProjection `json:"activeChains"`
	RecentGifts  []GiftProjection   `json:"recentGifts"`
}

// Project converts a stored gift unit into its display projection.
func Project(g domain.GiftUnit) GiftProjection {
	return GiftProjection{
		ID:                      g.ID,
		GifterName:              g.GifterDisplayName(),
		ProductName:             g.ProductName,
		ProductType:             g.ProductType,
		CreatedAt:               g.CreatedAt,
		ChainPosition:           g.ChainPosition,
		Status:                  g.Status,
		ContinuedFromGiftUnitID: g.ContinuedFromGiftUnitID,
		ClaimedAt:               g.ClaimedAt,
		ContinuedAt:             g.ContinuedAt,
	}
}

func newEnvelope(t MessageType, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Payload: raw}, nil
}

// encodeFrame builds the wire bytes of a t message carrying payload.
func encodeFrame(t MessageType, payload any) ([]byte, error) {
	env, err := newEnvelope(t, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
