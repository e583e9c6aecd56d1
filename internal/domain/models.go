// Package domain defines the persistence models for gift units and their
// continuation chains. These types are mapped with GORM and form the core
// data layer of the gift-chain backend.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// GiftStatus is the lifecycle state of a gift unit.
type GiftStatus string

// Gift unit states. Transitions are one-way: AVAILABLE → CLAIMED or
// AVAILABLE → EXPIRED.
const (
	GiftAvailable GiftStatus = "AVAILABLE"
	GiftClaimed   GiftStatus = "CLAIMED"
	GiftExpired   GiftStatus = "EXPIRED"
)

// Valid reports whether s is one of the known states.
func (s GiftStatus) Valid() bool {
	switch s {
	case GiftAvailable, GiftClaimed, GiftExpired:
		return true
	}
	return false
}

// CanTransitionTo reports whether a unit in state s may move to next.
func (s GiftStatus) CanTransitionTo(next GiftStatus) bool {
	return s == GiftAvailable && (next == GiftClaimed || next == GiftExpired)
}

// GiftUnit is a single claimable, prepaid product instance left by one
// customer for the next.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ProductID / ProductName / ProductType: what the gift is redeemable for.
//   - Quantity: always 1 for units created from orders; kept for forward
//     compatibility with multi-unit gifts.
//   - OriginalOrderID: the paying order; indexed for retry de-duplication.
//   - GiftedByCustomerID / GiftedByName: optional gifter identity.
//   - Status / ClaimedAt / ClaimedBy*: lifecycle; claim fields are written
//     together, once.
//   - ContinuedFromGiftUnitID: id of the gift this one pays forward (weak
//     reference, no FK association).
//   - ContinuedByGiftUnitIDs: ids of gifts created as continuations of this
//     one; append only.
//   - ChainPosition: 1 for a chain root, parent position + 1 otherwise.
type GiftUnit struct {
	ID          string  `json:"id"           gorm:"type:char(36);primaryKey"`
	ProductID   string  `json:"product_id"   gorm:"type:varchar(64);not null;index:idx_gift_product_status,priority:1"`
	ProductName string  `json:"product_name" gorm:"type:varchar(255);not null"`
	ProductType *string `json:"product_type,omitempty" gorm:"type:varchar(64)"`
	Quantity    int     `json:"quantity"     gorm:"not null;default:1"`

	OriginalOrderID    string  `json:"original_order_id" gorm:"type:varchar(64);not null;index"`
	GiftedByCustomerID *string `json:"gifted_by_customer_id,omitempty" gorm:"type:varchar(64)"`
	GiftedByName       *string `json:"gifted_by_name,omitempty"        gorm:"type:varchar(120)"`

	Status              GiftStatus `json:"status" gorm:"type:varchar(16);not null;default:'AVAILABLE';index:idx_gift_product_status,priority:2;check:status IN ('AVAILABLE','CLAIMED','EXPIRED')"`
	CreatedAt           time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt           time.Time  `json:"updated_at"`
	ClaimedAt           *time.Time `json:"claimed_at,omitempty"`
	ClaimedByOrderID    *string    `json:"claimed_by_order_id,omitempty"    gorm:"type:varchar(64)"`
	ClaimedByCustomerID *string    `json:"claimed_by_customer_id,omitempty" gorm:"type:varchar(64)"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty" gorm:"index"`

	ContinuedFromGiftUnitID *string                     `json:"continued_from_gift_unit_id,omitempty" gorm:"type:char(36);index"`
	ContinuedByGiftUnitIDs  datatypes.JSONSlice[string] `json:"continued_by_gift_unit_ids"`
	ContinuedAt             *time.Time                  `json:"continued_at,omitempty"`
	ChainPosition           int                         `json:"chain_position" gorm:"not null;default:1"`
}

// TableName returns the database table name for GiftUnit.
func (GiftUnit) TableName() string { return "gift_units" }

// IsRoot reports whether the unit starts a chain.
func (g *GiftUnit) IsRoot() bool {
	return g.ContinuedFromGiftUnitID == nil || *g.ContinuedFromGiftUnitID == ""
}

// IsClaimable reports whether the unit can be claimed at now.
func (g *GiftUnit) IsClaimable(now time.Time) bool {
	if g.Status != GiftAvailable {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// GifterDisplayName returns the name shown on customer-facing screens.
func (g *GiftUnit) GifterDisplayName() string {
	if g.GiftedByName != nil && *g.GiftedByName != "" {
		return *g.GiftedByName
	}
	return "A kind stranger"
}
