// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the GiftUnit
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic beyond the
// conditional predicates that make state transitions atomic.
//
// Error semantics:
//   - When a gift unit is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - ClaimGiftUnit returns ErrStateConflict when the row exists but is not
//     claimable (already claimed, expired, or past expires_at).
//   - On other DB errors the raw gorm error is propagated.
//
// Availability filter (shared by list and count queries):
//
//	status = 'AVAILABLE' AND (expires_at IS NULL OR expires_at > now)
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-giftchain-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrStateConflict is returned when a conditional state transition matched
// no row because the current state does not allow it.
var ErrStateConflict = errors.New("state conflict")

// availableScope restricts a query to claimable gift units at now.
func availableScope(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where("status = ? AND (expires_at IS NULL OR expires_at > ?)", domain.GiftAvailable, now)
	}
}

// CreateGiftUnit inserts g. A UUID is assigned when g.ID is empty, CreatedAt
// defaults to now, Status to AVAILABLE, Quantity to 1 and ChainPosition to 1.
// Timestamps are stored in UTC so text comparisons in SQLite order correctly.
func CreateGiftUnit(ctx context.Context, db *gorm.DB, g *domain.GiftUnit) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	g.CreatedAt = g.CreatedAt.UTC()
	if g.ExpiresAt != nil {
		exp := g.ExpiresAt.UTC()
		g.ExpiresAt = &exp
	}
	if g.Status == "" {
		g.Status = domain.GiftAvailable
	}
	if g.Quantity <= 0 {
		g.Quantity = 1
	}
	if g.ChainPosition <= 0 {
		g.ChainPosition = 1
	}
	if g.ContinuedByGiftUnitIDs == nil {
		g.ContinuedByGiftUnitIDs = datatypes.JSONSlice[string]{}
	}
	return db.WithContext(ctx).Create(g).Error
}

// GetGiftUnit fetches a single gift unit by id, or ErrNotFound.
func GetGiftUnit(ctx context.Context, db *gorm.DB, id string) (*domain.GiftUnit, error) {
	var g domain.GiftUnit
	if err := db.WithContext(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGiftUnitsByIDs returns the gift units whose ids are in ids, ordered by
// chain position then creation time. Missing ids are silently skipped.
func ListGiftUnitsByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.GiftUnit, error) {
	out := []domain.GiftUnit{}
	if len(ids) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("chain_position ASC, created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListAvailableGifts returns every claimable gift unit, newest first.
func ListAvailableGifts(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.GiftUnit, error) {
	out := []domain.GiftUnit{}
	err := db.WithContext(ctx).
		Scopes(availableScope(now)).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// ListAvailableGiftsByProduct returns the claimable gift units for one
// product, oldest first, so the longest-waiting gift is claimed first.
func ListAvailableGiftsByProduct(ctx context.Context, db *gorm.DB, productID string, now time.Time) ([]domain.GiftUnit, error) {
	out := []domain.GiftUnit{}
	err := db.WithContext(ctx).
		Scopes(availableScope(now)).
		Where("product_id = ?", productID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountAvailableGifts counts claimable gift units.
func CountAvailableGifts(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.GiftUnit{}).
		Scopes(availableScope(now)).
		Count(&total).Error
	return total, err
}

// ListRecentGifts returns up to limit gift units of any status, newest first.
func ListRecentGifts(ctx context.Context, db *gorm.DB, limit int) ([]domain.GiftUnit, error) {
	out := []domain.GiftUnit{}
	q := db.WithContext(ctx).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountGiftsByOrder counts gift units paid for by orderID.
func CountGiftsByOrder(ctx context.Context, db *gorm.DB, orderID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.GiftUnit{}).
		Where("original_order_id = ?", orderID).
		Count(&total).Error
	return total, err
}

// ClaimGiftUnit atomically moves gift id from AVAILABLE to CLAIMED and
// records the claimer. The status check and the write are one conditional
// UPDATE; the affected-row count decides the outcome:
//   - 1 row: claimed.
//   - 0 rows and the id exists: ErrStateConflict.
//   - 0 rows and the id is unknown: ErrNotFound.
func ClaimGiftUnit(ctx context.Context, db *gorm.DB, id, orderID string, customerID *string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.GiftUnit{}).
		Where("id = ?", id).
		Scopes(availableScope(now)).
		Updates(map[string]any{
			"status":                 domain.GiftClaimed,
			"claimed_at":             now,
			"claimed_by_order_id":    orderID,
			"claimed_by_customer_id": customerID,
			"updated_at":             now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := db.WithContext(ctx).Model(&domain.GiftUnit{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStateConflict
}

// MarkContinued stamps parentID with continued_at. It returns ErrNotFound
// when the parent does not exist.
func MarkContinued(ctx context.Context, db *gorm.DB, parentID string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.GiftUnit{}).
		Where("id = ?", parentID).
		Updates(map[string]any{"continued_at": now, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendContinuation appends childID to the parent's forward references.
// The read-modify-write must run inside a transaction to be safe against
// concurrent appends.
func AppendContinuation(ctx context.Context, db *gorm.DB, parentID, childID string) error {
	parent, err := GetGiftUnit(ctx, db, parentID)
	if err != nil {
		return err
	}
	for _, id := range parent.ContinuedByGiftUnitIDs {
		if id == childID {
			return nil
		}
	}
	refs := append(datatypes.JSONSlice[string]{}, parent.ContinuedByGiftUnitIDs...)
	refs = append(refs, childID)
	return db.WithContext(ctx).
		Model(&domain.GiftUnit{}).
		Where("id = ?", parentID).
		Update("continued_by_gift_unit_ids", refs).Error
}
