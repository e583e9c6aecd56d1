// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-giftchain-backend/internal/domain"
)

// GiftListStats fingerprints the available-gift listing at one instant.
//
// Claims, continuations and inserts move Total or MaxUpdatedAt. Expiry
// touches no row, so the available count and the earliest pending expiry
// are measured at the same instant: once a gift lapses both change.
type GiftListStats struct {
	Total        int64
	MaxUpdatedAt *time.Time
	Available    int64
	NextExpiry   *time.Time
}

// GiftStats computes GiftListStats at now. A non-empty productID narrows the
// available figures to that product; Total and MaxUpdatedAt span all rows.
func GiftStats(ctx context.Context, db *gorm.DB, productID string, now time.Time) (GiftListStats, error) {
	var st GiftListStats
	if err := db.WithContext(ctx).Model(&domain.GiftUnit{}).Count(&st.Total).Error; err != nil {
		return GiftListStats{}, err
	}
	if st.Total == 0 {
		return st, nil
	}

	// ORDER BY instead of MAX(): SQLite would hand MAX() back as TEXT.
	var latest struct{ UpdatedAt time.Time }
	if err := db.WithContext(ctx).Model(&domain.GiftUnit{}).
		Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&latest).Error; err != nil {
		return GiftListStats{}, err
	}
	st.MaxUpdatedAt = &latest.UpdatedAt

	available := func() *gorm.DB {
		q := db.WithContext(ctx).Model(&domain.GiftUnit{}).Scopes(availableScope(now))
		if productID != "" {
			q = q.Where("product_id = ?", productID)
		}
		return q
	}
	if err := available().Count(&st.Available).Error; err != nil {
		return GiftListStats{}, err
	}
	if st.Available == 0 {
		return st, nil
	}

	var next []struct{ ExpiresAt *time.Time }
	if err := available().Select("expires_at").Where("expires_at IS NOT NULL").
		Order("expires_at ASC").Limit(1).Scan(&next).Error; err != nil {
		return GiftListStats{}, err
	}
	if len(next) == 1 && next[0].ExpiresAt != nil {
		exp := next[0].ExpiresAt.UTC()
		st.NextExpiry = &exp
	}
	return st, nil
}
