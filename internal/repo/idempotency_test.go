package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-giftchain-backend/internal/domain"
)

const claimScope = "gift_claim"

func newIdemDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:idem_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if migrate {
		if err := db.AutoMigrate(&domain.Idempotency{}); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedIdem(t *testing.T, db *gorm.DB, id, resource, key string, expiresAt time.Time) {
	t.Helper()
	rec := &domain.Idempotency{
		ID: id, Scope: claimScope, ResourceID: resource, Key: key,
		GiftUnitID: resource, Status: 200,
		CreatedAt: expiresAt.Add(-time.Hour), ExpiresAt: expiresAt,
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestGetIdempotency_Lookups(t *testing.T) {
	db := newIdemDB(t, true)
	now := time.Now().UTC()
	seedIdem(t, db, "live", "g-live", "till-1:k", now.Add(time.Hour))
	seedIdem(t, db, "stale", "g-stale", "till-1:k", now.Add(-time.Minute))

	cases := []struct {
		name            string
		scope, res, key string
		wantHit         bool
	}{
		{"hit", claimScope, "g-live", "till-1:k", true},
		{"expired", claimScope, "g-stale", "till-1:k", false},
		{"other key", claimScope, "g-live", "till-2:k", false},
		{"other scope", "gift_create", "g-live", "till-1:k", false},
		{"other gift", claimScope, "g-none", "till-1:k", false},
		{"blank resource", claimScope, "  ", "till-1:k", false},
		{"blank key", claimScope, "g-live", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := GetIdempotency(context.Background(), db, tc.scope, tc.res, tc.key, now)
			if tc.wantHit {
				if err != nil || rec == nil || rec.GiftUnitID != "g-live" || rec.Status != 200 {
					t.Fatalf("want hit, got (%+v, %v)", rec, err)
				}
				return
			}
			if rec != nil || !errors.Is(err, ErrNotFound) {
				t.Fatalf("want ErrNotFound, got (%+v, %v)", rec, err)
			}
		})
	}
}

func TestCreateIdempotency_RecordsClaimOnce(t *testing.T) {
	db := newIdemDB(t, true)
	ctx := context.Background()
	start := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, claimScope, "g9", "k9", "g9", 200, 90*time.Minute)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || rec.Scope != claimScope || rec.ResourceID != "g9" || rec.GiftUnitID != "g9" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if d := rec.ExpiresAt.Sub(start); d < 89*time.Minute || d > 91*time.Minute {
		t.Fatalf("ttl not applied: %v", d)
	}

	if _, err := CreateIdempotency(ctx, db, claimScope, "g9", "k9", "g9", 200, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second record = %v, want ErrDuplicate", err)
	}
	// Same key on another gift is a different claim.
	if _, err := CreateIdempotency(ctx, db, claimScope, "g10", "k9", "g10", 200, time.Hour); err != nil {
		t.Fatalf("same key other gift: %v", err)
	}
}

func TestCreateIdempotency_NoTable(t *testing.T) {
	db := newIdemDB(t, false)
	_, err := CreateIdempotency(context.Background(), db, claimScope, "gX", "kX", "gX", 200, time.Minute)
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("want a plain error, got %v", err)
	}
}

func TestPurgeExpiredIdempotency(t *testing.T) {
	db := newIdemDB(t, true)
	now := time.Now().UTC()
	seedIdem(t, db, "a", "g1", "k", now.Add(-2*time.Hour))
	seedIdem(t, db, "b", "g2", "k", now)
	seedIdem(t, db, "c", "g3", "k", now.Add(time.Hour))

	n, err := PurgeExpiredIdempotency(context.Background(), db, now)
	if err != nil || n != 2 {
		t.Fatalf("purge = %d, %v; want 2", n, err)
	}
	var left []domain.Idempotency
	if err := db.Find(&left).Error; err != nil || len(left) != 1 || left[0].ID != "c" {
		t.Fatalf("remaining = %+v, %v", left, err)
	}

	if n, err := PurgeExpiredIdempotency(context.Background(), db, now); err != nil || n != 0 {
		t.Fatalf("second purge = %d, %v", n, err)
	}
}
