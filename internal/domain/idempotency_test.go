package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestNewIdempotency(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	rec := NewIdempotency("gift_claim", "g1", "till-4:abc", "g1", 200, now, 24*time.Hour)

	if rec.ID == "" || rec.Scope != "gift_claim" || rec.ResourceID != "g1" || rec.Key != "till-4:abc" || rec.GiftUnitID != "g1" || rec.Status != 200 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.CreatedAt.Equal(now) || !rec.ExpiresAt.Equal(now.Add(24*time.Hour)) {
		t.Fatalf("times = %v .. %v", rec.CreatedAt, rec.ExpiresAt)
	}
	if other := NewIdempotency("gift_claim", "g1", "k", "g1", 200, now, time.Hour); other.ID == rec.ID {
		t.Fatalf("ids must be unique")
	}
}

func TestIdempotency_Expired(t *testing.T) {
	now := time.Now().UTC()
	rec := NewIdempotency("gift_claim", "g1", "k", "g1", 200, now, time.Minute)

	cases := []struct {
		at   time.Time
		want bool
	}{
		{now, false},
		{now.Add(59 * time.Second), false},
		{now.Add(time.Minute), true},
		{now.Add(time.Hour), true},
	}
	for _, tc := range cases {
		if got := rec.Expired(tc.at); got != tc.want {
			t.Fatalf("Expired(+%v) = %v, want %v", tc.at.Sub(now), got, tc.want)
		}
	}
}

func TestIdempotency_Schema_UniquePerScopeResourceKey(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasTable("idempotency") || !m.HasIndex(&Idempotency{}, "ux_scope_resource_key") {
		t.Fatalf("expected table idempotency with ux_scope_resource_key")
	}

	now := time.Now().UTC()
	if err := db.Create(NewIdempotency("gift_claim", "g1", "k1", "g1", 200, now, time.Hour)).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}

	dup := NewIdempotency("gift_claim", "g1", "k1", "g1", 200, now, time.Hour)
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation for repeated (scope, resource, key)")
	}

	// Any differing component is a distinct record.
	for _, r := range []*Idempotency{
		NewIdempotency("gift_create", "g1", "k1", "g1", 201, now, time.Hour),
		NewIdempotency("gift_claim", "g2", "k1", "g2", 200, now, time.Hour),
		NewIdempotency("gift_claim", "g1", "k2", "g1", 200, now, time.Hour),
	} {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("insert %s/%s/%s: %v", r.Scope, r.ResourceID, r.Key, err)
		}
	}

	var got Idempotency
	if err := db.First(&got, "scope = ? AND resource_id = ? AND key = ?", "gift_claim", "g1", "k1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.GiftUnitID != "g1" || got.Status != 200 || got.Expired(now) {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestIdempotency_Schema_NotNull(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	now := time.Now().UTC()
	cols := []string{"id", "scope", "resource_id", "key", "gift_unit_id", "status", "created_at", "expires_at"}
	for i, col := range cols {
		vals := []any{"x-" + col, "gift_claim", "g1", "k-" + col, "g1", 200, now, now.Add(time.Hour)}
		vals[i] = nil
		err := db.Exec(`INSERT INTO idempotency ("id","scope","resource_id","key","gift_unit_id","status","created_at","expires_at") VALUES (?,?,?,?,?,?,?,?)`, vals...).Error
		if err == nil {
			t.Fatalf("NULL %s accepted", col)
		}
	}
}
