package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	if (GiftUnit{}).TableName() != "gift_units" {
		t.Fatalf("GiftUnit.TableName() = %q; want %q", (GiftUnit{}).TableName(), "gift_units")
	}
	if (Idempotency{}).TableName() != "idempotency" {
		t.Fatalf("Idempotency.TableName() = %q; want %q", (Idempotency{}).TableName(), "idempotency")
	}
}

func TestGiftStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to GiftStatus
		want     bool
	}{
		{GiftAvailable, GiftClaimed, true},
		{GiftAvailable, GiftExpired, true},
		{GiftAvailable, GiftAvailable, false},
		{GiftClaimed, GiftAvailable, false},
		{GiftClaimed, GiftExpired, false},
		{GiftExpired, GiftClaimed, false},
		{GiftExpired, GiftAvailable, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s = %v; want %v", tc.from, tc.to, got, tc.want)
		}
	}
	if GiftStatus("GONE").Valid() {
		t.Fatalf("unknown status should be invalid")
	}
	if !GiftClaimed.Valid() {
		t.Fatalf("CLAIMED should be valid")
	}
}

func TestGiftUnit_Helpers(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	parent := "p1"
	name := "Dana"

	g := &GiftUnit{Status: GiftAvailable}
	if !g.IsRoot() || !g.IsClaimable(now) {
		t.Fatalf("fresh root should be claimable root: %+v", g)
	}
	if g.GifterDisplayName() != "A kind stranger" {
		t.Fatalf("anonymous display name unexpected: %q", g.GifterDisplayName())
	}

	g.ContinuedFromGiftUnitID = &parent
	g.GiftedByName = &name
	if g.IsRoot() {
		t.Fatalf("unit with parent should not be root")
	}
	if g.GifterDisplayName() != "Dana" {
		t.Fatalf("display name unexpected: %q", g.GifterDisplayName())
	}

	g.ExpiresAt = &past
	if g.IsClaimable(now) {
		t.Fatalf("expired-by-time unit should not be claimable")
	}
	g.ExpiresAt = &future
	if !g.IsClaimable(now) {
		t.Fatalf("unit expiring in future should be claimable")
	}
	g.Status = GiftClaimed
	if g.IsClaimable(now) {
		t.Fatalf("claimed unit should not be claimable")
	}
}

func TestMigrations_Indexes_AndForwardRefs(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&GiftUnit{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasTable(&GiftUnit{}) {
		t.Fatalf("expected gift_units table")
	}
	if !m.HasIndex(&GiftUnit{}, "idx_gift_product_status") {
		t.Fatalf("expected index idx_gift_product_status on gift_units")
	}

	now := time.Now().UTC()
	root := &GiftUnit{
		ID: "g1", ProductID: "P1", ProductName: "Latte", Quantity: 1,
		OriginalOrderID: "O1", Status: GiftAvailable, ChainPosition: 1,
		CreatedAt: now,
	}
	if err := db.Create(root).Error; err != nil {
		t.Fatalf("insert root: %v", err)
	}

	// Forward references survive a JSON round trip through the column.
	root.ContinuedByGiftUnitIDs = append(root.ContinuedByGiftUnitIDs, "g2", "g3")
	if err := db.Model(&GiftUnit{}).Where("id = ?", "g1").
		Update("continued_by_gift_unit_ids", root.ContinuedByGiftUnitIDs).Error; err != nil {
		t.Fatalf("update forward refs: %v", err)
	}
	var got GiftUnit
	if err := db.First(&got, "id = ?", "g1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if len(got.ContinuedByGiftUnitIDs) != 2 || got.ContinuedByGiftUnitIDs[0] != "g2" || got.ContinuedByGiftUnitIDs[1] != "g3" {
		t.Fatalf("forward refs unexpected: %#v", got.ContinuedByGiftUnitIDs)
	}

	// CHECK constraint rejects unknown states.
	bad := &GiftUnit{
		ID: "g9", ProductID: "P1", ProductName: "Latte", Quantity: 1,
		OriginalOrderID: "O9", Status: GiftStatus("GONE"), ChainPosition: 1,
	}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected CHECK violation for unknown status")
	}
}
