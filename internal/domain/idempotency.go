package domain

import (
	"time"

	"github.com/google/uuid"
)

// Idempotency is the stored outcome of a keyed gift claim, unique per
// (scope, resource_id, key). A till retrying the same claim gets this
// outcome back instead of a conflict from the already-claimed gift.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Scope      string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_scope_resource_key,priority:1"`
	ResourceID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_scope_resource_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_scope_resource_key,priority:3"`
	GiftUnitID string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// NewIdempotency builds a record created at now that lives for ttl.
func NewIdempotency(scope, resourceID, key, giftUnitID string, status int, now time.Time, ttl time.Duration) *Idempotency {
	return &Idempotency{
		ID:         uuid.NewString(),
		Scope:      scope,
		ResourceID: resourceID,
		Key:        key,
		GiftUnitID: giftUnitID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

// Expired reports whether the record no longer replays at now.
func (i *Idempotency) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}
