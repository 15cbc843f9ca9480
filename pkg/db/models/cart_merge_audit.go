package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CartMergeAudit records the outcome of folding a guest cart into a user
// cart. The merged guest cart row itself is kept, so the audit and the cart
// together form an append-only history of ownership changes.
type CartMergeAudit struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GuestCartID    uuid.UUID      `gorm:"column:guest_cart_id;type:uuid;not null;index"`
	UserCartID     uuid.UUID      `gorm:"column:user_cart_id;type:uuid;not null;index"`
	UserID         uuid.UUID      `gorm:"column:user_id;type:uuid;not null"`
	AddedCount     int            `gorm:"column:added_count;not null;default:0"`
	CombinedCount  int            `gorm:"column:combined_count;not null;default:0"`
	RemovedCount   int            `gorm:"column:removed_count;not null;default:0"`
	DroppedItemIDs pq.StringArray `gorm:"column:dropped_item_ids;type:text[]"`
	Report         string         `gorm:"column:report;type:jsonb"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
}
