package models

import (
	"time"

	"github.com/google/uuid"
)

// Cart is the live item selection for one owner. Exactly one of UserID or
// GuestID is set while the cart is live; a merged cart keeps its row with
// MergedIntoCartID pointing at the surviving cart.
type Cart struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           *uuid.UUID `gorm:"column:user_id;type:uuid;index"`
	GuestID          *string    `gorm:"column:guest_id;index"`
	Version          int64      `gorm:"column:version;not null;default:0"`
	LastActivityAt   time.Time  `gorm:"column:last_activity_at;not null"`
	ExpiresAt        *time.Time `gorm:"column:expires_at"`
	MergedIntoCartID *uuid.UUID `gorm:"column:merged_into_cart_id;type:uuid"`
	PreviousUserID   *uuid.UUID `gorm:"column:previous_user_id;type:uuid"`
	Items            []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// IsMerged reports whether this cart has been folded into another cart.
func (c *Cart) IsMerged() bool {
	return c != nil && c.MergedIntoCartID != nil
}
