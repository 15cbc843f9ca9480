package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/serialforge/groupbuy-backend/pkg/enums"
)

// CheckoutSession pins a cart's version and content hash for the duration of
// the checkout flow so drift can be detected before order placement.
type CheckoutSession struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID             uuid.UUID           `gorm:"column:cart_id;type:uuid;not null;index"`
	UserID             uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	CartVersionAtStart int64               `gorm:"column:cart_version_at_start;not null"`
	CartHash           string              `gorm:"column:cart_hash;not null"`
	Status             enums.SessionStatus `gorm:"column:status;not null;default:'active'"`
	ExpiresAt          time.Time           `gorm:"column:expires_at;not null"`
	CompletedAt        *time.Time          `gorm:"column:completed_at"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
