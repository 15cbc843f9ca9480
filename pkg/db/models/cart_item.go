package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/serialforge/groupbuy-backend/pkg/enums"
)

// CartItem ties one catalog item to a cart. The *AtAdd columns are display
// snapshots captured when the row was inserted; pricing and availability
// decisions always come from the live catalog row instead.
type CartItem struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID       uuid.UUID        `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:idx_cart_items_cart_item"`
	ItemID       uuid.UUID        `gorm:"column:item_id;type:uuid;not null;uniqueIndex:idx_cart_items_cart_item"`
	Quantity     int              `gorm:"column:quantity;not null"`
	PriceAtAdd   int              `gorm:"column:price_at_add_cents;not null"`
	NameAtAdd    string           `gorm:"column:name_at_add;not null"`
	FinishAtAdd  enums.ItemFinish `gorm:"column:finish_at_add;not null"`
	InStockAtAdd bool             `gorm:"column:in_stock_at_add;not null"`
	AddedAt      time.Time        `gorm:"column:added_at;not null"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
