package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/serialforge/groupbuy-backend/pkg/enums"
)

// CatalogItem is one uniquely serialized piece in the drop. There is no stock
// count; each piece exists once and is either in stock or gone. Rows are
// written by the catalog ingestion pipeline and read-only here.
type CatalogItem struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SerialNo  string           `gorm:"column:serial_no;not null;uniqueIndex"`
	Name      string           `gorm:"column:name;not null"`
	Finish    enums.ItemFinish `gorm:"column:finish;not null;default:'standard'"`
	InStock   bool             `gorm:"column:in_stock;not null;default:true"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
