package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/serialforge/groupbuy-backend/pkg/db/models"
)

// CartRepository exposes persistence operations for carts and their items.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error)
	FindLiveByOwner(ctx context.Context, owner OwnerRef) (*models.Cart, error)
	Create(ctx context.Context, record *models.Cart) (*models.Cart, error)
	GetWithItems(ctx context.Context, id uuid.UUID) (*CartView, error)
	BumpVersion(ctx context.Context, cartID uuid.UUID, expectedVersion *int64, now time.Time) error
	FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error)
	InsertItem(ctx context.Context, row *models.CartItem) error
	SetItemQuantity(ctx context.Context, rowID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error
	ClearItems(ctx context.Context, cartID uuid.UUID) error
	MarkMerged(ctx context.Context, guestCartID, targetCartID, userID uuid.UUID) error
	Reown(ctx context.Context, cartID, userID uuid.UUID) error
	DeleteExpiredGuestCarts(ctx context.Context, now time.Time) (int64, error)
}

// TxRunner executes fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
