package cart

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/serialforge/groupbuy-backend/internal/catalog"
	"github.com/serialforge/groupbuy-backend/pkg/db/models"
	"github.com/serialforge/groupbuy-backend/pkg/errors"
)

// Repository persists carts and cart items. All version arithmetic lives
// here: BumpVersion is the single compare-and-swap gate every mutation goes
// through.
type Repository struct {
	db      *gorm.DB
	catalog *catalog.Repository
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, catalog: catalog.NewRepository(db)}
}

// WithTx binds the repository (and its catalog reads) to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx, catalog: r.catalog.WithTx(tx)}
}

// FindByID loads a cart header. A missing row returns (nil, nil).
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var record models.Cart
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindLiveByOwner loads the owner's live cart, skipping carts that were
// already folded into another cart. A missing row returns (nil, nil).
func (r *Repository) FindLiveByOwner(ctx context.Context, owner OwnerRef) (*models.Cart, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).Where("merged_into_cart_id IS NULL")
	if owner.UserID != nil {
		query = query.Where("user_id = ?", *owner.UserID)
	} else {
		query = query.Where("guest_id = ?", *owner.GuestID)
	}
	var record models.Cart
	err := query.Order("created_at DESC").First(&record).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Create inserts a new cart row.
func (r *Repository) Create(ctx context.Context, record *models.Cart) (*models.Cart, error) {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// GetWithItems loads a cart and hydrates every item with its live catalog
// row. Items whose listing was removed come back with a nil Catalog.
func (r *Repository) GetWithItems(ctx context.Context, id uuid.UUID) (*CartView, error) {
	record, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("cart %s not found", id))
	}

	var rows []models.CartItem
	err = r.db.WithContext(ctx).
		Where("cart_id = ?", id).
		Order("added_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	itemIDs := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		itemIDs = append(itemIDs, row.ItemID)
	}
	listings, err := r.catalog.FindByIDs(ctx, itemIDs)
	if err != nil {
		return nil, err
	}

	view := &CartView{Cart: *record, Items: make([]ItemView, 0, len(rows))}
	for _, row := range rows {
		view.Items = append(view.Items, ItemView{Row: row, Catalog: listings[row.ItemID]})
	}
	return view, nil
}

// BumpVersion increments the cart version, optionally guarded by the
// client's expected version. The guard is the WHERE clause of a single
// UPDATE, so two racing writers can never both win. Run this inside the
// same transaction as the mutation it protects: a rollback then undoes the
// bump too.
func (r *Repository) BumpVersion(ctx context.Context, cartID uuid.UUID, expectedVersion *int64, now time.Time) error {
	query := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID)
	if expectedVersion != nil {
		query = query.Where("version = ?", *expectedVersion)
	}
	result := query.Updates(map[string]any{
		"version":          gorm.Expr("version + 1"),
		"last_activity_at": now,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	current, err := r.FindByID(ctx, cartID)
	if err != nil {
		return err
	}
	if current == nil {
		return errors.New(errors.CodeNotFound, fmt.Sprintf("cart %s not found", cartID))
	}
	return errors.New(errors.CodeVersionConflict,
		fmt.Sprintf("cart %s is at version %d, client expected %d", cartID, current.Version, *expectedVersion)).
		WithDetails(map[string]any{
			"expected_version": *expectedVersion,
			"current_version":  current.Version,
		})
}

// FindItem loads one cart row by catalog item. A missing row returns (nil, nil).
func (r *Repository) FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	var row models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND item_id = ?", cartID, itemID).
		First(&row).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// InsertItem adds a new line to a cart.
func (r *Repository) InsertItem(ctx context.Context, row *models.CartItem) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// SetItemQuantity overwrites the quantity of an existing line.
func (r *Repository) SetItemQuantity(ctx context.Context, rowID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", rowID).
		Update("quantity", quantity).Error
}

// DeleteItem removes a line from a cart. Deleting an absent line is a no-op.
func (r *Repository) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND item_id = ?", cartID, itemID).
		Delete(&models.CartItem{}).Error
}

// ClearItems removes every line from a cart.
func (r *Repository) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
}

// MarkMerged records that the guest cart was folded into the target cart.
// The row survives as a tombstone so a replayed merge can detect it.
func (r *Repository) MarkMerged(ctx context.Context, guestCartID, targetCartID, userID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND merged_into_cart_id IS NULL", guestCartID).
		Updates(map[string]any{
			"merged_into_cart_id": targetCartID,
			"previous_user_id":    userID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New(errors.CodeConflict,
			fmt.Sprintf("cart %s was already merged", guestCartID))
	}
	return nil
}

// Reown converts a guest cart into the user's cart in place, clearing the
// guest token and any guest expiry.
func (r *Repository) Reown(ctx context.Context, cartID, userID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND merged_into_cart_id IS NULL", cartID).
		Updates(map[string]any{
			"user_id":    userID,
			"guest_id":   nil,
			"expires_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New(errors.CodeNotFound, fmt.Sprintf("cart %s not found", cartID))
	}
	return nil
}

// DeleteExpiredGuestCarts hard-deletes guest carts whose expiry has passed.
// Item rows go with them via the FK cascade. Merged tombstones are kept for
// the audit trail.
func (r *Repository) DeleteExpiredGuestCarts(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("guest_id IS NOT NULL").
		Where("merged_into_cart_id IS NULL").
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Delete(&models.Cart{})
	return result.RowsAffected, result.Error
}
