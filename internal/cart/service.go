package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/serialforge/groupbuy-backend/pkg/db"
	"github.com/serialforge/groupbuy-backend/pkg/db/models"
	pkgerrors "github.com/serialforge/groupbuy-backend/pkg/errors"
	"github.com/serialforge/groupbuy-backend/pkg/metrics"
	"github.com/serialforge/groupbuy-backend/pkg/pricing"
)

type catalogLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.CatalogItem, error)
}

// Service exposes the cart read and mutation operations.
type Service interface {
	GetCart(ctx context.Context, owner OwnerRef) (*CartView, error)
	GetCartByID(ctx context.Context, cartID uuid.UUID) (*CartView, error)
	AddItem(ctx context.Context, cartID, itemID uuid.UUID, quantity int, expectedVersion *int64) (*CartView, error)
	UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int, expectedVersion *int64) (*CartView, error)
	RemoveItem(ctx context.Context, cartID, itemID uuid.UUID, expectedVersion *int64) (*CartView, error)
	ClearCart(ctx context.Context, cartID uuid.UUID) (*CartView, error)
}

type service struct {
	repo     CartRepository
	tx       TxRunner
	catalog  catalogLoader
	metrics  *metrics.CartMetrics
	guestTTL time.Duration
	now      func() time.Time
}

// NewService builds a cart service backed by the provided stack. Metrics may
// be nil; recording is skipped.
func NewService(repo CartRepository, tx TxRunner, catalog catalogLoader, m *metrics.CartMetrics, guestTTL time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog loader required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		catalog:  catalog,
		metrics:  m,
		guestTTL: guestTTL,
		now:      time.Now,
	}, nil
}

// GetCart loads the owner's live cart, creating an empty one on first touch.
// Guest carts get an expiry so abandoned anonymous carts can be purged.
func (s *service) GetCart(ctx context.Context, owner OwnerRef) (*CartView, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}

	record, err := s.repo.FindLiveByOwner(ctx, owner)
	if err != nil {
		return nil, wrapStore(err, "load cart by owner")
	}
	if record == nil {
		now := s.now()
		fresh := &models.Cart{
			UserID:         owner.UserID,
			GuestID:        owner.GuestID,
			LastActivityAt: now,
		}
		if owner.GuestID != nil && s.guestTTL > 0 {
			expires := now.Add(s.guestTTL)
			fresh.ExpiresAt = &expires
		}
		record, err = s.repo.Create(ctx, fresh)
		if err != nil {
			return nil, wrapStore(err, "create cart")
		}
	}

	view, err := s.repo.GetWithItems(ctx, record.ID)
	if err != nil {
		return nil, wrapStore(err, "load cart items")
	}
	return view, nil
}

// GetCartByID loads a cart by primary key.
func (s *service) GetCartByID(ctx context.Context, cartID uuid.UUID) (*CartView, error) {
	view, err := s.repo.GetWithItems(ctx, cartID)
	if err != nil {
		return nil, wrapStore(err, "load cart")
	}
	return view, nil
}

// AddItem appends quantity to the cart line for itemID, creating the line
// with catalog snapshots when it does not exist yet. Availability is checked
// against the live catalog inside the same transaction as the version bump,
// so a rejected add leaves the version untouched.
func (s *service) AddItem(ctx context.Context, cartID, itemID uuid.UUID, quantity int, expectedVersion *int64) (*CartView, error) {
	start := s.now()
	view, err := s.addItem(ctx, cartID, itemID, quantity, expectedVersion)
	s.recordMutation("add_item", start, err)
	return view, err
}

func (s *service) addItem(ctx context.Context, cartID, itemID uuid.UUID, quantity int, expectedVersion *int64) (*CartView, error) {
	if cartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	now := s.now()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.BumpVersion(ctx, cartID, expectedVersion, now); err != nil {
			return err
		}

		listing, err := s.catalog.FindByID(ctx, itemID)
		if err != nil {
			return err
		}
		if listing == nil {
			return pkgerrors.New(pkgerrors.CodeItemUnavailable, "listing has been removed").
				WithDetails(map[string]any{"item_id": itemID, "reason": "listing_removed"})
		}
		if !listing.InStock {
			return pkgerrors.New(pkgerrors.CodeItemUnavailable, "item is sold out").
				WithDetails(map[string]any{"item_id": itemID, "reason": "sold_out"})
		}

		existing, err := repo.FindItem(ctx, cartID, itemID)
		if err != nil {
			return err
		}
		if existing != nil {
			return repo.SetItemQuantity(ctx, existing.ID, existing.Quantity+quantity)
		}
		err = repo.InsertItem(ctx, &models.CartItem{
			CartID:       cartID,
			ItemID:       itemID,
			Quantity:     quantity,
			PriceAtAdd:   pricing.Cents(listing.Finish),
			NameAtAdd:    listing.Name,
			FinishAtAdd:  listing.Finish,
			InStockAtAdd: listing.InStock,
			AddedAt:      now,
		})
		// Two unguarded adds can race past the FindItem check; the
		// (cart_id, item_id) unique index catches the loser.
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err,
				"item was added concurrently, retry the request")
		}
		return err
	})
	if err != nil {
		return nil, wrapStore(err, "add item to cart")
	}

	view, err := s.repo.GetWithItems(ctx, cartID)
	if err != nil {
		return nil, wrapStore(err, "reload cart")
	}
	return view, nil
}

// UpdateItemQuantity sets the line quantity outright. Zero or negative
// deletes the line; deleting an absent line succeeds so retries are safe.
func (s *service) UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int, expectedVersion *int64) (*CartView, error) {
	start := s.now()
	view, err := s.updateItemQuantity(ctx, cartID, itemID, quantity, expectedVersion)
	s.recordMutation("update_quantity", start, err)
	return view, err
}

func (s *service) updateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int, expectedVersion *int64) (*CartView, error) {
	if cartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}

	now := s.now()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.BumpVersion(ctx, cartID, expectedVersion, now); err != nil {
			return err
		}

		existing, err := repo.FindItem(ctx, cartID, itemID)
		if err != nil {
			return err
		}
		if quantity < 1 {
			if existing == nil {
				return nil
			}
			return repo.DeleteItem(ctx, cartID, itemID)
		}
		if existing == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("item %s is not in cart %s", itemID, cartID))
		}
		return repo.SetItemQuantity(ctx, existing.ID, quantity)
	})
	if err != nil {
		return nil, wrapStore(err, "update item quantity")
	}

	view, err := s.repo.GetWithItems(ctx, cartID)
	if err != nil {
		return nil, wrapStore(err, "reload cart")
	}
	return view, nil
}

// RemoveItem deletes the line for itemID under the same version contract as
// a quantity update.
func (s *service) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID, expectedVersion *int64) (*CartView, error) {
	start := s.now()
	view, err := s.updateItemQuantity(ctx, cartID, itemID, 0, expectedVersion)
	s.recordMutation("remove_item", start, err)
	return view, err
}

// ClearCart deletes every line. This is a destructive reset, not a
// concurrency-sensitive edit: no version guard and no version bump.
func (s *service) ClearCart(ctx context.Context, cartID uuid.UUID) (*CartView, error) {
	if cartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}

	start := s.now()
	record, err := s.repo.FindByID(ctx, cartID)
	if err != nil {
		s.recordMutation("clear_cart", start, err)
		return nil, wrapStore(err, "load cart")
	}
	if record == nil {
		err = pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("cart %s not found", cartID))
		s.recordMutation("clear_cart", start, err)
		return nil, err
	}

	if err := s.repo.ClearItems(ctx, cartID); err != nil {
		s.recordMutation("clear_cart", start, err)
		return nil, wrapStore(err, "clear cart items")
	}
	s.recordMutation("clear_cart", start, nil)

	view, err := s.repo.GetWithItems(ctx, cartID)
	if err != nil {
		return nil, wrapStore(err, "reload cart")
	}
	return view, nil
}

func (s *service) recordMutation(op string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case pkgerrors.IsCode(err, pkgerrors.CodeVersionConflict):
		outcome = "version_conflict"
		s.metrics.IncVersionConflict()
	case pkgerrors.IsCode(err, pkgerrors.CodeItemUnavailable):
		outcome = "item_unavailable"
	default:
		outcome = "error"
	}
	s.metrics.ObserveMutation(op, outcome, s.now().Sub(start))
}

// wrapStore converts raw persistence failures into dependency errors while
// letting already-typed outcomes pass through unchanged.
func wrapStore(err error, action string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
