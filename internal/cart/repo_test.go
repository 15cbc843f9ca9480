package cart

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/serialforge/groupbuy-backend/pkg/db/models"
	"github.com/serialforge/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/serialforge/groupbuy-backend/pkg/errors"
)

func setupCartTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	catalogItems := `
CREATE TABLE IF NOT EXISTS catalog_items (
  id TEXT PRIMARY KEY,
  serial_no TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  finish TEXT NOT NULL DEFAULT 'standard',
  in_stock INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	carts := `
CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  user_id TEXT,
  guest_id TEXT,
  version INTEGER NOT NULL DEFAULT 0,
  last_activity_at DATETIME NOT NULL,
  expires_at DATETIME,
  merged_into_cart_id TEXT,
  previous_user_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	cartItems := `
CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  price_at_add_cents INTEGER NOT NULL,
  name_at_add TEXT NOT NULL,
  finish_at_add TEXT NOT NULL,
  in_stock_at_add INTEGER NOT NULL,
  added_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (cart_id, item_id)
);`
	for _, stmt := range []string{catalogItems, carts, cartItems} {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func insertListing(t *testing.T, db *gorm.DB, name string, finish enums.ItemFinish, inStock bool) uuid.UUID {
	t.Helper()
	listing := models.CatalogItem{
		ID:       uuid.New(),
		SerialNo: uuid.NewString(),
		Name:     name,
		Finish:   finish,
		InStock:  inStock,
	}
	require.NoError(t, db.Create(&listing).Error)
	return listing.ID
}

func insertGuestCart(t *testing.T, db *gorm.DB, guestID string, expiresAt *time.Time) uuid.UUID {
	t.Helper()
	record := models.Cart{
		ID:             uuid.New(),
		GuestID:        &guestID,
		LastActivityAt: time.Now().UTC(),
		ExpiresAt:      expiresAt,
	}
	require.NoError(t, db.Create(&record).Error)
	return record.ID
}

func TestFindLiveByOwnerSkipsMergedCarts(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	guestID := uuid.NewString()
	mergedID := insertGuestCart(t, db, guestID, nil)
	target := uuid.New()
	require.NoError(t, db.Model(&models.Cart{}).Where("id = ?", mergedID).
		Update("merged_into_cart_id", target).Error)

	found, err := repo.FindLiveByOwner(ctx, GuestOwner(guestID))
	require.NoError(t, err)
	assert.Nil(t, found, "merged tombstone must not surface as live cart")

	liveID := insertGuestCart(t, db, guestID, nil)
	found, err = repo.FindLiveByOwner(ctx, GuestOwner(guestID))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, liveID, found.ID)
}

func TestBumpVersionGuardsExpectedVersion(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	cartID := insertGuestCart(t, db, uuid.NewString(), nil)
	now := time.Now().UTC()

	// Unguarded bump always succeeds.
	require.NoError(t, repo.BumpVersion(ctx, cartID, nil, now))

	// Matching guard succeeds.
	expected := int64(1)
	require.NoError(t, repo.BumpVersion(ctx, cartID, &expected, now))

	// Stale guard loses and reports both versions.
	stale := int64(0)
	err := repo.BumpVersion(ctx, cartID, &stale, now)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeVersionConflict))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(0), details["expected_version"])
	assert.Equal(t, int64(2), details["current_version"])

	current, err := repo.FindByID(ctx, cartID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), current.Version)
}

func TestBumpVersionMissingCart(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)

	err := repo.BumpVersion(context.Background(), uuid.New(), nil, time.Now().UTC())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetWithItemsHydratesCatalog(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	cartID := insertGuestCart(t, db, uuid.NewString(), nil)
	liveListing := insertListing(t, db, "Serial 014", enums.FinishBrushed, true)
	removedListing := uuid.New()

	for i, itemID := range []uuid.UUID{liveListing, removedListing} {
		row := models.CartItem{
			ID:           uuid.New(),
			CartID:       cartID,
			ItemID:       itemID,
			Quantity:     i + 1,
			PriceAtAdd:   6500,
			NameAtAdd:    "snapshot",
			FinishAtAdd:  enums.FinishStandard,
			InStockAtAdd: true,
			AddedAt:      time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, db.Create(&row).Error)
	}

	view, err := repo.GetWithItems(ctx, cartID)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)

	require.NotNil(t, view.Items[0].Catalog)
	assert.Equal(t, "Serial 014", view.Items[0].Catalog.Name)
	assert.True(t, view.Items[0].Available())

	assert.Nil(t, view.Items[1].Catalog, "removed listing hydrates as nil")
	assert.False(t, view.Items[1].Available())
}

func TestGetWithItemsMissingCart(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)

	_, err := repo.GetWithItems(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMarkMergedIsSingleShot(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	guestCartID := insertGuestCart(t, db, uuid.NewString(), nil)
	targetID := uuid.New()
	userID := uuid.New()

	require.NoError(t, repo.MarkMerged(ctx, guestCartID, targetID, userID))

	tombstone, err := repo.FindByID(ctx, guestCartID)
	require.NoError(t, err)
	require.NotNil(t, tombstone.MergedIntoCartID)
	assert.Equal(t, targetID, *tombstone.MergedIntoCartID)
	require.NotNil(t, tombstone.PreviousUserID)
	assert.Equal(t, userID, *tombstone.PreviousUserID)

	err = repo.MarkMerged(ctx, guestCartID, uuid.New(), userID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestReownClearsGuestIdentity(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	expiry := time.Now().UTC().Add(24 * time.Hour)
	cartID := insertGuestCart(t, db, uuid.NewString(), &expiry)
	userID := uuid.New()

	require.NoError(t, repo.Reown(ctx, cartID, userID))

	record, err := repo.FindByID(ctx, cartID)
	require.NoError(t, err)
	require.NotNil(t, record.UserID)
	assert.Equal(t, userID, *record.UserID)
	assert.Nil(t, record.GuestID)
	assert.Nil(t, record.ExpiresAt)
}

func TestDeleteExpiredGuestCarts(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expiredID := insertGuestCart(t, db, uuid.NewString(), &past)
	freshID := insertGuestCart(t, db, uuid.NewString(), &future)

	// Merged tombstones keep their rows even when expired.
	tombstoneID := insertGuestCart(t, db, uuid.NewString(), &past)
	require.NoError(t, db.Model(&models.Cart{}).Where("id = ?", tombstoneID).
		Update("merged_into_cart_id", uuid.New()).Error)

	deleted, err := repo.DeleteExpiredGuestCarts(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	gone, err := repo.FindByID(ctx, expiredID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := repo.FindByID(ctx, freshID)
	require.NoError(t, err)
	assert.NotNil(t, kept)

	tombstone, err := repo.FindByID(ctx, tombstoneID)
	require.NoError(t, err)
	assert.NotNil(t, tombstone)
}
