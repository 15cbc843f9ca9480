package cart

import (
	"github.com/serialforge/groupbuy-backend/pkg/carthash"
	"github.com/serialforge/groupbuy-backend/pkg/db/models"
)

// ItemView pairs a cart row with the live catalog row it references.
// Catalog is nil when the listing has been removed; the snapshot fields on
// Row keep the UI renderable, but only Catalog may drive price or
// availability decisions.
type ItemView struct {
	Row     models.CartItem
	Catalog *models.CatalogItem
}

// Available reports whether the referenced listing still exists and is in
// stock right now.
func (v ItemView) Available() bool {
	return v.Catalog != nil && v.Catalog.InStock
}

// CartView is the cart-with-items shape returned by every read and mutation.
type CartView struct {
	Cart  models.Cart
	Items []ItemView
}

// IsEmpty reports whether the cart holds no items.
func (v *CartView) IsEmpty() bool {
	return v == nil || len(v.Items) == 0
}

// HashEntries projects the items into the digest input shape.
func (v *CartView) HashEntries() []carthash.Entry {
	if v == nil {
		return nil
	}
	entries := make([]carthash.Entry, 0, len(v.Items))
	for _, item := range v.Items {
		entries = append(entries, carthash.Entry{ItemID: item.Row.ItemID, Quantity: item.Row.Quantity})
	}
	return entries
}

// Hash returns the drift-detection digest of the current contents.
func (v *CartView) Hash() string {
	return carthash.Sum(v.HashEntries())
}
