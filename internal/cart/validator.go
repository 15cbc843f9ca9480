package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/serialforge/groupbuy-backend/pkg/enums"
	"github.com/serialforge/groupbuy-backend/pkg/pricing"
)

// ValidItem is a cart line that can proceed to checkout, priced at the
// current catalog price.
type ValidItem struct {
	ItemID       uuid.UUID       `json:"item_id"`
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineSubtotal decimal.Decimal `json:"line_subtotal"`
}

// InvalidItem is a cart line that blocks checkout until the client removes it.
type InvalidItem struct {
	ItemID   uuid.UUID        `json:"item_id"`
	Name     string           `json:"name"`
	Quantity int              `json:"quantity"`
	Reason   enums.DropReason `json:"reason"`
}

// PriceChange reports a drift between the add-time snapshot and the current
// price. Informational only; the item stays valid at the current price.
type PriceChange struct {
	ItemID       uuid.UUID       `json:"item_id"`
	Name         string          `json:"name"`
	PriceAtAdd   decimal.Decimal `json:"price_at_add"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// QuantityAdjustment reports a quantity the storefront reduced on the
// client's behalf, e.g. when a merge caps a combined quantity.
type QuantityAdjustment struct {
	ItemID   uuid.UUID `json:"item_id"`
	Name     string    `json:"name"`
	Previous int       `json:"previous"`
	Adjusted int       `json:"adjusted"`
}

// ValidationReport is the full read-only health check of a cart.
type ValidationReport struct {
	CartID              uuid.UUID            `json:"cart_id"`
	Valid               []ValidItem          `json:"valid"`
	Invalid             []InvalidItem        `json:"invalid"`
	PriceChanges        []PriceChange        `json:"price_changes"`
	QuantityAdjustments []QuantityAdjustment `json:"quantity_adjustments"`
	Subtotal            decimal.Decimal      `json:"subtotal"`
}

// IsCheckoutReady reports whether every line survived validation.
func (r *ValidationReport) IsCheckoutReady() bool {
	return r != nil && len(r.Invalid) == 0
}

// Validator re-derives price and availability for every cart line from the
// live catalog. It never writes, so it is safe to call repeatedly and
// concurrently with mutations.
type Validator struct {
	repo CartRepository
}

// NewValidator builds a validator over the cart repository.
func NewValidator(repo CartRepository) (*Validator, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	return &Validator{repo: repo}, nil
}

// Validate inspects every line of the cart against the live catalog.
func (v *Validator) Validate(ctx context.Context, cartID uuid.UUID) (*ValidationReport, error) {
	view, err := v.repo.GetWithItems(ctx, cartID)
	if err != nil {
		return nil, wrapStore(err, "load cart for validation")
	}
	return BuildValidationReport(view), nil
}

// BuildValidationReport classifies an already-loaded view. Split out so
// callers holding a fresh view (checkout, merge previews) avoid a second
// read.
func BuildValidationReport(view *CartView) *ValidationReport {
	report := &ValidationReport{
		CartID:              view.Cart.ID,
		Valid:               []ValidItem{},
		Invalid:             []InvalidItem{},
		PriceChanges:        []PriceChange{},
		QuantityAdjustments: []QuantityAdjustment{},
		Subtotal:            decimal.Zero,
	}

	for _, item := range view.Items {
		name := item.Row.NameAtAdd
		if item.Catalog == nil {
			report.Invalid = append(report.Invalid, InvalidItem{
				ItemID:   item.Row.ItemID,
				Name:     name,
				Quantity: item.Row.Quantity,
				Reason:   enums.DropReasonListingRemoved,
			})
			continue
		}
		if !item.Catalog.InStock {
			report.Invalid = append(report.Invalid, InvalidItem{
				ItemID:   item.Row.ItemID,
				Name:     item.Catalog.Name,
				Quantity: item.Row.Quantity,
				Reason:   enums.DropReasonSoldOut,
			})
			continue
		}

		currentCents := pricing.Cents(item.Catalog.Finish)
		if currentCents != item.Row.PriceAtAdd {
			report.PriceChanges = append(report.PriceChanges, PriceChange{
				ItemID:       item.Row.ItemID,
				Name:         item.Catalog.Name,
				PriceAtAdd:   centsToDecimal(item.Row.PriceAtAdd),
				CurrentPrice: centsToDecimal(currentCents),
			})
		}

		subtotal := pricing.LineSubtotal(item.Catalog.Finish, item.Row.Quantity)
		report.Valid = append(report.Valid, ValidItem{
			ItemID:       item.Row.ItemID,
			Name:         item.Catalog.Name,
			Quantity:     item.Row.Quantity,
			UnitPrice:    pricing.For(item.Catalog.Finish),
			LineSubtotal: subtotal,
		})
		report.Subtotal = report.Subtotal.Add(subtotal)
	}

	return report
}

func centsToDecimal(cents int) decimal.Decimal {
	return decimal.NewFromInt(int64(cents)).Div(decimal.NewFromInt(100))
}
