package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/serialforge/groupbuy-backend/pkg/enums"
)

// Unit prices by finish, in cents. The catalog never stores a price; every
// price decision routes through this table so a finish change reprices the
// piece everywhere at once.
var centsByFinish = map[enums.ItemFinish]int{
	enums.FinishStandard:  6500,
	enums.FinishBrushed:   7200,
	enums.FinishPolished:  7800,
	enums.FinishPatina:    8500,
	enums.FinishPrototype: 12000,
}

const baseCents = 6500

// Cents returns the unit price for a finish in cents. Unknown finishes fall
// back to the base price rather than erroring.
func Cents(finish enums.ItemFinish) int {
	if cents, ok := centsByFinish[finish]; ok {
		return cents
	}
	return baseCents
}

// For returns the unit price for a finish as a decimal dollar amount.
func For(finish enums.ItemFinish) decimal.Decimal {
	return decimal.NewFromInt(int64(Cents(finish))).Div(decimal.NewFromInt(100))
}

// LineSubtotal returns quantity * unit price as a decimal dollar amount.
func LineSubtotal(finish enums.ItemFinish, quantity int) decimal.Decimal {
	return For(finish).Mul(decimal.NewFromInt(int64(quantity)))
}
