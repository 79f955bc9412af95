package pos

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/tax"
)

var hundred = decimal.NewFromInt(100)

// Quote computes subtotal, discount, VAT on the discounted base and total.
// The discount is clamped to the subtotal.
func Quote(lines []OrderLine, discount *Discount, vat tax.Code) (Totals, error) {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Quantity.Mul(l.UnitPrice))
	}
	subtotal = shared.RoundMoney(subtotal)
	off, err := discountAmount(subtotal, discount)
	if err != nil {
		return Totals{}, err
	}
	computed, err := tax.Compute(subtotal.Sub(off), vat)
	if err != nil {
		return Totals{}, err
	}
	t := Totals{Subtotal: subtotal, Discount: off, Tax: computed.TaxAmount}
	t.Total = subtotal.Sub(off).Add(t.Tax)
	return t, nil
}

// HasDiscount reports whether d asks for any reduction.
func HasDiscount(d *Discount) bool {
	return d != nil && d.Value.IsPositive()
}

func discountAmount(subtotal decimal.Decimal, d *Discount) (decimal.Decimal, error) {
	if !HasDiscount(d) {
		if d != nil && d.Value.IsNegative() {
			return decimal.Zero, ErrInvalidDiscount
		}
		return decimal.Zero, nil
	}
	var off decimal.Decimal
	switch d.Type {
	case DiscountPercent:
		if d.Value.GreaterThan(hundred) {
			return decimal.Zero, ErrInvalidDiscount
		}
		off = shared.RoundMoney(subtotal.Mul(d.Value).Div(hundred))
	case DiscountFixed:
		if !shared.HasMoneyPrecision(d.Value) {
			return decimal.Zero, ErrInvalidDiscount
		}
		off = d.Value
	default:
		return decimal.Zero, ErrInvalidDiscount
	}
	if off.GreaterThan(subtotal) {
		off = subtotal
	}
	return off, nil
}
