// Package pricing computes the monetary breakdown of an order. All
// arithmetic is decimal; values are rounded to two fractional digits only
// where they become part of the persisted breakdown.
package pricing

import "github.com/shopspring/decimal"

// DefaultPlatformFeeBps is the baseline marketplace commission (10%).
const DefaultPlatformFeeBps int64 = 1000

var bpsDenominator = decimal.NewFromInt(10000)

// Line is a priced cart line. UnitPrice must be the server-fetched catalog
// price, never a client-supplied one.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals is the full monetary breakdown of an order.
type Totals struct {
	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	PlatformFee  decimal.Decimal
	SellerAmount decimal.Decimal
}

// Subtotal sums unit price times quantity across lines.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// PriceOrder computes the order breakdown from priced lines, a shipping
// cost, an already-evaluated discount and the platform fee rate in basis
// points. The fee rate is passed explicitly so per-seller commission tiers
// resolve outside this package.
//
// Total is floored at zero, and SellerAmount is derived as Total minus the
// rounded fee so that Total == PlatformFee + SellerAmount holds exactly.
func PriceOrder(lines []Line, shippingCost, discount decimal.Decimal, feeRateBps int64) Totals {
	subtotal := Subtotal(lines).Round(2)

	total := subtotal.Add(shippingCost).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	total = total.Round(2)

	fee := total.Mul(decimal.NewFromInt(feeRateBps)).Div(bpsDenominator).Round(2)

	return Totals{
		Subtotal:     subtotal,
		ShippingCost: shippingCost.Round(2),
		Discount:     discount.Round(2),
		Total:        total,
		PlatformFee:  fee,
		SellerAmount: total.Sub(fee),
	}
}
