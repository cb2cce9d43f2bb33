package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSubtotal_SumsLines(t *testing.T) {
	lines := []Line{
		{UnitPrice: dec("19.90"), Quantity: 3},
		{UnitPrice: dec("5.25"), Quantity: 2},
	}

	assert.True(t, dec("70.20").Equal(Subtotal(lines)), "got %s", Subtotal(lines))
}

func TestSubtotal_NoFloatDrift(t *testing.T) {
	// 0.10 added a thousand times must be exactly 100.00.
	lines := make([]Line, 1000)
	for i := range lines {
		lines[i] = Line{UnitPrice: dec("0.10"), Quantity: 1}
	}

	assert.True(t, dec("100.00").Equal(Subtotal(lines)))
}

func TestPriceOrder_Breakdown(t *testing.T) {
	// subtotal=100.00, shipping=15.00, discount=10.00, fee 10%
	// => total=105.00, fee=10.50, seller=94.50
	lines := []Line{{UnitPrice: dec("50.00"), Quantity: 2}}

	got := PriceOrder(lines, dec("15.00"), dec("10.00"), DefaultPlatformFeeBps)

	assert.True(t, dec("100.00").Equal(got.Subtotal))
	assert.True(t, dec("105.00").Equal(got.Total))
	assert.True(t, dec("10.50").Equal(got.PlatformFee))
	assert.True(t, dec("94.50").Equal(got.SellerAmount))
}

func TestPriceOrder_TotalFlooredAtZero(t *testing.T) {
	lines := []Line{{UnitPrice: dec("10.00"), Quantity: 1}}

	got := PriceOrder(lines, decimal.Zero, dec("50.00"), DefaultPlatformFeeBps)

	assert.True(t, got.Total.IsZero())
	assert.True(t, got.PlatformFee.IsZero())
	assert.True(t, got.SellerAmount.IsZero())
}

func TestPriceOrder_MoneyReconciles(t *testing.T) {
	cases := []struct {
		name     string
		lines    []Line
		shipping string
		discount string
		feeBps   int64
	}{
		{"plain", []Line{{dec("33.33"), 3}}, "7.77", "0", 1000},
		{"odd fee rate", []Line{{dec("19.99"), 1}}, "0", "0", 1250},
		{"discounted", []Line{{dec("10.01"), 7}}, "12.34", "5.55", 850},
		{"zero total", []Line{{dec("1.00"), 1}}, "0", "9.99", 1000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PriceOrder(tc.lines, dec(tc.shipping), dec(tc.discount), tc.feeBps)

			require.False(t, got.Total.IsNegative())
			assert.True(t, got.Total.Equal(got.PlatformFee.Add(got.SellerAmount)),
				"total %s != fee %s + seller %s", got.Total, got.PlatformFee, got.SellerAmount)
			if !got.Total.IsZero() {
				assert.True(t, got.Total.Equal(got.Subtotal.Add(got.ShippingCost).Sub(got.Discount)))
			}
		})
	}
}
