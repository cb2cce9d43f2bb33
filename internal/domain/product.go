package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog view the checkout flow depends on. Price and Stock
// are always re-fetched server-side; client-submitted values are never
// trusted for arithmetic.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	SellerID    string
	CategoryIDs []int64
	CreatedAt   time.Time
}

// CartLine is a client-submitted cart entry. Only the product reference and
// quantity are meaningful; pricing comes from the catalog.
type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}
