package domain

import (
	"time"

	"github.com/google/uuid"
)

// StockMovementKind tags an entry in the stock movement ledger.
type StockMovementKind string

const (
	// StockMovementReserve is the decrement applied at order creation.
	StockMovementReserve StockMovementKind = "RESERVE"
	// StockMovementRelease is the compensating increment applied when an
	// order is cancelled or refunded.
	StockMovementRelease StockMovementKind = "RELEASE"
)

// StockMovement is one row in the stock ledger. Stock changes are recorded
// as compensable events rather than bare counter bumps so they can be
// audited and reversed.
type StockMovement struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID int64
	Quantity  int
	Kind      StockMovementKind
	CreatedAt time.Time
}
