package domain

import (
	"time"

	"github.com/google/uuid"
)

// Address is a buyer shipping address.
type Address struct {
	ID         uuid.UUID
	UserID     string
	Street     string
	Number     string
	Complement string
	City       string
	State      string
	PostalCode string
	Country    string
	IsDefault  bool
	CreatedAt  time.Time
}
