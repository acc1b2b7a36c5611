package purchase

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is one raw line of a purchase request. A request may name the same
// product more than once.
type Item struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Product is the inventory view of a catalog entry.
type Product struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Inventory int             `json:"inventory"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Record is an immutable entry in a user's purchase ledger.
type Record struct {
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Date     time.Time       `json:"date"`
}

// User owns an append-only ledger of purchase records.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Purchases []Record  `json:"bought_items"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
