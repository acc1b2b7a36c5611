// Package catalog holds the product and user management surface that sits
// around purchase settlement.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"purchaseservice/internal/purchase"

	"github.com/shopspring/decimal"
)

var (
	ErrEmailTaken   = errors.New("email already registered")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

type InventoryState string

const (
	InventoryAny       InventoryState = ""
	InventorySoldOut   InventoryState = "soldout"
	InventoryAvailable InventoryState = "available"
)

type DateOrder string

const (
	DateUnsorted DateOrder = ""
	DateNewest   DateOrder = "newest"
	DateOldest   DateOrder = "oldest"
)

// Paging selects one 1-based page of a listing.
type Paging struct {
	Page  int
	Limit int
}

// Normalize fills paging defaults.
func (p Paging) Normalize() Paging {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	return p
}

func (p Paging) Offset() int { return (p.Page - 1) * p.Limit }

// TotalPages rounds up; a normalized Paging is assumed.
func (p Paging) TotalPages(total int) int { return (total + p.Limit - 1) / p.Limit }

// Bounds clamps the page window to a listing of total items.
func (p Paging) Bounds(total int) (start, end int) {
	start = min(p.Offset(), total)
	return start, min(start+p.Limit, total)
}

// ProductFilter selects and orders a page of products.
type ProductFilter struct {
	Title     string
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	Inventory InventoryState
	Date      DateOrder
	Paging
}

func (f ProductFilter) Normalize() ProductFilter {
	f.Paging = f.Paging.Normalize()
	return f
}

// Match reports whether p passes every filter criterion.
func (f ProductFilter) Match(p purchase.Product) bool {
	if f.Title != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(f.Title)) {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	switch f.Inventory {
	case InventorySoldOut:
		return p.Inventory == 0
	case InventoryAvailable:
		return p.Inventory > 0
	}
	return true
}

// Apply filters, sorts and pages products in memory. It returns the page
// and the number of matches before paging.
func (f ProductFilter) Apply(products []purchase.Product) ([]purchase.Product, int) {
	f = f.Normalize()

	matched := make([]purchase.Product, 0, len(products))
	for _, p := range products {
		if f.Match(p) {
			matched = append(matched, p)
		}
	}

	switch f.Date {
	case DateNewest:
		slices.SortStableFunc(matched, func(a, b purchase.Product) int { return b.CreatedAt.Compare(a.CreatedAt) })
	case DateOldest:
		slices.SortStableFunc(matched, func(a, b purchase.Product) int { return a.CreatedAt.Compare(b.CreatedAt) })
	}

	start, end := f.Bounds(len(matched))
	return matched[start:end], len(matched)
}

// NewProduct is the input for creating a catalog entry.
type NewProduct struct {
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Inventory int             `json:"inventory"`
}

func (n NewProduct) Validate() error {
	switch {
	case strings.TrimSpace(n.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	case n.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	case n.Inventory < 0:
		return fmt.Errorf("%w: inventory must not be negative", ErrInvalidInput)
	}
	return nil
}

// Products manages catalog entries.
type Products interface {
	CreateProduct(ctx context.Context, in NewProduct) (*purchase.Product, error)
	GetProduct(ctx context.Context, id string) (*purchase.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]purchase.Product, int, error)
	DeleteProduct(ctx context.Context, id string) error
}

// Users manages accounts and exposes their purchase ledgers.
type Users interface {
	CreateUser(ctx context.Context, email string) (*purchase.User, error)
	GetUser(ctx context.Context, id string) (*purchase.User, error)
	// ListUsers returns one page in creation order and the total count.
	ListUsers(ctx context.Context, page Paging) ([]purchase.User, int, error)
	DeleteUser(ctx context.Context, id string) error
	Purchases(ctx context.Context, userID string) ([]purchase.Record, error)
}

// ValidateEmail performs the minimal shape check accepted for accounts.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	return nil
}
